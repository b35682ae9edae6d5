package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"storedesk/dashboard"
	"storedesk/statcache"
	"storedesk/store"
)

// Names of the built-in procedures.
const (
	ProcCustomerSegments = "get_customer_segments"
	ProcDashboardStats   = "get_dashboard_stats"
	ProcDailyStats       = "get_daily_stats"
	ProcLowStockProducts = "get_low_stock_products"
)

// StatsReader is the store surface the built-in procedures read.
type StatsReader interface {
	CustomerSegments() ([]store.CustomerSegment, error)
	ListDailyStats(days int) ([]store.DailyStat, error)
	ListLowStockProducts(threshold int) ([]*store.Product, error)
}

// Builtins carries what the built-in procedures need.
type Builtins struct {
	DB                StatsReader
	Dashboard         *dashboard.Service
	Cache             *statcache.Manager
	LowStockThreshold func() int
}

// RegisterBuiltins installs the built-in procedures on r.
func RegisterBuiltins(r *Registry, b Builtins) error {
	procs := map[string]Procedure{
		ProcCustomerSegments: b.customerSegments,
		ProcDashboardStats:   b.dashboardStats,
		ProcDailyStats:       b.dailyStats,
		ProcLowStockProducts: b.lowStockProducts,
	}
	for _, name := range []string{ProcCustomerSegments, ProcDashboardStats, ProcDailyStats, ProcLowStockProducts} {
		if err := r.Register(name, procs[name]); err != nil {
			return err
		}
	}
	return nil
}

func (b Builtins) customerSegments(ctx context.Context, _ json.RawMessage) (any, error) {
	return statcache.GetOrCompute(ctx, b.Cache, statcache.KeySegments, func(context.Context) ([]store.CustomerSegment, error) {
		segs, err := b.DB.CustomerSegments()
		if err != nil {
			return nil, fmt.Errorf("customer segments: %w", err)
		}
		if segs == nil {
			segs = []store.CustomerSegment{}
		}
		return segs, nil
	})
}

func (b Builtins) dashboardStats(ctx context.Context, _ json.RawMessage) (any, error) {
	if b.Dashboard == nil {
		return nil, fmt.Errorf("rpc: dashboard not available")
	}
	return b.Dashboard.Stats(ctx)
}

func (b Builtins) dailyStats(ctx context.Context, params json.RawMessage) (any, error) {
	args := struct {
		Days int `json:"days"`
	}{Days: 30}
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	if args.Days <= 0 || args.Days > 366 {
		return nil, fmt.Errorf("%w: days must be between 1 and 366", ErrInvalidParams)
	}
	key := fmt.Sprintf("%s:%d", statcache.KeyDaily, args.Days)
	return statcache.GetOrCompute(ctx, b.Cache, key, func(context.Context) ([]store.DailyStat, error) {
		stats, err := b.DB.ListDailyStats(args.Days)
		if err != nil {
			return nil, fmt.Errorf("daily stats: %w", err)
		}
		if stats == nil {
			stats = []store.DailyStat{}
		}
		return stats, nil
	})
}

func (b Builtins) lowStockProducts(_ context.Context, params json.RawMessage) (any, error) {
	threshold := 10
	if b.LowStockThreshold != nil {
		threshold = b.LowStockThreshold()
	}
	args := struct {
		Threshold *int `json:"threshold"`
	}{}
	if err := decodeParams(params, &args); err != nil {
		return nil, err
	}
	if args.Threshold != nil {
		if *args.Threshold < 0 {
			return nil, fmt.Errorf("%w: threshold must not be negative", ErrInvalidParams)
		}
		threshold = *args.Threshold
	}
	products, err := b.DB.ListLowStockProducts(threshold)
	if err != nil {
		return nil, fmt.Errorf("low stock products: %w", err)
	}
	if products == nil {
		products = []*store.Product{}
	}
	return products, nil
}
