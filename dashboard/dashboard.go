package dashboard

import (
	"context"
	"fmt"
	"log"
	"time"

	"storedesk/realtime"
	"storedesk/statcache"
	"storedesk/store"
)

// LoadErrorMessage is what viewers see when the statistics cannot be read.
const LoadErrorMessage = "Failed to load dashboard data"

// Source is the subset of the store the dashboard reads.
type Source interface {
	OrderTotals() (*store.OrderTotals, error)
	CountProfiles() (int64, error)
	SalesByDay(since time.Time) ([]store.DaySales, error)
	ListOrders(status string, limit int) ([]*store.Order, error)
}

// Stats are the aggregates shown on the dashboard.
type Stats struct {
	TotalSales      int64            `json:"total_sales"`      // delivered orders
	TotalOrders     int64            `json:"total_orders"`     // all orders
	ActiveCustomers int64            `json:"active_customers"` // profiles
	Revenue         float64          `json:"revenue"`          // non-cancelled order value
	SalesByDay      []store.DaySales `json:"sales_by_day"`
	RecentOrders    []*store.Order   `json:"recent_orders"`
	ComputedAt      time.Time        `json:"computed_at"`
}

type Status string

const (
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// State is one step of the loading -> success|error sequence a viewer sees.
type State struct {
	Status Status `json:"status"`
	Stats  *Stats `json:"stats,omitempty"`
	Error  string `json:"error,omitempty"`
}

type Options struct {
	RecentDays  int
	RecentLimit int
}

type Service struct {
	src   Source
	hub   *realtime.Hub
	cache *statcache.Manager
	opts  Options
	now   func() time.Time
}

func New(src Source, hub *realtime.Hub, cache *statcache.Manager, opts Options) *Service {
	if opts.RecentDays <= 0 {
		opts.RecentDays = 7
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 5
	}
	return &Service{src: src, hub: hub, cache: cache, opts: opts, now: time.Now}
}

// Stats returns the current statistics, served from the cache when fresh.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return statcache.GetOrCompute(ctx, s.cache, statcache.KeyDashboard, s.compute)
}

// Refresh drops the cached statistics and recomputes them.
func (s *Service) Refresh(ctx context.Context) (*Stats, error) {
	s.cache.Invalidate(ctx, statcache.KeyDashboard)
	return s.Stats(ctx)
}

func (s *Service) compute(ctx context.Context) (*Stats, error) {
	totals, err := s.src.OrderTotals()
	if err != nil {
		return nil, fmt.Errorf("order totals: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	customers, err := s.src.CountProfiles()
	if err != nil {
		return nil, fmt.Errorf("count profiles: %w", err)
	}

	now := s.now().UTC()
	first := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(s.opts.RecentDays - 1))
	sales, err := s.src.SalesByDay(first)
	if err != nil {
		return nil, fmt.Errorf("sales by day: %w", err)
	}
	recent, err := s.src.ListOrders("", s.opts.RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("recent orders: %w", err)
	}

	return &Stats{
		TotalSales:      totals.Delivered,
		TotalOrders:     totals.Orders,
		ActiveCustomers: customers,
		Revenue:         totals.Revenue,
		SalesByDay:      fillDays(first, s.opts.RecentDays, sales),
		RecentOrders:    recent,
		ComputedAt:      now,
	}, nil
}

// fillDays returns one entry per day starting at first, zero-filling days with no sales.
func fillDays(first time.Time, days int, sales []store.DaySales) []store.DaySales {
	byDate := make(map[string]store.DaySales, len(sales))
	for _, d := range sales {
		byDate[d.Date] = d
	}
	out := make([]store.DaySales, days)
	for i := range out {
		date := first.AddDate(0, 0, i).Format("2006-01-02")
		if d, ok := byDate[date]; ok {
			out[i] = d
		} else {
			out[i] = store.DaySales{Date: date}
		}
	}
	return out
}

// Watch drives one live dashboard view. It reports loading, performs the
// initial fetch, then recomputes after every change on the orders or
// profiles channel until ctx is done. Both subscriptions are closed before
// Watch returns. Changes that pile up during a recomputation are folded into
// the next one.
func (s *Service) Watch(ctx context.Context, fn func(State)) error {
	fn(State{Status: StatusLoading})

	sub := s.hub.Subscribe(realtime.ChannelOrders, realtime.ChannelProfiles)
	defer sub.Close()

	fn(s.load(ctx, false))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-sub.C():
			if !ok {
				return nil
			}
			if !drain(sub) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fn(s.load(ctx, true))
		}
	}
}

func (s *Service) load(ctx context.Context, refresh bool) State {
	var stats *Stats
	var err error
	if refresh {
		stats, err = s.Refresh(ctx)
	} else {
		stats, err = s.Stats(ctx)
	}
	if err != nil {
		log.Printf("dashboard: load stats: %v", err)
		return State{Status: StatusError, Error: LoadErrorMessage}
	}
	return State{Status: StatusSuccess, Stats: stats}
}

// drain discards queued changes. It reports false if the subscription closed.
func drain(sub *realtime.Subscription) bool {
	for {
		select {
		case _, ok := <-sub.C():
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}
