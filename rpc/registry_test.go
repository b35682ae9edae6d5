package rpc

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storedesk/config"
	"storedesk/dashboard"
	"storedesk/realtime"
	"storedesk/store"
)

func TestRegisterAndCall(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("echo", func(_ context.Context, params json.RawMessage) (any, error) {
		return string(params), nil
	}))
	assert.Error(t, r.Register("echo", func(context.Context, json.RawMessage) (any, error) { return nil, nil }))
	assert.Error(t, r.Register("", func(context.Context, json.RawMessage) (any, error) { return nil, nil }))
	assert.Error(t, r.Register("nil", nil))

	out, err := r.Call(context.Background(), "echo", json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, out)

	_, err = r.Call(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrUnknownProcedure)
	assert.Equal(t, []string{"echo"}, r.Names())
}

func newBuiltinRegistry(t *testing.T) (*Registry, *store.DB) {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "rpc.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r, Builtins{
		DB:                db,
		Dashboard:         dashboard.New(db, realtime.NewHub(), nil, dashboard.Options{}),
		LowStockThreshold: func() int { return 5 },
	}))
	return r, db
}

func TestBuiltinsRegistered(t *testing.T) {
	r, _ := newBuiltinRegistry(t)
	assert.Equal(t, []string{
		"get_customer_segments",
		"get_daily_stats",
		"get_dashboard_stats",
		"get_low_stock_products",
	}, r.Names())
}

func TestCustomerSegmentsProcedure(t *testing.T) {
	r, db := newBuiltinRegistry(t)
	ctx := context.Background()

	out, err := r.Call(ctx, ProcCustomerSegments, nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	p := &store.Profile{Email: "a@example.com"}
	require.NoError(t, db.CreateProfile(p))
	require.NoError(t, db.CreateOrder(&store.Order{CustomerID: p.ID, TotalAmount: 3}))

	out, err = r.Call(ctx, ProcCustomerSegments, nil)
	require.NoError(t, err)
	assert.Equal(t, []store.CustomerSegment{{SegmentName: "Occasional", CustomerCount: 1}}, out)
}

func TestLowStockProcedureParams(t *testing.T) {
	r, db := newBuiltinRegistry(t)
	ctx := context.Background()
	require.NoError(t, db.CreateProduct(&store.Product{Name: "Widget", Stock: 4}))
	require.NoError(t, db.CreateProduct(&store.Product{Name: "Gadget", Stock: 8}))

	out, err := r.Call(ctx, ProcLowStockProducts, nil)
	require.NoError(t, err)
	assert.Len(t, out, 1)

	out, err = r.Call(ctx, ProcLowStockProducts, json.RawMessage(`{"threshold":20}`))
	require.NoError(t, err)
	assert.Len(t, out, 2)

	_, err = r.Call(ctx, ProcLowStockProducts, json.RawMessage(`{"threshold":-1}`))
	assert.ErrorIs(t, err, ErrInvalidParams)
	_, err = r.Call(ctx, ProcLowStockProducts, json.RawMessage(`{"threshold":"lots"}`))
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestDailyAndDashboardProcedures(t *testing.T) {
	r, db := newBuiltinRegistry(t)
	ctx := context.Background()
	require.NoError(t, db.CreateOrder(&store.Order{TotalAmount: 12, Status: "delivered"}))

	_, err := r.Call(ctx, ProcDailyStats, json.RawMessage(`{"days":0}`))
	assert.ErrorIs(t, err, ErrInvalidParams)

	out, err := r.Call(ctx, ProcDailyStats, json.RawMessage(`{"days":7}`))
	require.NoError(t, err)
	assert.Equal(t, []store.DailyStat{}, out)

	out, err = r.Call(ctx, ProcDashboardStats, nil)
	require.NoError(t, err)
	stats, ok := out.(*dashboard.Stats)
	require.True(t, ok)
	assert.EqualValues(t, 1, stats.TotalSales)
}
