package dashboard

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storedesk/config"
	"storedesk/realtime"
	"storedesk/store"
)

func setup(t *testing.T) (*store.DB, *realtime.Hub) {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "dash.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hub := realtime.NewHub()
	db.SetChangeFunc(func(table, op, id string) {
		hub.Publish(realtime.Change{Channel: table, Op: op, RowID: id})
	})
	return db, hub
}

func TestStatsAggregates(t *testing.T) {
	db, hub := setup(t)
	cust := &store.Profile{Email: "a@example.com", FullName: "A"}
	require.NoError(t, db.CreateProfile(cust))
	require.NoError(t, db.CreateProfile(&store.Profile{Email: "b@example.com"}))
	require.NoError(t, db.CreateOrder(&store.Order{CustomerID: cust.ID, TotalAmount: 120, Status: "delivered"}))
	require.NoError(t, db.CreateOrder(&store.Order{CustomerID: cust.ID, TotalAmount: 30}))
	require.NoError(t, db.CreateOrder(&store.Order{TotalAmount: 999, Status: "cancelled"}))

	svc := New(db, hub, nil, Options{RecentDays: 7, RecentLimit: 2})
	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, stats.TotalSales)
	assert.EqualValues(t, 3, stats.TotalOrders)
	assert.EqualValues(t, 2, stats.ActiveCustomers)
	assert.InDelta(t, 150.0, stats.Revenue, 0.001)
	assert.Len(t, stats.RecentOrders, 2)

	require.Len(t, stats.SalesByDay, 7)
	today := time.Now().UTC().Format("2006-01-02")
	last := stats.SalesByDay[6]
	assert.Equal(t, today, last.Date)
	assert.InDelta(t, 150.0, last.Revenue, 0.001)
	assert.Zero(t, stats.SalesByDay[0].Orders)
}

func TestFillDays(t *testing.T) {
	first := time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC)
	got := fillDays(first, 3, []store.DaySales{{Date: "2026-03-31", Revenue: 5, Orders: 1}})
	assert.Equal(t, []store.DaySales{
		{Date: "2026-03-30"},
		{Date: "2026-03-31", Revenue: 5, Orders: 1},
		{Date: "2026-04-01"},
	}, got)
}

func TestWatchRecomputesOnChangeAndUnsubscribes(t *testing.T) {
	db, hub := setup(t)
	svc := New(db, hub, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	states := make(chan State, 16)
	done := make(chan error, 1)
	go func() {
		done <- svc.Watch(ctx, func(s State) { states <- s })
	}()

	next := func() State {
		select {
		case s := <-states:
			return s
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for state")
			return State{}
		}
	}

	assert.Equal(t, StatusLoading, next().Status)
	first := next()
	require.Equal(t, StatusSuccess, first.Status)
	assert.Zero(t, first.Stats.TotalOrders)
	assert.Equal(t, 1, hub.SubscriberCount())

	require.NoError(t, db.CreateOrder(&store.Order{TotalAmount: 10}))
	var latest State
	require.Eventually(t, func() bool {
		select {
		case latest = <-states:
		default:
		}
		return latest.Stats != nil && latest.Stats.TotalOrders == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, db.CreateProfile(&store.Profile{Email: "new@example.com"}))
	require.Eventually(t, func() bool {
		select {
		case latest = <-states:
		default:
		}
		return latest.Stats != nil && latest.Stats.ActiveCustomers == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return")
	}
	assert.Equal(t, 0, hub.SubscriberCount())
}

func TestWatchIgnoresProductChanges(t *testing.T) {
	db, hub := setup(t)
	svc := New(db, hub, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	states := make(chan State, 16)
	go svc.Watch(ctx, func(s State) { states <- s })

	<-states
	<-states
	require.NoError(t, db.CreateProduct(&store.Product{Name: "Widget"}))
	select {
	case s := <-states:
		t.Fatalf("unexpected state %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

type failingSource struct{}

func (failingSource) OrderTotals() (*store.OrderTotals, error) {
	return nil, errors.New("connection refused")
}
func (failingSource) CountProfiles() (int64, error) { return 0, nil }
func (failingSource) SalesByDay(time.Time) ([]store.DaySales, error) { return nil, nil }
func (failingSource) ListOrders(string, int) ([]*store.Order, error) { return nil, nil }

func TestWatchReportsGenericError(t *testing.T) {
	svc := New(failingSource{}, realtime.NewHub(), nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	var got []State
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := svc.Watch(ctx, func(s State) { got = append(got, s) })
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, got, 2)
	assert.Equal(t, StatusLoading, got[0].Status)
	assert.Equal(t, StatusError, got[1].Status)
	assert.Equal(t, LoadErrorMessage, got[1].Error)
	assert.Nil(t, got[1].Stats)
}

// gatedSource counts computations and can hold one of them open until
// released.
type gatedSource struct {
	computes atomic.Int32
	orders   atomic.Int64
	blockOn  int32
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func newGatedSource(blockOn int32) *gatedSource {
	return &gatedSource{blockOn: blockOn, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedSource) OrderTotals() (*store.OrderTotals, error) {
	if g.computes.Add(1) == g.blockOn {
		g.once.Do(func() { close(g.entered) })
		<-g.release
	}
	return &store.OrderTotals{Orders: g.orders.Load()}, nil
}
func (g *gatedSource) CountProfiles() (int64, error) { return 0, nil }
func (g *gatedSource) SalesByDay(time.Time) ([]store.DaySales, error) { return nil, nil }
func (g *gatedSource) ListOrders(string, int) ([]*store.Order, error) { return nil, nil }

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) add(s State) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *stateLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.states)
}

func (l *stateLog) last() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.states[len(l.states)-1]
}

func orderChange() realtime.Change {
	return realtime.Change{Channel: realtime.ChannelOrders, Op: "INSERT", RowID: "o"}
}

func TestWatchCoalescesBurstDuringCompute(t *testing.T) {
	src := newGatedSource(2)
	hub := realtime.NewHub()
	svc := New(src, hub, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seen := &stateLog{}
	go svc.Watch(ctx, seen.add)

	require.Eventually(t, func() bool { return seen.len() == 2 }, 5*time.Second, 5*time.Millisecond)

	hub.Publish(orderChange())
	select {
	case <-src.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh did not start")
	}
	for i := 0; i < 40; i++ {
		hub.Publish(orderChange())
	}
	close(src.release)

	require.Eventually(t, func() bool { return seen.len() == 4 }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 3, src.computes.Load(), "the burst folds into one recompute")
	assert.Equal(t, 4, seen.len())
	assert.Equal(t, StatusSuccess, seen.last().Status)
}

func TestWatchRecomputesOnResync(t *testing.T) {
	src := newGatedSource(0)
	hub := realtime.NewHub()
	svc := New(src, hub, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seen := &stateLog{}
	go svc.Watch(ctx, seen.add)

	require.Eventually(t, func() bool { return seen.len() == 2 }, 5*time.Second, 5*time.Millisecond)
	assert.Zero(t, seen.last().Stats.TotalOrders)

	src.orders.Store(7)
	hub.Publish(realtime.Change{Channel: realtime.ChannelOrders, Op: realtime.OpResync})

	require.Eventually(t, func() bool { return seen.len() == 3 }, 5*time.Second, 5*time.Millisecond)
	got := seen.last()
	require.Equal(t, StatusSuccess, got.Status)
	assert.EqualValues(t, 7, got.Stats.TotalOrders)
	assert.EqualValues(t, 2, src.computes.Load())
}
