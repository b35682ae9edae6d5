package fulfillment

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storedesk/config"
	"storedesk/messaging"
	"storedesk/store"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEmitter) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recordingEmitter) EmitOrderStatusChanged(orderID, customerID, oldStatus, newStatus, actor string) {
	r.add(fmt.Sprintf("status %s %s->%s by %s", orderID, oldStatus, newStatus, actor))
}

func (r *recordingEmitter) EmitStockAdjusted(productID, name string, delta, stockAfter int, reason, actor string) {
	r.add(fmt.Sprintf("stock %s %+d=%d", name, delta, stockAfter))
}

func (r *recordingEmitter) EmitProductChanged(productID, name, action, actor string) {
	r.add(fmt.Sprintf("product %s %s", name, action))
}

type outbound bool

func (o outbound) Enabled() bool { return bool(o) }

func newService(t *testing.T) (*Service, *store.DB, *recordingEmitter) {
	return newServiceWith(t, outbound(true))
}

func newServiceWith(t *testing.T, out Outbound) (*Service, *store.DB, *recordingEmitter) {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "ff.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	em := &recordingEmitter{}
	return NewService(db, em, out, "storedesk", "storedesk.events"), db, em
}

func TestTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusProcessing))
	assert.True(t, CanTransition(StatusPending, StatusCancelled))
	assert.True(t, CanTransition(StatusProcessing, StatusCancelled))
	assert.True(t, CanTransition(StatusShipped, StatusDelivered))
	assert.False(t, CanTransition(StatusShipped, StatusCancelled))
	assert.False(t, CanTransition(StatusDelivered, StatusPending))
	assert.False(t, CanTransition(StatusPending, StatusDelivered))
	assert.Empty(t, NextStatuses(StatusCancelled))
	assert.True(t, IsValidStatus(StatusShipped))
	assert.False(t, IsValidStatus("lost"))
}

func TestUpdateStatusLifecycle(t *testing.T) {
	svc, db, em := newService(t)
	ctx := context.Background()
	o := &store.Order{TotalAmount: 20}
	require.NoError(t, db.CreateOrder(o))

	for _, next := range []string{StatusProcessing, StatusShipped, StatusDelivered} {
		got, err := svc.UpdateStatus(ctx, o.ID, next, "ops@example.com")
		require.NoError(t, err)
		assert.Equal(t, next, got.Status)
	}

	_, err := svc.UpdateStatus(ctx, o.ID, StatusCancelled, "ops@example.com")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.UpdateStatus(ctx, "missing", StatusProcessing, "ops@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)

	history, err := db.ListOrderHistory(o.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)
	assert.Len(t, em.events, 3)
	assert.Equal(t, "status "+o.ID+" pending->processing by ops@example.com", em.events[0])

	msgs, err := db.ListPendingOutbox(10, 5)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	env, err := messaging.Decode(msgs[2].Payload)
	require.NoError(t, err)
	assert.Equal(t, messaging.TypeOrderStatusChanged, env.Type)
	var p messaging.OrderStatusChanged
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, StatusDelivered, p.NewStatus)
	assert.Equal(t, "storedesk.events", msgs[2].Topic)
}

func TestAdjustStock(t *testing.T) {
	svc, db, em := newService(t)
	ctx := context.Background()
	p := &store.Product{Name: "Widget", Price: 2}
	require.NoError(t, svc.SaveProduct(ctx, p, "ops"))

	adj, err := svc.AdjustStock(ctx, p.ID, 12, " restock ", "ops")
	require.NoError(t, err)
	assert.Equal(t, 12, adj.StockAfter)
	assert.Equal(t, "restock", adj.Reason)

	_, err = svc.AdjustStock(ctx, p.ID, -20, "", "ops")
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	_, err = svc.AdjustStock(ctx, p.ID, 0, "", "ops")
	assert.ErrorIs(t, err, ErrInvalidProduct)

	list, err := db.ListStockAdjustments(10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, []string{"product Widget created", "stock Widget +12=12"}, em.events)
}

func TestSaveAndDeleteProduct(t *testing.T) {
	svc, db, em := newService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.SaveProduct(ctx, &store.Product{Name: "  "}, "ops"), ErrInvalidProduct)
	assert.ErrorIs(t, svc.SaveProduct(ctx, &store.Product{Name: "X", Price: -1}, "ops"), ErrInvalidProduct)

	p := &store.Product{Name: "Gadget", Price: 5}
	require.NoError(t, svc.SaveProduct(ctx, p, "ops"))
	p.Price = 6
	require.NoError(t, svc.SaveProduct(ctx, p, "ops"))
	got, err := db.GetProduct(p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, got.Price, 0.001)

	require.NoError(t, svc.DeleteProduct(ctx, p.ID, "ops"))
	assert.ErrorIs(t, svc.DeleteProduct(ctx, p.ID, "ops"), store.ErrNotFound)
	assert.Equal(t, []string{"product Gadget created", "product Gadget updated", "product Gadget deleted"}, em.events)
}

// racingStore lets another admin change the order between the read and the
// write of UpdateStatus.
type racingStore struct {
	*store.DB
	once   sync.Once
	before func()
}

func (r *racingStore) GetOrder(id string) (*store.Order, error) {
	o, err := r.DB.GetOrder(id)
	r.once.Do(r.before)
	return o, err
}

func TestUpdateStatusRejectsConcurrentChange(t *testing.T) {
	_, db, _ := newService(t)
	ctx := context.Background()
	o := &store.Order{TotalAmount: 20}
	require.NoError(t, db.CreateOrder(o))

	other := NewService(db, &recordingEmitter{}, outbound(true), "storedesk", "storedesk.events")
	em := &recordingEmitter{}
	rs := &racingStore{DB: db, before: func() {
		_, err := other.UpdateStatus(ctx, o.ID, StatusCancelled, "b@example.com")
		require.NoError(t, err)
	}}
	svc := NewService(rs, em, outbound(true), "storedesk", "storedesk.events")

	_, err := svc.UpdateStatus(ctx, o.ID, StatusProcessing, "a@example.com")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := db.GetOrder(o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	history, err := db.ListOrderHistory(o.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, StatusCancelled, history[0].NewStatus)
	assert.Empty(t, em.events)
}

func TestDisabledOutboundSkipsOutbox(t *testing.T) {
	svc, db, em := newServiceWith(t, outbound(false))
	ctx := context.Background()
	o := &store.Order{TotalAmount: 20}
	require.NoError(t, db.CreateOrder(o))
	p := &store.Product{Name: "Widget", Price: 1, Stock: 1}

	_, err := svc.UpdateStatus(ctx, o.ID, StatusProcessing, "ops@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.SaveProduct(ctx, p, "ops@example.com"))
	_, err = svc.AdjustStock(ctx, p.ID, 4, "recount", "ops@example.com")
	require.NoError(t, err)

	pending, err := db.CountPendingOutbox()
	require.NoError(t, err)
	assert.Zero(t, pending)
	assert.Len(t, em.events, 3, "bus events still fire")
}
