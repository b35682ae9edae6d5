package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"storedesk/messaging"
	"storedesk/store"
)

var (
	ErrInvalidTransition = errors.New("fulfillment: invalid status transition")
	ErrInvalidProduct    = errors.New("fulfillment: invalid product")
)

// Store is the persistence surface the service needs.
type Store interface {
	GetOrder(id string) (*store.Order, error)
	UpdateOrderStatus(id, from, to, detail, actor string) error
	GetProduct(id string) (*store.Product, error)
	CreateProduct(p *store.Product) error
	UpdateProduct(p *store.Product) error
	DeleteProduct(id string) error
	AdjustStock(id string, delta int) (int, error)
	CreateStockAdjustment(a *store.StockAdjustment) error
	EnqueueOutbox(topic string, payload []byte, msgType string) error
}

// Service applies order and inventory changes made from the dashboard.
type Service struct {
	db      Store
	emitter Emitter
	out     Outbound
	source  string
	topic   string
}

// NewService builds the service. Outbox messages are only queued while out
// reports a broker; a nil out disables them.
func NewService(db Store, emitter Emitter, out Outbound, source, topic string) *Service {
	return &Service{db: db, emitter: emitter, out: out, source: source, topic: topic}
}

// UpdateStatus moves an order to status if the lifecycle allows it.
func (s *Service) UpdateStatus(ctx context.Context, orderID, status, actor string) (*store.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(order.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, status)
	}
	old := order.Status
	err = s.db.UpdateOrderStatus(order.ID, old, status, fmt.Sprintf("%s -> %s", old, status), actor)
	if errors.Is(err, store.ErrStatusChanged) {
		return nil, fmt.Errorf("%w: %s changed while moving to %s", ErrInvalidTransition, order.ID, status)
	}
	if err != nil {
		return nil, fmt.Errorf("update order %s: %w", order.ID, err)
	}
	order.Status = status

	s.emitter.EmitOrderStatusChanged(order.ID, order.CustomerID, old, status, actor)
	s.enqueue(messaging.TypeOrderStatusChanged, messaging.OrderStatusChanged{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		OldStatus:  old,
		NewStatus:  status,
		Actor:      actor,
	})
	return order, nil
}

// AdjustStock applies delta to a product and records the adjustment.
func (s *Service) AdjustStock(ctx context.Context, productID string, delta int, reason, actor string) (*store.StockAdjustment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if delta == 0 {
		return nil, fmt.Errorf("%w: adjustment must be non-zero", ErrInvalidProduct)
	}
	p, err := s.db.GetProduct(productID)
	if err != nil {
		return nil, err
	}
	stock, err := s.db.AdjustStock(productID, delta)
	if err != nil {
		return nil, err
	}
	adj := &store.StockAdjustment{
		ProductID:   productID,
		ProductName: p.Name,
		Delta:       delta,
		StockAfter:  stock,
		Reason:      strings.TrimSpace(reason),
		Actor:       actor,
	}
	if err := s.db.CreateStockAdjustment(adj); err != nil {
		log.Printf("fulfillment: record adjustment for %s: %v", productID, err)
	}

	s.emitter.EmitStockAdjusted(productID, p.Name, delta, stock, adj.Reason, actor)
	s.enqueue(messaging.TypeStockAdjusted, messaging.StockAdjusted{
		ProductID:  productID,
		Name:       p.Name,
		Delta:      delta,
		StockAfter: stock,
		Reason:     adj.Reason,
		Actor:      actor,
	})
	return adj, nil
}

// SaveProduct creates p when it has no ID and updates it otherwise.
func (s *Service) SaveProduct(ctx context.Context, p *store.Product, actor string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	action := "updated"
	if p.ID == "" {
		action = "created"
		if err := s.db.CreateProduct(p); err != nil {
			return err
		}
	} else if err := s.db.UpdateProduct(p); err != nil {
		return err
	}
	s.productChanged(p.ID, p.Name, action, actor)
	return nil
}

func (s *Service) DeleteProduct(ctx context.Context, id, actor string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.db.GetProduct(id)
	if err != nil {
		return err
	}
	if err := s.db.DeleteProduct(id); err != nil {
		return err
	}
	s.productChanged(id, p.Name, "deleted", actor)
	return nil
}

func (s *Service) productChanged(id, name, action, actor string) {
	s.emitter.EmitProductChanged(id, name, action, actor)
	s.enqueue(messaging.TypeProductChanged, messaging.ProductChanged{
		ProductID: id,
		Name:      name,
		Action:    action,
		Actor:     actor,
	})
}

func (s *Service) enqueue(msgType string, payload any) {
	if s.out == nil || !s.out.Enabled() {
		return
	}
	env, err := messaging.NewEnvelope(msgType, s.source, payload)
	if err != nil {
		log.Printf("fulfillment: build %s: %v", msgType, err)
		return
	}
	data, err := env.Encode()
	if err != nil {
		log.Printf("fulfillment: encode %s: %v", msgType, err)
		return
	}
	if err := s.db.EnqueueOutbox(s.topic, data, msgType); err != nil {
		log.Printf("fulfillment: enqueue %s: %v", msgType, err)
	}
}
