package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps every event published to the message bus.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func NewEnvelope(msgType, source string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("messaging: marshal %s payload: %w", msgType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Type:      msgType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   data,
	}, nil
}

func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("messaging: decode envelope: %w", err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("messaging: envelope missing type")
	}
	return &e, nil
}

// DecodePayload unmarshals the envelope payload into v.
func (e *Envelope) DecodePayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Event types carried on the events topic.
const (
	TypeOrderStatusChanged = "order.status_changed"
	TypeStockAdjusted      = "inventory.stock_adjusted"
	TypeProductChanged     = "catalog.product_changed"
)

type OrderStatusChanged struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id,omitempty"`
	OldStatus  string `json:"old_status"`
	NewStatus  string `json:"new_status"`
	Actor      string `json:"actor"`
}

type StockAdjusted struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	Delta      int    `json:"delta"`
	StockAfter int    `json:"stock_after"`
	Reason     string `json:"reason,omitempty"`
	Actor      string `json:"actor"`
}

type ProductChanged struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Action    string `json:"action"` // created, updated, deleted
	Actor     string `json:"actor"`
}
