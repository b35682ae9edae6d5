package engine

const (
	EventOrderStatusChanged EventType = iota + 1
	EventStockAdjusted
	EventProductChanged
	EventProfileUpdated
	EventSettingsChanged
	EventUserSignedIn
	EventUserSignedOut
	EventBackendConnected
	EventBackendDisconnected
	EventMessagingConnected
	EventMessagingDisconnected
)

func (t EventType) String() string {
	switch t {
	case EventOrderStatusChanged:
		return "order_status_changed"
	case EventStockAdjusted:
		return "stock_adjusted"
	case EventProductChanged:
		return "product_changed"
	case EventProfileUpdated:
		return "profile_updated"
	case EventSettingsChanged:
		return "settings_changed"
	case EventUserSignedIn:
		return "user_signed_in"
	case EventUserSignedOut:
		return "user_signed_out"
	case EventBackendConnected:
		return "backend_connected"
	case EventBackendDisconnected:
		return "backend_disconnected"
	case EventMessagingConnected:
		return "messaging_connected"
	case EventMessagingDisconnected:
		return "messaging_disconnected"
	default:
		return "unknown"
	}
}

// --- Event payloads ---

type OrderStatusChangedEvent struct {
	OrderID    string
	CustomerID string
	OldStatus  string
	NewStatus  string
	Actor      string
}

type StockAdjustedEvent struct {
	ProductID  string
	Name       string
	Delta      int
	StockAfter int
	Reason     string
	Actor      string
}

type ProductChangedEvent struct {
	ProductID string
	Name      string
	Action    string // "created", "updated", "deleted"
	Actor     string
}

type ProfileUpdatedEvent struct {
	ProfileID string
	Field     string
	OldValue  string
	NewValue  string
	Actor     string
}

type SettingsChangedEvent struct {
	Key      string
	OldValue string
	NewValue string
	Actor    string
}

type SessionEvent struct {
	Email    string
	Provider string
}

type ConnectionEvent struct {
	Detail string
}
