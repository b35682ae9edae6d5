package fulfillment

// Emitter bridges fulfillment events to the engine's event bus.
type Emitter interface {
	EmitOrderStatusChanged(orderID, customerID, oldStatus, newStatus, actor string)
	EmitStockAdjusted(productID, name string, delta, stockAfter int, reason, actor string)
	EmitProductChanged(productID, name, action, actor string)
}

// Outbound reports whether a broker is configured to receive outbox messages.
type Outbound interface {
	Enabled() bool
}
