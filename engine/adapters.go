package engine

// fulfillmentEmitter bridges the fulfillment package's emitter interface to the EventBus.
type fulfillmentEmitter struct {
	bus *EventBus
}

func (e *fulfillmentEmitter) EmitOrderStatusChanged(orderID, customerID, oldStatus, newStatus, actor string) {
	e.bus.Emit(Event{Type: EventOrderStatusChanged, Payload: OrderStatusChangedEvent{
		OrderID:    orderID,
		CustomerID: customerID,
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
		Actor:      actor,
	}})
}

func (e *fulfillmentEmitter) EmitStockAdjusted(productID, name string, delta, stockAfter int, reason, actor string) {
	e.bus.Emit(Event{Type: EventStockAdjusted, Payload: StockAdjustedEvent{
		ProductID:  productID,
		Name:       name,
		Delta:      delta,
		StockAfter: stockAfter,
		Reason:     reason,
		Actor:      actor,
	}})
}

func (e *fulfillmentEmitter) EmitProductChanged(productID, name, action, actor string) {
	e.bus.Emit(Event{Type: EventProductChanged, Payload: ProductChangedEvent{
		ProductID: productID,
		Name:      name,
		Action:    action,
		Actor:     actor,
	}})
}
