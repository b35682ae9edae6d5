package engine

import (
	"fmt"
)

func (e *Engine) wireEventHandlers() {
	// Order status changes: audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(OrderStatusChangedEvent)
		e.logFn("engine: order %s %s -> %s by %s", ev.OrderID, ev.OldStatus, ev.NewStatus, ev.Actor)
		e.audit("order", ev.OrderID, "status", ev.OldStatus, ev.NewStatus, ev.Actor)
	}, EventOrderStatusChanged)

	// Stock adjustments: audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(StockAdjustedEvent)
		detail := fmt.Sprintf("%+d -> %d", ev.Delta, ev.StockAfter)
		if ev.Reason != "" {
			detail += " (" + ev.Reason + ")"
		}
		e.audit("product", ev.ProductID, "stock_adjusted", "", detail, ev.Actor)
		if ev.StockAfter < e.LowStockThreshold() {
			e.logFn("engine: %s is low on stock (%d)", ev.Name, ev.StockAfter)
		}
	}, EventStockAdjusted)

	// Catalogue changes: audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ProductChangedEvent)
		e.audit("product", ev.ProductID, ev.Action, "", ev.Name, ev.Actor)
	}, EventProductChanged)

	// Profile edits from Settings: audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ProfileUpdatedEvent)
		e.audit("profile", ev.ProfileID, ev.Field, ev.OldValue, ev.NewValue, ev.Actor)
	}, EventProfileUpdated)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(SettingsChangedEvent)
		e.logFn("engine: setting %s changed %s -> %s by %s", ev.Key, ev.OldValue, ev.NewValue, ev.Actor)
		e.audit("settings", ev.Key, "update", ev.OldValue, ev.NewValue, ev.Actor)
	}, EventSettingsChanged)

	// Sign-in / sign-out: audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(SessionEvent)
		action := "sign_in"
		if evt.Type == EventUserSignedOut {
			action = "sign_out"
		}
		e.audit("session", ev.Email, action, "", ev.Provider, ev.Email)
	}, EventUserSignedIn, EventUserSignedOut)

	// Connection changes: log
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ConnectionEvent)
		e.logFn("engine: %s: %s", evt.Type, ev.Detail)
	}, EventBackendConnected, EventBackendDisconnected, EventMessagingConnected, EventMessagingDisconnected)
}

func (e *Engine) audit(entityType, entityID, action, oldValue, newValue, actor string) {
	if actor == "" {
		actor = "system"
	}
	if err := e.db.AppendAudit(entityType, entityID, action, oldValue, newValue, actor); err != nil {
		e.logFn("engine: audit %s %s: %v", entityType, entityID, err)
	}
}
