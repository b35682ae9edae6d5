package www

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"storedesk/fulfillment"
	"storedesk/store"
)

func (h *Handlers) handleInventory(w http.ResponseWriter, r *http.Request) {
	threshold := h.engine.LowStockThreshold()
	low, err := h.engine.DB().ListLowStockProducts(threshold)
	var adjustments []*store.StockAdjustment
	var products []*store.Product
	if err == nil {
		adjustments, err = h.engine.DB().ListStockAdjustments(50)
	}
	if err == nil {
		products, err = h.engine.DB().ListProducts()
	}
	data := map[string]any{
		"Page":        "inventory",
		"Threshold":   threshold,
		"LowStock":    low,
		"Products":    products,
		"Adjustments": adjustments,
	}
	h.renderPage(w, r, "inventory.html", data, err, "Failed to load inventory")
}

func (h *Handlers) handleInventoryAdjust(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	delta, err := strconv.Atoi(strings.TrimSpace(r.FormValue("delta")))
	if err != nil || delta == 0 {
		redirectWithError(w, r, "/inventory", "Adjustment must be a non-zero whole number")
		return
	}
	productID := r.FormValue("product_id")
	_, err = h.engine.Fulfillment().AdjustStock(r.Context(), productID, delta, r.FormValue("reason"), h.getUsername(r))
	switch {
	case err == nil:
		http.Redirect(w, r, "/inventory", http.StatusSeeOther)
	case errors.Is(err, store.ErrNotFound):
		redirectWithError(w, r, "/inventory", "Product not found")
	case errors.Is(err, store.ErrInsufficientStock):
		redirectWithError(w, r, "/inventory", "Stock cannot go below zero")
	case errors.Is(err, fulfillment.ErrInvalidProduct):
		redirectWithError(w, r, "/inventory", "Adjustment must be a non-zero whole number")
	default:
		log.Printf("www: adjust stock %s: %v", productID, err)
		redirectWithError(w, r, "/inventory", "Failed to adjust stock")
	}
}
