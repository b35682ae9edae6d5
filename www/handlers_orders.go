package www

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"storedesk/fulfillment"
	"storedesk/report"
	"storedesk/store"
)

func (h *Handlers) handleOrders(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !fulfillment.IsValidStatus(status) {
		status = ""
	}
	limit := queryInt(r, "limit", 100)

	orders, err := h.engine.DB().ListOrders(status, limit)
	data := map[string]any{
		"Page":         "orders",
		"Orders":       orders,
		"Statuses":     fulfillment.Statuses,
		"FilterStatus": status,
	}
	h.renderPage(w, r, "orders.html", data, err, "Failed to load orders")
}

func (h *Handlers) handleOrderDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	order, err := h.engine.DB().GetOrder(id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	var history []*store.OrderHistory
	if err == nil {
		history, err = h.engine.DB().ListOrderHistory(id)
	}
	data := map[string]any{
		"Page":    "orders",
		"Order":   order,
		"History": history,
	}
	if order != nil {
		data["NextStatuses"] = fulfillment.NextStatuses(order.Status)
	}
	h.renderPage(w, r, "order_detail.html", data, err, "Failed to load order")
}

func (h *Handlers) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	back := "/orders/" + url.PathEscape(id)

	_, err := h.engine.Fulfillment().UpdateStatus(r.Context(), id, r.FormValue("status"), h.getUsername(r))
	switch {
	case err == nil:
		http.Redirect(w, r, back, http.StatusSeeOther)
	case errors.Is(err, store.ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, fulfillment.ErrInvalidTransition):
		redirectWithError(w, r, back, "That status change is not allowed")
	default:
		log.Printf("www: update order %s: %v", id, err)
		redirectWithError(w, r, back, "Failed to update order")
	}
}

func (h *Handlers) handleOrdersExport(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !fulfillment.IsValidStatus(status) {
		status = ""
	}
	orders, err := h.engine.DB().ListOrders(status, queryInt(r, "limit", 10000))
	if err != nil {
		log.Printf("www: export orders: %v", err)
		redirectWithError(w, r, "/orders", "Failed to export orders")
		return
	}
	writeAttachment(w, "orders.xlsx", func(w http.ResponseWriter) error {
		return report.WriteOrders(w, orders)
	})
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func redirectWithError(w http.ResponseWriter, r *http.Request, path, msg string) {
	http.Redirect(w, r, path+"?error="+url.QueryEscape(msg), http.StatusSeeOther)
}

func writeAttachment(w http.ResponseWriter, filename string, write func(http.ResponseWriter) error) {
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := write(w); err != nil {
		log.Printf("www: write %s: %v", filename, err)
	}
}
