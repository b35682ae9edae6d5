package www

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"storedesk/rpc"
	"storedesk/store"
)

func (h *Handlers) apiListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.engine.DB().ListOrders(r.URL.Query().Get("status"), queryInt(r, "limit", 100))
	if err != nil {
		h.apiFailure(w, "list orders", err)
		return
	}
	h.jsonOK(w, nonNil(orders))
}

func (h *Handlers) apiGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.engine.DB().GetOrder(chi.URLParam(r, "id"))
	if err != nil {
		h.apiFailure(w, "get order", err)
		return
	}
	history, err := h.engine.DB().ListOrderHistory(order.ID)
	if err != nil {
		h.apiFailure(w, "order history", err)
		return
	}
	h.jsonOK(w, map[string]any{"order": order, "history": nonNil(history)})
}

func (h *Handlers) apiListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.engine.DB().ListProducts()
	if err != nil {
		h.apiFailure(w, "list products", err)
		return
	}
	h.jsonOK(w, nonNil(products))
}

func (h *Handlers) apiListCustomers(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.engine.DB().ListProfiles(queryInt(r, "limit", 200))
	if err != nil {
		h.apiFailure(w, "list customers", err)
		return
	}
	h.jsonOK(w, nonNil(profiles))
}

func (h *Handlers) apiLowStock(w http.ResponseWriter, r *http.Request) {
	var params json.RawMessage
	if v := r.URL.Query().Get("threshold"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.jsonError(w, "invalid threshold", http.StatusBadRequest)
			return
		}
		params, _ = json.Marshal(map[string]int{"threshold": n})
	}
	h.callRPC(w, r, rpc.ProcLowStockProducts, params)
}

func (h *Handlers) apiDailyStats(w http.ResponseWriter, r *http.Request) {
	var params json.RawMessage
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.jsonError(w, "invalid days", http.StatusBadRequest)
			return
		}
		params, _ = json.Marshal(map[string]int{"days": n})
	}
	h.callRPC(w, r, rpc.ProcDailyStats, params)
}

func (h *Handlers) apiDashboardStats(w http.ResponseWriter, r *http.Request) {
	h.callRPC(w, r, rpc.ProcDashboardStats, nil)
}

func (h *Handlers) apiCallRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		h.jsonError(w, "could not read request body", http.StatusBadRequest)
		return
	}
	var params json.RawMessage
	if len(body) > 0 {
		if !json.Valid(body) {
			h.jsonError(w, "request body must be JSON", http.StatusBadRequest)
			return
		}
		params = body
	}
	h.callRPC(w, r, chi.URLParam(r, "name"), params)
}

func (h *Handlers) callRPC(w http.ResponseWriter, r *http.Request, name string, params json.RawMessage) {
	result, err := h.engine.RPC().Call(r.Context(), name, params)
	if err != nil {
		h.apiFailure(w, name, err)
		return
	}
	h.jsonOK(w, result)
}

// apiFailure maps err to a status. Unexpected errors are logged and reported generically.
func (h *Handlers) apiFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.jsonError(w, "not found", http.StatusNotFound)
	case errors.Is(err, rpc.ErrUnknownProcedure):
		h.jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, rpc.ErrInvalidParams):
		h.jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("www: api %s: %v", op, err)
		h.jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
