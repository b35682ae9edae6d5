package www

import (
	"net/http"
)

func (h *Handlers) handleCustomers(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.engine.DB().ListProfiles(queryInt(r, "limit", 200))
	data := map[string]any{
		"Page":      "customers",
		"Customers": profiles,
	}
	h.renderPage(w, r, "customers.html", data, err, "Failed to load customers")
}
