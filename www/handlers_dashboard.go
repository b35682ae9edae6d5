package www

import (
	"net/http"

	"storedesk/dashboard"
)

func (h *Handlers) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Dashboard().Stats(r.Context())
	data := map[string]any{
		"Page":  "dashboard",
		"Stats": stats,
	}
	h.renderPage(w, r, "dashboard.html", data, err, dashboard.LoadErrorMessage)
}
