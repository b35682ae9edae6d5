package www

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"storedesk/report"
	"storedesk/rpc"
	"storedesk/store"
)

func (h *Handlers) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	days := analyticsDays(r)
	daily, segments, err := h.analytics(r.Context(), days)
	data := map[string]any{
		"Page":     "analytics",
		"Days":     days,
		"Daily":    daily,
		"Segments": segments,
	}
	h.renderPage(w, r, "analytics.html", data, err, "Failed to load analytics")
}

func (h *Handlers) handleAnalyticsExport(w http.ResponseWriter, r *http.Request) {
	daily, err := h.dailyStats(r.Context(), analyticsDays(r))
	if err != nil {
		log.Printf("www: export analytics: %v", err)
		redirectWithError(w, r, "/analytics", "Failed to export analytics")
		return
	}
	writeAttachment(w, "daily-stats.xlsx", func(w http.ResponseWriter) error {
		return report.WriteDailyStats(w, daily)
	})
}

// analytics reads the daily series and the customer segments through the
// same procedures the JSON API exposes.
func (h *Handlers) analytics(ctx context.Context, days int) ([]store.DailyStat, []store.CustomerSegment, error) {
	daily, err := h.dailyStats(ctx, days)
	if err != nil {
		return nil, nil, err
	}
	v, err := h.engine.RPC().Call(ctx, rpc.ProcCustomerSegments, nil)
	if err != nil {
		return nil, nil, err
	}
	segments, ok := v.([]store.CustomerSegment)
	if !ok {
		return nil, nil, fmt.Errorf("%s returned %T", rpc.ProcCustomerSegments, v)
	}
	return daily, segments, nil
}

func (h *Handlers) dailyStats(ctx context.Context, days int) ([]store.DailyStat, error) {
	params, _ := json.Marshal(map[string]int{"days": days})
	v, err := h.engine.RPC().Call(ctx, rpc.ProcDailyStats, params)
	if err != nil {
		return nil, err
	}
	daily, ok := v.([]store.DailyStat)
	if !ok {
		return nil, fmt.Errorf("%s returned %T", rpc.ProcDailyStats, v)
	}
	return daily, nil
}

func analyticsDays(r *http.Request) int {
	days := queryInt(r, "days", 30)
	if days > 366 {
		days = 366
	}
	return days
}
