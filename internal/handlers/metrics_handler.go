package handlers

import (
	"net/http"
	"strconv"

	"chatroom-server/internal/metrics"
)

type MetricsResponse struct {
	Current   *metrics.MetricsSnapshot  `json:"current"`
	Snapshots []metrics.MetricsSnapshot `json:"snapshots,omitempty"`
	Hourly    []metrics.MetricsHourly   `json:"hourly,omitempty"`
}

// GetMetricsHistoryHandler returns the running totals plus persisted history.
// ?minutes (max 1440) selects snapshots and ?hours (max 168) hourly rollups.
func GetMetricsHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	resp := MetricsResponse{Current: MetricsService.Current()}

	if raw := r.URL.Query().Get("minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 || minutes > 1440 {
			badRequest(w, "minutes must be between 1 and 1440")
			return
		}
		snaps, err := MetricsService.GetSnapshotHistory(r.Context(), minutes)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Snapshots = snaps
	}

	if raw := r.URL.Query().Get("hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 || hours > 168 {
			badRequest(w, "hours must be between 1 and 168")
			return
		}
		hourly, err := MetricsService.GetHourlyMetrics(r.Context(), hours)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Hourly = hourly
	}

	writeJSON(w, http.StatusOK, resp)
}
