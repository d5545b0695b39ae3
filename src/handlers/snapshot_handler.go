package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/services"
	"github.com/username/fundfolio/backend/src/utils"
)

type SnapshotHandler struct {
	snapshotService services.SnapshotService
}

func NewSnapshotHandler(snapshotService services.SnapshotService) *SnapshotHandler {
	return &SnapshotHandler{snapshotService: snapshotService}
}

// HandleBackfillSnapshots recomputes the user's daily history from
// their transaction log and historical closing prices.
func (h *SnapshotHandler) HandleBackfillSnapshots(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	count, err := h.snapshotService.BackfillSnapshots(userID, time.Now())
	if err != nil {
		logger.L.Error("Snapshot backfill failed", "userID", userID, "error", err)
		utils.SendJSONError(w, "Snapshot backfill failed", http.StatusInternalServerError)
		return
	}

	logger.L.Info("Snapshot backfill completed", "userID", userID, "snapshots", count)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"snapshots": count})
}

// HandleGetSnapshots returns the daily series, optionally bounded by
// ?from=YYYY-MM-DD and ?to=YYYY-MM-DD.
func (h *SnapshotHandler) HandleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	for _, bound := range []string{from, to} {
		if bound == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", bound); err != nil {
			utils.SendJSONError(w, "Date bounds must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}

	snapshots, err := h.snapshotService.GetSnapshots(userID, from, to)
	if err != nil {
		logger.L.Error("Failed to fetch snapshots", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to fetch snapshots", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshots)
}

// HandleGetHoldingSnapshots returns the per-fund detail behind one
// day's snapshot, selected with ?date=YYYY-MM-DD.
func (h *SnapshotHandler) HandleGetHoldingSnapshots(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		utils.SendJSONError(w, "A 'date' query parameter is required", http.StatusBadRequest)
		return
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		utils.SendJSONError(w, "Date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	holdings, err := h.snapshotService.GetHoldingSnapshots(userID, date)
	if err != nil {
		logger.L.Error("Failed to fetch holding snapshots", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to fetch holding snapshots", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(holdings)
}
