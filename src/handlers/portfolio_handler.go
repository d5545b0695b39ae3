package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/services"
	"github.com/username/fundfolio/backend/src/utils"
)

type PortfolioHandler struct {
	portfolioService services.PortfolioService
}

func NewPortfolioHandler(portfolioService services.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{portfolioService: portfolioService}
}

// writeWithETag serves a JSON payload with an ETag and honors
// If-None-Match so unchanged portfolios cost the client nothing.
func writeWithETag(w http.ResponseWriter, r *http.Request, payload interface{}) {
	etag, err := utils.GenerateETag(payload)
	if err != nil {
		logger.L.Warn("Failed to generate ETag", "error", err)
	} else {
		w.Header().Set("ETag", etag)
		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.Header().Set("Cache-Control", "no-cache, private")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

// HandleGetPortfolio returns the aggregated portfolio. Live quote
// enrichment is on by default and can be disabled with ?live=false.
func (h *PortfolioHandler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	withLivePrices := r.URL.Query().Get("live") != "false"

	result, err := h.portfolioService.GetPortfolio(userID, withLivePrices)
	if err != nil {
		logger.L.Error("Failed to build portfolio", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to build portfolio", http.StatusInternalServerError)
		return
	}

	writeWithETag(w, r, result)
}

// HandleGetTimeline returns the contributions-over-time series.
func (h *PortfolioHandler) HandleGetTimeline(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	timeline, err := h.portfolioService.GetTimeline(userID)
	if err != nil {
		logger.L.Error("Failed to build timeline", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to build timeline", http.StatusInternalServerError)
		return
	}

	writeWithETag(w, r, timeline)
}

// HandleGetOpenHoldings returns the open position map without live
// quote enrichment.
func (h *PortfolioHandler) HandleGetOpenHoldings(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	result, err := h.portfolioService.GetPortfolio(userID, false)
	if err != nil {
		logger.L.Error("Failed to build holdings", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to build holdings", http.StatusInternalServerError)
		return
	}

	writeWithETag(w, r, result.OpenPositions)
}

// HandleGetClosedHoldings returns the closed position map with the
// realized gain captured when each bucket closed.
func (h *PortfolioHandler) HandleGetClosedHoldings(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	result, err := h.portfolioService.GetPortfolio(userID, false)
	if err != nil {
		logger.L.Error("Failed to build holdings", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to build holdings", http.StatusInternalServerError)
		return
	}

	writeWithETag(w, r, result.ClosedPositions)
}
