package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/services"
	"github.com/username/fundfolio/backend/src/utils"
)

type PriceHandler struct {
	priceService services.PriceService
}

func NewPriceHandler(priceService services.PriceService) *PriceHandler {
	return &PriceHandler{priceService: priceService}
}

// HandleGetPrices returns live quotes. Pass ?funds=A,B to resolve fund
// names through the ticker map, or ?tickers=VTI,VOO for raw symbols.
func (h *PriceHandler) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	if _, ok := GetUserIDFromContext(r.Context()); !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	if funds := splitParam(r.URL.Query().Get("funds")); len(funds) > 0 {
		prices, err := h.priceService.GetLivePricesForFunds(funds)
		if err != nil {
			logger.L.Error("Failed to fetch fund prices", "funds", funds, "error", err)
			utils.SendJSONError(w, "Failed to fetch prices", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(prices)
		return
	}

	tickers := splitParam(r.URL.Query().Get("tickers"))
	if len(tickers) == 0 {
		utils.SendJSONError(w, "Provide a 'funds' or 'tickers' query parameter", http.StatusBadRequest)
		return
	}

	quotes, err := h.priceService.GetCurrentPrices(tickers)
	if err != nil {
		logger.L.Error("Failed to fetch ticker prices", "tickers", tickers, "error", err)
		utils.SendJSONError(w, "Failed to fetch prices", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(quotes)
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
