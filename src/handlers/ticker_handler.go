package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/username/fundfolio/backend/src/database"
	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/model"
	"github.com/username/fundfolio/backend/src/utils"
)

type tickerMappingPayload struct {
	FundName        string  `json:"fundName"`
	TickerSymbol    string  `json:"tickerSymbol"`
	ConversionRatio float64 `json:"conversionRatio"`
}

// HandleSaveTickerMapping creates or updates a fund-to-ticker mapping.
// Mappings feed live pricing and snapshot backfill, which only price
// funds they can resolve to a ticker.
func HandleSaveTickerMapping(w http.ResponseWriter, r *http.Request) {
	if _, ok := GetUserIDFromContext(r.Context()); !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var payload tickerMappingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	fundName := strings.TrimSpace(payload.FundName)
	tickerSymbol := strings.ToUpper(strings.TrimSpace(payload.TickerSymbol))
	if fundName == "" || tickerSymbol == "" {
		utils.SendJSONError(w, "fundName and tickerSymbol are required", http.StatusBadRequest)
		return
	}
	if payload.ConversionRatio < 0 {
		utils.SendJSONError(w, "conversionRatio cannot be negative", http.StatusBadRequest)
		return
	}

	mapping := model.FundTickerMap{
		FundName:        fundName,
		TickerSymbol:    tickerSymbol,
		ConversionRatio: payload.ConversionRatio,
	}
	if err := model.UpsertMapping(database.DB, mapping); err != nil {
		logger.L.Error("Failed to save ticker mapping", "fund", fundName, "error", err)
		utils.SendJSONError(w, "Failed to save ticker mapping", http.StatusInternalServerError)
		return
	}

	logger.L.Info("Ticker mapping saved", "fund", fundName, "ticker", tickerSymbol)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"fundName":     fundName,
		"tickerSymbol": tickerSymbol,
	})
}

// HandleGetTickerMappings lists every saved fund-to-ticker mapping.
func HandleGetTickerMappings(w http.ResponseWriter, r *http.Request) {
	if _, ok := GetUserIDFromContext(r.Context()); !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	mappings, err := model.GetAllMappings(database.DB)
	if err != nil {
		logger.L.Error("Failed to list ticker mappings", "error", err)
		utils.SendJSONError(w, "Failed to list ticker mappings", http.StatusInternalServerError)
		return
	}
	if mappings == nil {
		mappings = []model.FundTickerMap{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(mappings)
}
