package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/security/validation"
	"github.com/username/fundfolio/backend/src/services"
	"github.com/username/fundfolio/backend/src/utils"
)

type TransactionHandler struct {
	importService services.ImportService
}

func NewTransactionHandler(importService services.ImportService) *TransactionHandler {
	return &TransactionHandler{importService: importService}
}

// HandleGetTransactions returns the user's full transaction log, most
// recent first.
func (h *TransactionHandler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	transactions, err := services.FetchUserTransactions(userID)
	if err != nil {
		logger.L.Error("Failed to fetch transactions", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to fetch transactions", http.StatusInternalServerError)
		return
	}

	// Stored ascending for aggregation; clients want newest first.
	for i, j := 0, len(transactions)-1; i < j; i, j = i+1, j-1 {
		transactions[i], transactions[j] = transactions[j], transactions[i]
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}

// HandleDeleteAllTransactions wipes the user's transaction log.
func (h *TransactionHandler) HandleDeleteAllTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	deleted, err := services.DeleteAllUserTransactions(userID)
	if err != nil {
		logger.L.Error("Failed to delete transactions", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to delete transactions", http.StatusInternalServerError)
		return
	}
	h.importService.InvalidateUserCache(userID)

	logger.L.Info("Deleted all transactions", "userID", userID, "count", deleted)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"deleted": deleted})
}

// HandleExportTransactions streams the user's log as CSV. Text fields
// are sanitized so the export cannot carry spreadsheet formula
// injection payloads.
func (h *TransactionHandler) HandleExportTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	transactions, err := services.FetchUserTransactions(userID)
	if err != nil {
		logger.L.Error("Failed to fetch transactions for export", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to export transactions", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("transactions_%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Date", "Fund", "Money Source", "Activity", "Units", "Unit Price", "Amount"}); err != nil {
		logger.L.Error("Failed to write CSV header", "error", err)
		return
	}

	for _, tx := range transactions {
		record := []string{
			tx.Date,
			validation.SanitizeForFormulaInjection(tx.Fund),
			validation.SanitizeForFormulaInjection(tx.MoneySource),
			validation.SanitizeForFormulaInjection(tx.Activity),
			strconv.FormatFloat(tx.Units, 'f', 4, 64),
			strconv.FormatFloat(tx.UnitPrice, 'f', 4, 64),
			strconv.FormatFloat(tx.Amount, 'f', 2, 64),
		}
		if err := writer.Write(record); err != nil {
			logger.L.Error("Failed to write CSV record", "error", err)
			return
		}
	}
}
