package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/username/fundfolio/backend/src/config"
	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/security/validation"
	"github.com/username/fundfolio/backend/src/services"
	"github.com/username/fundfolio/backend/src/utils"
)

type ImportHandler struct {
	importService services.ImportService
}

func NewImportHandler(importService services.ImportService) *ImportHandler {
	return &ImportHandler{importService: importService}
}

// HandleFileImport accepts a multipart CSV upload and runs it through
// the ingestion pipeline. The "source" form value selects the parser
// and defaults to "generic".
func (h *ImportHandler) HandleFileImport(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.Cfg.MaxUploadSizeBytes)
	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		utils.SendJSONError(w, "Uploaded file is too large or the form is malformed", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.SendJSONError(w, "No file provided in 'file' form field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := validation.ValidateClientContentType(header.Header.Get("Content-Type")); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}
	if _, err := validation.ValidateFileContentByMagicBytes(file); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}

	source := r.FormValue("source")
	if source == "" {
		source = "generic"
	}

	result, err := h.importService.ProcessFileImport(file, userID, source)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownSource):
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrParsingFailed):
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrNoTransactions):
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			logger.L.Error("File import failed", "userID", userID, "filename", header.Filename, "error", err)
			utils.SendJSONError(w, "Failed to process import", http.StatusInternalServerError)
		}
		return
	}

	logger.L.Info("File import completed",
		"userID", userID,
		"filename", header.Filename,
		"source", source,
		"imported", result.Dedup.Stats.Imported,
		"skipped", result.Dedup.Stats.Skipped,
		"conflicts", result.Dedup.Stats.Conflicts,
		"errors", result.Dedup.Stats.Errors)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// HandleBatchImport accepts a JSON array of transactions, typically
// re-submitted conflict rows the user has reviewed.
func (h *ImportHandler) HandleBatchImport(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var candidates []models.Transaction
	if err := json.NewDecoder(r.Body).Decode(&candidates); err != nil {
		utils.SendJSONError(w, "Invalid request body: expected a JSON array of transactions", http.StatusBadRequest)
		return
	}

	result, err := h.importService.ProcessBatchImport(candidates, userID)
	if err != nil {
		if errors.Is(err, services.ErrNoTransactions) {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.L.Error("Batch import failed", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to process import", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
