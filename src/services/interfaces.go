package services

import (
	"errors"
	"io"
	"time"

	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/processors"
)

var (
	ErrParsingFailed   = errors.New("parsing failed")
	ErrNoTransactions  = errors.New("no transactions in input")
	ErrUnknownSource   = errors.New("unknown import source")
	ErrPriceFetch      = errors.New("price fetch failed")
	ErrSnapshotFailure = errors.New("snapshot backfill failed")
)

// ImportResult is what an import returns to the client: the dedup
// breakdown plus the id assigned to this batch.
type ImportResult struct {
	BatchID string                  `json:"batchId"`
	Dedup   *processors.DedupResult `json:"dedup"`
}

// ImportService runs the ingestion pipeline: parse (file path only),
// fingerprint, deduplicate against the user's stored log, insert and
// invalidate caches.
type ImportService interface {
	ProcessFileImport(fileReader io.Reader, userID int64, source string) (*ImportResult, error)
	ProcessBatchImport(candidates []models.Transaction, userID int64) (*ImportResult, error)
	InvalidateUserCache(userID int64)
}

// PortfolioService serves aggregation results over the stored log.
type PortfolioService interface {
	GetPortfolio(userID int64, withLivePrices bool) (*models.AggregationResult, error)
	GetTimeline(userID int64) ([]models.TimelinePoint, error)
}

// PriceInfo is one live quote as served to clients.
type PriceInfo struct {
	Status        string  `json:"status"` // "OK" | "UNAVAILABLE"
	Price         float64 `json:"price,omitempty"`
	ChangePercent float64 `json:"changePercent,omitempty"`
	Currency      string  `json:"currency,omitempty"`
}

// PriceService fetches live quotes for ticker symbols.
type PriceService interface {
	GetCurrentPrices(tickers []string) (map[string]PriceInfo, error)
	GetLivePricesForFunds(funds []string) (map[string]models.LivePrice, error)
}

// SnapshotService backfills and serves the daily portfolio history.
type SnapshotService interface {
	BackfillSnapshots(userID int64, endDate time.Time) (int, error)
	GetSnapshots(userID int64, from, to string) ([]models.PortfolioSnapshot, error)
	GetHoldingSnapshots(userID int64, date string) ([]models.HoldingSnapshot, error)
}
