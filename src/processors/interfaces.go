package processors

import (
	"github.com/username/fundfolio/backend/src/models"
)

// Fingerprinter computes deterministic duplicate-detection hashes and
// classifies candidates against known transactions.
type Fingerprinter interface {
	Compute(tx models.Transaction) Fingerprint
	Stamp(tx *models.Transaction)
	Classify(candidate models.Transaction, known []models.Transaction, opts ClassifyOptions) ClassificationResult
}

// Deduplicator filters a batch of candidate transactions against the
// already-stored log.
type Deduplicator interface {
	DeduplicateBatch(known, candidates []models.Transaction, opts DedupOptions) *DedupResult
}

// Aggregator turns the reconciled transaction log into positions, totals
// and a timeline.
type Aggregator interface {
	Aggregate(transactions []models.Transaction, livePrices map[string]models.LivePrice) *models.AggregationResult
}
