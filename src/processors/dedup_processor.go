package processors

import (
	"fmt"
	"strings"

	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/utils"
)

// StrategySkipDuplicates drops exact/enhanced matches and sidelines
// conflicts; everything else is admitted. It is the only strategy the
// import pipeline uses.
const StrategySkipDuplicates = "skip_duplicates"

type DedupOptions struct {
	Strategy          string
	DateToleranceDays int
}

// DuplicateRecord is a candidate that was skipped, with the kind of
// match that condemned it.
type DuplicateRecord struct {
	Transaction models.Transaction `json:"transaction"`
	MatchType   string             `json:"matchType"` // "exact" | "enhanced"
}

// DedupError is a candidate that could not be processed at all. One bad
// row never aborts the batch.
type DedupError struct {
	Transaction models.Transaction `json:"transaction"`
	Message     string             `json:"message"`
}

type DedupStats struct {
	Total     int `json:"total"`
	Imported  int `json:"imported"`
	Skipped   int `json:"skipped"`
	Conflicts int `json:"conflicts"`
	Errors    int `json:"errors"`
}

type DedupResult struct {
	Imported   []models.Transaction `json:"imported"`
	Duplicates []DuplicateRecord    `json:"duplicates"`
	Conflicts  []Conflict           `json:"conflicts"`
	Errors     []DedupError         `json:"errors"`
	Stats      DedupStats           `json:"stats"`
}

type DedupProcessor struct {
	fingerprints *FingerprintProcessor
}

func NewDedupProcessor(fingerprints *FingerprintProcessor) *DedupProcessor {
	return &DedupProcessor{fingerprints: fingerprints}
}

// DeduplicateBatch classifies each candidate against the known set and
// partitions the batch into imported, duplicate, conflicting and
// erroneous records. Every candidate lands in exactly one partition, so
// Imported + Skipped + Conflicts + Errors always equals Total.
//
// Candidates are compared against the known set only, not against each
// other: two identical rows inside one batch are both admitted and left
// for the store's uniqueness constraint to resolve. This mirrors the
// batch-vs-existing-log comparison model of the import pipeline and is a
// documented limitation, not an oversight.
func (p *DedupProcessor) DeduplicateBatch(known, candidates []models.Transaction, opts DedupOptions) *DedupResult {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategySkipDuplicates
	}

	result := &DedupResult{
		Imported:   []models.Transaction{},
		Duplicates: []DuplicateRecord{},
		Conflicts:  []Conflict{},
		Errors:     []DedupError{},
		Stats:      DedupStats{Total: len(candidates)},
	}

	classifyOpts := ClassifyOptions{DateToleranceDays: opts.DateToleranceDays}

	for _, candidate := range candidates {
		if err := validateCandidate(candidate); err != nil {
			result.Errors = append(result.Errors, DedupError{Transaction: candidate, Message: err.Error()})
			result.Stats.Errors++
			continue
		}

		classification := p.fingerprints.Classify(candidate, known, classifyOpts)

		switch {
		case len(classification.ExactMatches) > 0:
			result.Duplicates = append(result.Duplicates, DuplicateRecord{Transaction: candidate, MatchType: "exact"})
			result.Stats.Skipped++
		case len(classification.EnhancedMatches) > 0:
			result.Duplicates = append(result.Duplicates, DuplicateRecord{Transaction: candidate, MatchType: "enhanced"})
			result.Stats.Skipped++
		case len(classification.Conflicts) > 0:
			result.Conflicts = append(result.Conflicts, classification.Conflicts...)
			result.Stats.Conflicts++
		default:
			admitted := candidate
			p.fingerprints.Stamp(&admitted)
			result.Imported = append(result.Imported, admitted)
			result.Stats.Imported++
		}
	}

	return result
}

func validateCandidate(tx models.Transaction) error {
	if strings.TrimSpace(tx.Fund) == "" {
		return fmt.Errorf("transaction has no fund")
	}
	if _, err := utils.ParseDate(tx.Date); err != nil {
		return fmt.Errorf("invalid transaction date: %w", err)
	}
	return nil
}
