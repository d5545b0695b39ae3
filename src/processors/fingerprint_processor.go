package processors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/utils"
)

// Fingerprint holds the three duplicate-detection hashes of a transaction.
//
//   - PrimaryHash digests (date, amount, fund, activity): exact duplicates.
//   - FuzzyHash digests (date, amount, fund): near-duplicates that differ
//     only in how the activity was worded.
//   - EnhancedHash digests (date, amount, fund, units, unitPrice): confirms
//     identity when the economic detail matches but the activity does not.
type Fingerprint struct {
	PrimaryHash  string `json:"primaryHash"`
	FuzzyHash    string `json:"fuzzyHash"`
	EnhancedHash string `json:"enhancedHash"`
}

type FingerprintProcessor struct{}

func NewFingerprintProcessor() *FingerprintProcessor { return &FingerprintProcessor{} }

// Compute derives the three fingerprints from normalized transaction
// fields. The function is pure: no salts, no clock, so re-importing the
// same external data always reproduces the same hashes.
func (p *FingerprintProcessor) Compute(tx models.Transaction) Fingerprint {
	date, _ := utils.NormalizeDate(tx.Date)
	amount := fmt.Sprintf("%.2f", math.Abs(models.SafeNumber(tx.Amount)))
	units := fmt.Sprintf("%.4f", math.Abs(models.SafeNumber(tx.Units)))
	price := fmt.Sprintf("%.4f", math.Abs(models.SafeNumber(tx.UnitPrice)))
	fund := normalizeText(tx.Fund)
	activity := normalizeText(tx.Activity)

	return Fingerprint{
		PrimaryHash:  digest(date, amount, fund, activity),
		FuzzyHash:    digest(date, amount, fund),
		EnhancedHash: digest(date, amount, fund, units, price),
	}
}

// Stamp populates the transaction's fingerprint fields in place.
func (p *FingerprintProcessor) Stamp(tx *models.Transaction) {
	fp := p.Compute(*tx)
	tx.PrimaryHash = fp.PrimaryHash
	tx.FuzzyHash = fp.FuzzyHash
	tx.EnhancedHash = fp.EnhancedHash
}

// ClassifyOptions tunes candidate comparison. A DateToleranceDays of 0
// disables the date pre-filter.
type ClassifyOptions struct {
	DateToleranceDays int
}

// Conflict records a fuzzy match whose activity disagrees with the
// candidate's: same date, amount and fund, but the records claim
// different things happened. Conflicts are data for manual review, never
// resolved silently; the full candidate record is carried so a reviewer
// can resubmit it through the batch import route.
type Conflict struct {
	Known             models.Transaction `json:"known"`
	Candidate         models.Transaction `json:"candidate"`
	KnownActivity     string             `json:"knownActivity"`
	CandidateActivity string             `json:"candidateActivity"`
}

type ClassificationResult struct {
	ExactMatches    []models.Transaction `json:"exactMatches"`
	EnhancedMatches []models.Transaction `json:"enhancedMatches"`
	FuzzyMatches    []models.Transaction `json:"fuzzyMatches"`
	Conflicts       []Conflict           `json:"conflicts"`
}

// HasDuplicate reports whether the candidate matched a known transaction
// closely enough to be skipped outright.
func (r *ClassificationResult) HasDuplicate() bool {
	return len(r.ExactMatches) > 0 || len(r.EnhancedMatches) > 0
}

// Classify compares one candidate against the full set of known
// transactions. Known entries without fingerprints are skipped: they are
// legacy rows that predate the reconciliation engine, not errors. Exact
// and enhanced matches take precedence over fuzzy ones, so a candidate
// with an exact match is never reported as only-fuzzy.
func (p *FingerprintProcessor) Classify(candidate models.Transaction, known []models.Transaction, opts ClassifyOptions) ClassificationResult {
	result := ClassificationResult{
		ExactMatches:    []models.Transaction{},
		EnhancedMatches: []models.Transaction{},
		FuzzyMatches:    []models.Transaction{},
		Conflicts:       []Conflict{},
	}

	fp := p.Compute(candidate)
	candidateDate, candidateDateErr := utils.ParseDate(candidate.Date)

	for _, existing := range known {
		if !existing.HasFingerprint() {
			continue
		}

		if opts.DateToleranceDays > 0 && candidateDateErr == nil {
			if existingDate, err := utils.ParseDate(existing.Date); err == nil {
				days := math.Abs(candidateDate.Sub(existingDate).Hours()) / 24
				if days > float64(opts.DateToleranceDays) {
					continue
				}
			}
		}

		switch {
		case existing.PrimaryHash != "" && existing.PrimaryHash == fp.PrimaryHash:
			result.ExactMatches = append(result.ExactMatches, existing)
		case existing.EnhancedHash != "" && existing.EnhancedHash == fp.EnhancedHash:
			result.EnhancedMatches = append(result.EnhancedMatches, existing)
		case existing.FuzzyHash != "" && existing.FuzzyHash == fp.FuzzyHash:
			result.FuzzyMatches = append(result.FuzzyMatches, existing)
			if !strings.EqualFold(strings.TrimSpace(existing.Activity), strings.TrimSpace(candidate.Activity)) {
				result.Conflicts = append(result.Conflicts, Conflict{
					Known:             existing,
					Candidate:         candidate,
					KnownActivity:     existing.Activity,
					CandidateActivity: candidate.Activity,
				})
			}
		}
	}

	return result
}

func digest(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
