package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/fundfolio/backend/src/models"
)

func buyTx(date, fund string, units, price, amount float64) models.Transaction {
	return models.Transaction{
		Date:        date,
		Activity:    "Buy",
		Fund:        fund,
		MoneySource: "Employee PreTax",
		Units:       units,
		UnitPrice:   price,
		Amount:      amount,
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	p := NewFingerprintProcessor()
	tx := buyTx("2024-03-15", "VTI", 10, 100, 1000)

	first := p.Compute(tx)
	second := p.Compute(tx)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.PrimaryHash)
	assert.NotEmpty(t, first.FuzzyHash)
	assert.NotEmpty(t, first.EnhancedHash)
}

func TestComputeNormalizesCasingAndWhitespace(t *testing.T) {
	p := NewFingerprintProcessor()

	a := models.Transaction{Date: "2024-03-15", Activity: "Buy", Fund: "VTI", Amount: 1000}
	b := models.Transaction{Date: "03/15/2024", Activity: "  BUY ", Fund: " vti ", Amount: 1000}

	assert.Equal(t, p.Compute(a).PrimaryHash, p.Compute(b).PrimaryHash)
}

func TestComputeSignInsensitiveAmounts(t *testing.T) {
	p := NewFingerprintProcessor()

	a := models.Transaction{Date: "2024-03-15", Activity: "Fee", Fund: "VTI", Amount: -12.5}
	b := models.Transaction{Date: "2024-03-15", Activity: "Fee", Fund: "VTI", Amount: 12.5}

	assert.Equal(t, p.Compute(a).PrimaryHash, p.Compute(b).PrimaryHash)
}

func TestComputeDistinguishesActivities(t *testing.T) {
	p := NewFingerprintProcessor()

	buy := models.Transaction{Date: "2024-03-15", Activity: "Buy", Fund: "VTI", Amount: 1000}
	sell := models.Transaction{Date: "2024-03-15", Activity: "Sell", Fund: "VTI", Amount: 1000}

	assert.NotEqual(t, p.Compute(buy).PrimaryHash, p.Compute(sell).PrimaryHash)
	assert.Equal(t, p.Compute(buy).FuzzyHash, p.Compute(sell).FuzzyHash)
}

func TestStampPopulatesFingerprints(t *testing.T) {
	p := NewFingerprintProcessor()
	tx := buyTx("2024-03-15", "VTI", 10, 100, 1000)

	require.False(t, tx.HasFingerprint())
	p.Stamp(&tx)
	require.True(t, tx.HasFingerprint())

	fp := p.Compute(tx)
	assert.Equal(t, fp.PrimaryHash, tx.PrimaryHash)
	assert.Equal(t, fp.FuzzyHash, tx.FuzzyHash)
	assert.Equal(t, fp.EnhancedHash, tx.EnhancedHash)
}

func TestClassifyExactMatch(t *testing.T) {
	p := NewFingerprintProcessor()

	known := buyTx("2024-03-15", "VTI", 10, 100, 1000)
	p.Stamp(&known)

	result := p.Classify(buyTx("2024-03-15", "VTI", 10, 100, 1000), []models.Transaction{known}, ClassifyOptions{})

	require.Len(t, result.ExactMatches, 1)
	assert.Empty(t, result.FuzzyMatches)
	assert.Empty(t, result.Conflicts)
	assert.True(t, result.HasDuplicate())
}

func TestClassifyEnhancedMatchBeatsFuzzy(t *testing.T) {
	p := NewFingerprintProcessor()

	// Same event, different activity wording, but units and price agree.
	known := buyTx("2024-03-15", "VTI", 10, 100, 1000)
	p.Stamp(&known)

	candidate := buyTx("2024-03-15", "VTI", 10, 100, 1000)
	candidate.Activity = "Purchase"

	result := p.Classify(candidate, []models.Transaction{known}, ClassifyOptions{})

	require.Len(t, result.EnhancedMatches, 1)
	assert.Empty(t, result.ExactMatches)
	assert.Empty(t, result.FuzzyMatches)
	assert.True(t, result.HasDuplicate())
}

func TestClassifyConflictOnDifferingActivity(t *testing.T) {
	p := NewFingerprintProcessor()

	known := buyTx("2024-03-15", "VTI", 10, 10, 100)
	p.Stamp(&known)

	candidate := models.Transaction{
		Date:        "2024-03-15",
		Activity:    "Sell",
		Fund:        "VTI",
		MoneySource: "Employee PreTax",
		Units:       -5,
		UnitPrice:   20,
		Amount:      100,
	}

	result := p.Classify(candidate, []models.Transaction{known}, ClassifyOptions{})

	require.Len(t, result.FuzzyMatches, 1)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "Buy", result.Conflicts[0].KnownActivity)
	assert.Equal(t, "Sell", result.Conflicts[0].CandidateActivity)
	assert.Equal(t, candidate, result.Conflicts[0].Candidate)
	assert.Equal(t, known.Activity, result.Conflicts[0].Known.Activity)
	assert.False(t, result.HasDuplicate())
}

func TestClassifyOppositeActivitiesWithEqualDetail(t *testing.T) {
	p := NewFingerprintProcessor()

	// Units and price are normalized by absolute value, so a Sell that
	// mirrors a Buy exactly lands on the enhanced hash, not on a conflict.
	known := buyTx("2024-03-15", "VTI", 10, 10, 100)
	p.Stamp(&known)

	candidate := models.Transaction{
		Date:        "2024-03-15",
		Activity:    "Sell",
		Fund:        "VTI",
		MoneySource: "Employee PreTax",
		Units:       -10,
		UnitPrice:   10,
		Amount:      -100,
	}

	result := p.Classify(candidate, []models.Transaction{known}, ClassifyOptions{})

	require.Len(t, result.EnhancedMatches, 1)
	assert.Empty(t, result.Conflicts)
	assert.True(t, result.HasDuplicate())
}

func TestClassifyFuzzyWithSameActivityIsNotConflict(t *testing.T) {
	p := NewFingerprintProcessor()

	known := buyTx("2024-03-15", "VTI", 10, 10, 100)
	p.Stamp(&known)

	// Same activity, same (date, amount, fund), different unit detail.
	candidate := buyTx("2024-03-15", "VTI", 4, 25, 100)

	result := p.Classify(candidate, []models.Transaction{known}, ClassifyOptions{})

	require.Len(t, result.FuzzyMatches, 1)
	assert.Empty(t, result.Conflicts)
}

func TestClassifySkipsUnfingerprintedKnown(t *testing.T) {
	p := NewFingerprintProcessor()

	// Legacy row without fingerprints must never match.
	legacy := buyTx("2024-03-15", "VTI", 10, 100, 1000)

	result := p.Classify(buyTx("2024-03-15", "VTI", 10, 100, 1000), []models.Transaction{legacy}, ClassifyOptions{})

	assert.Empty(t, result.ExactMatches)
	assert.Empty(t, result.EnhancedMatches)
	assert.Empty(t, result.FuzzyMatches)
	assert.False(t, result.HasDuplicate())
}

func TestClassifyDateTolerancePreFilter(t *testing.T) {
	p := NewFingerprintProcessor()

	known := buyTx("2024-03-01", "VTI", 10, 100, 1000)
	p.Stamp(&known)

	// The filter must not suppress same-date matches.
	within := p.Classify(buyTx("2024-03-01", "VTI", 10, 100, 1000), []models.Transaction{known}, ClassifyOptions{DateToleranceDays: 3})
	assert.True(t, within.HasDuplicate())

	// A known row whose fingerprints were computed before its date was
	// corrected can carry a stale date. The tolerance window skips it
	// without comparing hashes.
	stale := known
	stale.Date = "2024-06-01"
	filtered := p.Classify(buyTx("2024-03-01", "VTI", 10, 100, 1000), []models.Transaction{stale}, ClassifyOptions{DateToleranceDays: 3})
	assert.False(t, filtered.HasDuplicate())

	// With the filter disabled the stale row matches on its hashes.
	unfiltered := p.Classify(buyTx("2024-03-01", "VTI", 10, 100, 1000), []models.Transaction{stale}, ClassifyOptions{})
	assert.True(t, unfiltered.HasDuplicate())
}
