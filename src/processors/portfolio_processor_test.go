package processors

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/fundfolio/backend/src/models"
)

func contributionTx(date, fund, source string, units, price, amount float64) models.Transaction {
	return models.Transaction{
		Date:        date,
		Activity:    "Contribution",
		Fund:        fund,
		MoneySource: source,
		Units:       units,
		UnitPrice:   price,
		Amount:      amount,
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	p := NewPortfolioProcessor()

	result := p.Aggregate(nil, nil)

	require.NotNil(t, result)
	assert.Equal(t, models.PortfolioTotals{}, result.Totals)
	assert.Empty(t, result.OpenPositions)
	assert.Empty(t, result.ClosedPositions)
	assert.Empty(t, result.Timeline)
}

func TestAggregateLotMathRoundTrip(t *testing.T) {
	p := NewPortfolioProcessor()

	txs := []models.Transaction{
		contributionTx("2024-01-02", "VTI", "Roth", 10, 100, 1000),
		{Date: "2024-02-01", Activity: "Sell", Fund: "VTI", MoneySource: "Roth", Units: -10, UnitPrice: 110, Amount: -1100},
	}

	result := p.Aggregate(txs, nil)

	require.Empty(t, result.OpenPositions)
	require.Contains(t, result.ClosedPositions, "VTI")
	pos := result.ClosedPositions["VTI"]["Roth"]
	require.NotNil(t, pos)

	assert.Zero(t, pos.Shares)
	assert.Zero(t, pos.CostBasis)
	assert.True(t, pos.IsClosed)
	assert.InDelta(t, 100, pos.RealizedGainLoss, 1e-9)
	assert.Equal(t, "2024-02-01", pos.LastSellDate)
}

func TestAggregatePartialSellProportionality(t *testing.T) {
	p := NewPortfolioProcessor()

	txs := []models.Transaction{
		contributionTx("2024-01-02", "VTI", "Roth", 10, 100, 1000),
		{Date: "2024-02-01", Activity: "Sell", Fund: "VTI", MoneySource: "Roth", Units: -5, UnitPrice: 110, Amount: -550},
	}

	result := p.Aggregate(txs, nil)

	pos := result.OpenPositions["VTI"]["Roth"]
	require.NotNil(t, pos)
	assert.InDelta(t, 5, pos.Shares, 1e-9)
	// Proportional average-cost reduction, not sale-proceeds subtraction.
	assert.InDelta(t, 500, pos.CostBasis, 1e-9)
	assert.False(t, pos.IsClosed)
}

func TestAggregateOversellClamped(t *testing.T) {
	p := NewPortfolioProcessor()

	txs := []models.Transaction{
		contributionTx("2024-01-02", "VTI", "Roth", 10, 100, 1000),
		{Date: "2024-02-01", Activity: "Sell", Fund: "VTI", MoneySource: "Roth", Units: -15, UnitPrice: 110, Amount: -1650},
	}

	result := p.Aggregate(txs, nil)

	pos := result.ClosedPositions["VTI"]["Roth"]
	require.NotNil(t, pos)
	assert.Zero(t, pos.Shares)
	assert.Zero(t, pos.CostBasis)
	// Only the shares actually held are sold: gain is 10*(110-100).
	assert.InDelta(t, 100, pos.RealizedGainLoss, 1e-9)
}

func TestAggregateLivePriceFallback(t *testing.T) {
	p := NewPortfolioProcessor()

	txs := []models.Transaction{
		contributionTx("2024-01-02", "VTI", "Roth", 10, 100, 1000),
	}

	// No live quote: the last transaction price drives the valuation.
	noLive := p.Aggregate(txs, nil)
	pos := noLive.OpenPositions["VTI"]["Roth"]
	require.NotNil(t, pos)
	assert.InDelta(t, 100, pos.LatestNAV, 1e-9)
	assert.Equal(t, "transaction", pos.PriceSource)
	assert.InDelta(t, 1000, pos.MarketValue, 1e-9)

	// A live quote overrides it.
	live := p.Aggregate(txs, map[string]models.LivePrice{
		"VTI": {Price: 120},
	})
	pos = live.OpenPositions["VTI"]["Roth"]
	require.NotNil(t, pos)
	assert.InDelta(t, 120, pos.LatestNAV, 1e-9)
	assert.Equal(t, "live", pos.PriceSource)
	assert.InDelta(t, 1200, pos.MarketValue, 1e-9)
	assert.InDelta(t, 200, pos.GainLoss, 1e-9)
	assert.InDelta(t, 0.2, pos.ROI, 1e-9)
}

func TestAggregateSourceTotalsNeverUseLivePrices(t *testing.T) {
	p := NewPortfolioProcessor()

	txs := []models.Transaction{
		contributionTx("2024-01-02", "VTI", "Roth", 10, 100, 1000),
	}

	result := p.Aggregate(txs, map[string]models.LivePrice{"VTI": {Price: 120}})

	require.Contains(t, result.FundTotals, "VTI")
	assert.Equal(t, "live", result.FundTotals["VTI"].PriceSource)

	// Quotes are keyed by fund, so a per-source rollup has no quote to
	// apply.
	require.Contains(t, result.SourceTotals, "Roth")
	assert.Equal(t, "transaction", result.SourceTotals["Roth"].PriceSource)
	assert.InDelta(t, 100, result.SourceTotals["Roth"].LatestNAV, 1e-9)
}

func TestAggregateSnakeCaseEquivalence(t *testing.T) {
	p := NewPortfolioProcessor()

	snakeJSON := []byte(`[{"date":"2024-01-02","activity":"Contribution","fund":"VTI","money_source":"Roth","units":10,"unit_price":100,"amount":1000}]`)
	camelJSON := []byte(`[{"date":"2024-01-02","activity":"Contribution","fund":"VTI","moneySource":"Roth","units":10,"unitPrice":100,"amount":1000}]`)

	var snake, camel []models.Transaction
	require.NoError(t, json.Unmarshal(snakeJSON, &snake))
	require.NoError(t, json.Unmarshal(camelJSON, &camel))

	assert.Equal(t, p.Aggregate(camel, nil), p.Aggregate(snake, nil))
}

func TestAggregateNaNCoercedToZero(t *testing.T) {
	p := NewPortfolioProcessor()

	txs := []models.Transaction{
		{Date: "2024-01-02", Activity: "Contribution", Fund: "VTI", MoneySource: "Roth", Units: 10, UnitPrice: math.NaN(), Amount: math.NaN()},
	}

	result := p.Aggregate(txs, nil)

	pos := result.OpenPositions["VTI"]["Roth"]
	require.NotNil(t, pos)
	assert.InDelta(t, 10, pos.Shares, 1e-9)
	assert.Zero(t, pos.CostBasis)
	assert.Zero(t, pos.MarketValue)
	assert.False(t, math.IsNaN(result.Totals.Contributions))
}

func TestAggregateReopensClosedBucket(t *testing.T) {
	p := NewPortfolioProcessor()

	txs := []models.Transaction{
		contributionTx("2024-01-02", "VTI", "Roth", 10, 100, 1000),
		{Date: "2024-02-01", Activity: "Sell", Fund: "VTI", MoneySource: "Roth", Units: -10, UnitPrice: 110, Amount: -1100},
		contributionTx("2024-03-01", "VTI", "Roth", 4, 105, 420),
	}

	result := p.Aggregate(txs, nil)

	require.Empty(t, result.ClosedPositions)
	pos := result.OpenPositions["VTI"]["Roth"]
	require.NotNil(t, pos)
	assert.False(t, pos.IsClosed)
	assert.InDelta(t, 4, pos.Shares, 1e-9)
	assert.InDelta(t, 420, pos.CostBasis, 1e-9)
	// The realized gain from the earlier close is preserved.
	assert.InDelta(t, 100, pos.RealizedGainLoss, 1e-9)
}

func TestAggregateTransferDirectionDisambiguation(t *testing.T) {
	in := NormalizeActivity("transfer", 500)
	out := NormalizeActivity("TRANSFER", -500)

	assert.Equal(t, "Transfer In", in)
	assert.Equal(t, "Transfer Out", out)
	assert.Equal(t, "Loan Issue", NormalizeActivity("loan issue", -100))
}

func TestAggregateTransfersAreCashFlowNeutral(t *testing.T) {
	p := NewPortfolioProcessor()

	txs := []models.Transaction{
		contributionTx("2024-01-02", "VTI", "Roth", 10, 100, 1000),
		{Date: "2024-01-10", Activity: "Transfer", Fund: "SCHD", MoneySource: "Roth", Units: 20, UnitPrice: 25, Amount: 500},
	}

	result := p.Aggregate(txs, nil)

	// The transfer builds a position but adds no new money.
	require.Contains(t, result.OpenPositions, "SCHD")
	assert.InDelta(t, 1000, result.Totals.Contributions, 1e-9)
	assert.InDelta(t, 1000, result.Totals.NetInvested, 1e-9)

	// And it contributes no timeline point.
	require.Len(t, result.Timeline, 1)
	assert.Equal(t, "2024-01-02", result.Timeline[0].Date)
}

func TestAggregateZeroUnitDividendCountsAsContribution(t *testing.T) {
	p := NewPortfolioProcessor()

	txs := []models.Transaction{
		contributionTx("2024-01-02", "VTI", "Roth", 10, 100, 1000),
		{Date: "2024-02-01", Activity: "Dividend", Fund: "VTI", MoneySource: "Roth", Units: 0, Amount: 12.5},
	}

	result := p.Aggregate(txs, nil)

	pos := result.OpenPositions["VTI"]["Roth"]
	require.NotNil(t, pos)
	assert.InDelta(t, 10, pos.Shares, 1e-9)
	assert.InDelta(t, 1012.5, result.Totals.Contributions, 1e-9)
}

func TestAggregateLoanIssueReducesNetInvested(t *testing.T) {
	p := NewPortfolioProcessor()

	txs := []models.Transaction{
		contributionTx("2024-01-02", "VTI", "Roth", 10, 100, 1000),
		{Date: "2024-03-01", Activity: "Loan Issue", Fund: "VTI", MoneySource: "Roth", Units: -2, UnitPrice: 100, Amount: -200},
	}

	result := p.Aggregate(txs, nil)

	assert.InDelta(t, 1000, result.Totals.Contributions, 1e-9)
	assert.InDelta(t, 800, result.Totals.NetInvested, 1e-9)
}

func TestAggregateTimeline(t *testing.T) {
	p := NewPortfolioProcessor()

	txs := []models.Transaction{
		// Out of order on purpose: the aggregator sorts by date.
		{Date: "2024-02-01", Activity: "Loan Issue", Fund: "VTI", MoneySource: "Roth", Units: 0, Amount: -200},
		contributionTx("2024-01-02", "VTI", "Roth", 5, 100, 500),
		contributionTx("2024-01-02", "SCHD", "Roth", 4, 25, 100),
		{Date: "2024-01-15", Activity: "Exchange In", Fund: "DES", MoneySource: "Roth", Units: 3, UnitPrice: 30, Amount: 90},
	}

	result := p.Aggregate(txs, nil)

	require.Len(t, result.Timeline, 2)

	assert.Equal(t, "2024-01-02", result.Timeline[0].Date)
	assert.InDelta(t, 600, result.Timeline[0].Contributions, 1e-9)
	assert.InDelta(t, 600, result.Timeline[0].Balance, 1e-9)

	// 2024-01-15 carried only a neutral exchange: omitted, not zeroed.
	assert.Equal(t, "2024-02-01", result.Timeline[1].Date)
	assert.InDelta(t, -200, result.Timeline[1].Contributions, 1e-9)
	assert.InDelta(t, 400, result.Timeline[1].Balance, 1e-9)
}

func TestAggregateTotalsSumBuckets(t *testing.T) {
	p := NewPortfolioProcessor()

	txs := []models.Transaction{
		contributionTx("2024-01-02", "VTI", "Roth", 10, 100, 1000),
		contributionTx("2024-01-02", "VTI", "Employee PreTax", 2, 100, 200),
		contributionTx("2024-01-03", "SCHD", "Roth", 4, 25, 100),
	}

	result := p.Aggregate(txs, nil)

	assert.InDelta(t, 16, result.Totals.Shares, 1e-9)
	assert.InDelta(t, 1300, result.Totals.CostBasis, 1e-9)
	assert.InDelta(t, 1300, result.Totals.MarketValue, 1e-9)
	assert.Zero(t, result.Totals.GainLoss)

	// Fund rollup merges money sources; source rollup merges funds.
	assert.InDelta(t, 12, result.FundTotals["VTI"].Shares, 1e-9)
	assert.InDelta(t, 14, result.SourceTotals["Roth"].Shares, 1e-9)
}
