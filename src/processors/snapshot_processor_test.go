package processors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/fundfolio/backend/src/models"
)

func withPriceTable(t *testing.T, prices map[string]map[string]float64) {
	t.Helper()
	SetHistoricalPrices(prices)
	t.Cleanup(func() { SetHistoricalPrices(nil) })
}

func TestBackfillEmptyLog(t *testing.T) {
	p := NewSnapshotProcessor()
	withPriceTable(t, map[string]map[string]float64{})

	snapshots, holdings := p.Backfill(nil, nil, time.Now())

	assert.Empty(t, snapshots)
	assert.Empty(t, holdings)
}

func TestBackfillReplaysPositionsDayByDay(t *testing.T) {
	p := NewSnapshotProcessor()
	withPriceTable(t, map[string]map[string]float64{
		"VTI": {
			"2024-01-02": 100,
			"2024-01-03": 102,
			"2024-01-04": 104,
		},
	})
	tickers := map[string]TickerMapping{
		"VTI": {Ticker: "VTI", ConversionRatio: 1},
	}
	txs := []models.Transaction{
		contributionTx("2024-01-02", "VTI", "Roth", 10, 100, 1000),
		contributionTx("2024-01-04", "VTI", "Roth", 5, 104, 520),
	}

	end, _ := time.Parse("2006-01-02", "2024-01-04")
	snapshots, holdings := p.Backfill(txs, tickers, end)

	require.Len(t, snapshots, 3)
	require.Len(t, holdings, 3)

	assert.Equal(t, "2024-01-02", snapshots[0].SnapshotDate)
	assert.InDelta(t, 1000, snapshots[0].TotalMarketValue, 1e-9)

	// Day two holds the same shares at a higher close.
	assert.InDelta(t, 1020, snapshots[1].TotalMarketValue, 1e-9)
	assert.InDelta(t, 20, snapshots[1].TotalGainLoss, 1e-9)

	// Day three includes the second purchase.
	assert.InDelta(t, 15*104, snapshots[2].TotalMarketValue, 1e-9)
	assert.Equal(t, "backfill", snapshots[2].SnapshotSource)
	assert.Equal(t, "closed", snapshots[2].MarketStatus)
	assert.Equal(t, "historical", holdings[2].PriceSource)
}

func TestBackfillSkipsUnpricedDays(t *testing.T) {
	p := NewSnapshotProcessor()
	// A weekend gap: no prices on the 6th and 7th.
	withPriceTable(t, map[string]map[string]float64{
		"VTI": {
			"2024-01-05": 100,
			"2024-01-08": 101,
		},
	})
	tickers := map[string]TickerMapping{
		"VTI": {Ticker: "VTI", ConversionRatio: 1},
	}
	txs := []models.Transaction{
		contributionTx("2024-01-05", "VTI", "Roth", 10, 100, 1000),
	}

	end, _ := time.Parse("2006-01-02", "2024-01-08")
	snapshots, _ := p.Backfill(txs, tickers, end)

	require.Len(t, snapshots, 2)
	assert.Equal(t, "2024-01-05", snapshots[0].SnapshotDate)
	assert.Equal(t, "2024-01-08", snapshots[1].SnapshotDate)
}

func TestBackfillAppliesConversionRatio(t *testing.T) {
	p := NewSnapshotProcessor()
	withPriceTable(t, map[string]map[string]float64{
		"VOO": {"2024-01-02": 467.31},
	})
	// Plan units track the public fund at a fixed ratio.
	tickers := map[string]TickerMapping{
		"0899 Vanguard 500 Index Fund Adm": {Ticker: "VOO", ConversionRatio: 15.577},
	}
	txs := []models.Transaction{
		contributionTx("2024-01-02", "0899 Vanguard 500 Index Fund Adm", "Employee PreTax", 100, 30, 3000),
	}

	end, _ := time.Parse("2006-01-02", "2024-01-02")
	snapshots, holdings := p.Backfill(txs, tickers, end)

	require.Len(t, holdings, 1)
	assert.InDelta(t, 467.31/15.577, holdings[0].UnitPrice, 1e-9)
	assert.InDelta(t, 100*467.31/15.577, snapshots[0].TotalMarketValue, 0.01)
}

func TestBackfillUnknownFundContributesNothing(t *testing.T) {
	p := NewSnapshotProcessor()
	withPriceTable(t, map[string]map[string]float64{
		"VTI": {"2024-01-02": 100},
	})
	tickers := map[string]TickerMapping{
		"VTI": {Ticker: "VTI", ConversionRatio: 1},
	}
	txs := []models.Transaction{
		contributionTx("2024-01-02", "VTI", "Roth", 10, 100, 1000),
		contributionTx("2024-01-02", "Mystery Fund", "Roth", 5, 10, 50),
	}

	end, _ := time.Parse("2006-01-02", "2024-01-02")
	snapshots, holdings := p.Backfill(txs, tickers, end)

	require.Len(t, snapshots, 1)
	require.Len(t, holdings, 1)
	assert.Equal(t, "VTI", holdings[0].Fund)
	assert.InDelta(t, 1000, snapshots[0].TotalMarketValue, 1e-9)
}

func TestGetClosingPriceFallsBackWithinAWeek(t *testing.T) {
	withPriceTable(t, map[string]map[string]float64{
		"VTI": {"2024-01-05": 100},
	})

	// Saturday the 6th falls back to Friday's close.
	saturday, _ := time.Parse("2006-01-02", "2024-01-06")
	price, err := GetClosingPrice("VTI", saturday)
	require.NoError(t, err)
	assert.InDelta(t, 100, price, 1e-9)

	// A gap longer than a week is an error, not a stale price.
	later, _ := time.Parse("2006-01-02", "2024-01-20")
	_, err = GetClosingPrice("VTI", later)
	assert.Error(t, err)

	_, err = GetClosingPrice("UNKNOWN", saturday)
	assert.Error(t, err)
}
