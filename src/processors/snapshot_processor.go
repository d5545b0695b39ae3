package processors

import (
	"math"
	"sort"
	"time"

	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/utils"
)

// TickerMapping resolves a fund name to the exchange ticker its history
// is quoted under. Some record-keeper funds track a public index fund at
// a fixed unit ratio; ConversionRatio divides the quoted price back into
// plan units (1 means the fund trades at the quoted price directly).
type TickerMapping struct {
	Ticker          string
	ConversionRatio float64
}

// SnapshotProcessor replays the transaction log day by day against the
// historical closing price table to backfill portfolio value history.
type SnapshotProcessor struct{}

func NewSnapshotProcessor() *SnapshotProcessor {
	return &SnapshotProcessor{}
}

type snapshotHolding struct {
	fund      string
	account   string
	shares    float64
	costBasis float64
}

// Backfill walks every calendar day from the first transaction date to
// endDate, advancing position state with that day's transactions and
// pricing the holdings at that day's closing prices. Days where no
// holding can be priced (weekends, market holidays, gaps in the price
// table) produce no snapshot; the position state still carries forward.
func (p *SnapshotProcessor) Backfill(transactions []models.Transaction, tickers map[string]TickerMapping, endDate time.Time) ([]models.PortfolioSnapshot, []models.HoldingSnapshot) {
	portfolioSnapshots := []models.PortfolioSnapshot{}
	holdingSnapshots := []models.HoldingSnapshot{}
	if len(transactions) == 0 {
		return portfolioSnapshots, holdingSnapshots
	}

	txByDate := make(map[string][]models.Transaction)
	var dates []string
	for _, tx := range transactions {
		date, ok := utils.NormalizeDate(tx.Date)
		if !ok {
			logger.L.Warn("Skipping transaction with unparseable date in snapshot backfill", "date", tx.Date, "fund", tx.Fund)
			continue
		}
		tx.Date = date
		if _, seen := txByDate[date]; !seen {
			dates = append(dates, date)
		}
		txByDate[date] = append(txByDate[date], tx)
	}
	if len(dates) == 0 {
		return portfolioSnapshots, holdingSnapshots
	}
	sort.Strings(dates)

	startDate, err := time.Parse(utils.DefaultDateFormat, dates[0])
	if err != nil {
		return portfolioSnapshots, holdingSnapshots
	}

	positions := make(map[string]*snapshotHolding)

	for day := startDate; !day.After(endDate); day = day.AddDate(0, 0, 1) {
		dateStr := day.Format(utils.DefaultDateFormat)

		for _, tx := range txByDate[dateStr] {
			key := tx.Fund + "\x00" + tx.MoneySource
			pos, ok := positions[key]
			if !ok {
				pos = &snapshotHolding{fund: tx.Fund, account: tx.MoneySource}
				positions[key] = pos
			}
			units := models.SafeNumber(tx.Units)
			amount := models.SafeNumber(tx.Amount)
			switch {
			case units > 0:
				pos.costBasis += math.Abs(amount)
				pos.shares += units
			case units < 0 && pos.shares > 0:
				avgCost := pos.costBasis / pos.shares
				reduction := avgCost * utils.MinFloat(math.Abs(units), pos.shares)
				pos.costBasis = math.Max(pos.costBasis-reduction, 0)
				pos.shares = math.Max(pos.shares-math.Abs(units), 0)
			}
		}

		var dayHoldings []models.HoldingSnapshot
		totalMarketValue := 0.0
		totalCostBasis := 0.0

		for _, pos := range positions {
			if math.Abs(pos.shares) < 0.0001 {
				continue
			}
			price, ok := closingPriceFor(pos.fund, dateStr, tickers)
			if !ok {
				continue
			}
			marketValue := pos.shares * price
			totalMarketValue += marketValue
			totalCostBasis += pos.costBasis
			dayHoldings = append(dayHoldings, models.HoldingSnapshot{
				SnapshotDate: dateStr,
				Fund:         pos.fund,
				AccountName:  pos.account,
				Shares:       pos.shares,
				UnitPrice:    price,
				MarketValue:  marketValue,
				CostBasis:    pos.costBasis,
				GainLoss:     marketValue - pos.costBasis,
				PriceSource:  "historical",
			})
		}

		if len(dayHoldings) == 0 {
			continue
		}

		totalGainLoss := totalMarketValue - totalCostBasis
		gainLossPct := 0.0
		if totalCostBasis > 0 {
			gainLossPct = totalGainLoss / totalCostBasis * 100
		}
		portfolioSnapshots = append(portfolioSnapshots, models.PortfolioSnapshot{
			SnapshotDate:         dateStr,
			TotalMarketValue:     utils.RoundFloat(totalMarketValue, 2),
			TotalCostBasis:       utils.RoundFloat(totalCostBasis, 2),
			TotalGainLoss:        utils.RoundFloat(totalGainLoss, 2),
			TotalGainLossPercent: utils.RoundFloat(gainLossPct, 4),
			SnapshotSource:       "backfill",
			MarketStatus:         "closed",
		})
		holdingSnapshots = append(holdingSnapshots, dayHoldings...)
	}

	return portfolioSnapshots, holdingSnapshots
}

// closingPriceFor prices a fund on an exact date. No prior-day fallback:
// a date without price data contributes no snapshot, which keeps the
// backfilled series aligned with trading days.
func closingPriceFor(fund, date string, tickers map[string]TickerMapping) (float64, bool) {
	mapping, ok := tickers[fund]
	if !ok {
		logger.L.Warn("No ticker mapping for fund in snapshot backfill", "fund", fund)
		return 0, false
	}
	price, ok := ClosingPriceOn(mapping.Ticker, date)
	if !ok {
		return 0, false
	}
	if mapping.ConversionRatio > 0 && mapping.ConversionRatio != 1 {
		price = price / mapping.ConversionRatio
	}
	return price, true
}
