package processors

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/utils"
)

// closeEpsilon is the share count below which a position is considered
// fully sold. Average-cost math accumulates float error, so an exact
// zero comparison would leave dust positions open forever.
const closeEpsilon = 1e-6

// PortfolioProcessor turns a transaction log into position buckets,
// totals and a value-over-time timeline. It is pure: no I/O, no shared
// state, safe to call concurrently.
type PortfolioProcessor struct{}

func NewPortfolioProcessor() *PortfolioProcessor {
	return &PortfolioProcessor{}
}

type cashFlow int

const (
	flowNeutral cashFlow = iota
	flowContribution
	flowWithdrawal
)

// NormalizeActivity title-cases the activity label and resolves the
// direction of a bare "Transfer" from the sign of the amount. Cash-flow
// classification needs the direction explicit, so this runs before any
// aggregation.
func NormalizeActivity(activity string, amount float64) string {
	normalized := titleCase(activity)
	if normalized == "Transfer" {
		if amount >= 0 {
			return "Transfer In"
		}
		return "Transfer Out"
	}
	return normalized
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// classifyCashFlow decides whether a transaction is new money in,
// money out, or an internal move. Transfers and exchanges shuffle money
// between buckets of the same portfolio, so they never touch
// contributions or netInvested. A dividend with no units attached is a
// straight cash payment and counts as a contribution.
func classifyCashFlow(tx models.Transaction) cashFlow {
	activity := strings.ToLower(tx.Activity)
	switch {
	case strings.Contains(activity, "transfer"), strings.Contains(activity, "exchange"):
		return flowNeutral
	case strings.Contains(activity, "loan issue"), strings.Contains(activity, "withdraw"):
		return flowWithdrawal
	case strings.Contains(activity, "contribution"),
		strings.Contains(activity, "match"),
		strings.Contains(activity, "purchas"),
		strings.Contains(activity, "buy"):
		return flowContribution
	case strings.Contains(activity, "dividend") && tx.Units == 0:
		return flowContribution
	}
	return flowNeutral
}

// bucketState carries the running lot math for one grouping key plus the
// most recent transaction price seen, which is the NAV fallback when no
// live quote is available.
type bucketState struct {
	pos       *models.Position
	lastPrice float64
}

// Aggregate runs the full aggregation over the transaction log.
// livePrices is keyed by fund symbol and may be nil. The input slice is
// not mutated; transactions are normalized onto a working copy first.
func (p *PortfolioProcessor) Aggregate(transactions []models.Transaction, livePrices map[string]models.LivePrice) *models.AggregationResult {
	txs := normalizeForAggregation(transactions)

	result := &models.AggregationResult{
		FundTotals:      make(map[string]*models.Position),
		SourceTotals:    make(map[string]*models.Position),
		OpenPositions:   make(map[string]map[string]*models.Position),
		ClosedPositions: make(map[string]map[string]*models.Position),
		Timeline:        []models.TimelinePoint{},
	}
	if len(txs) == 0 {
		return result
	}

	// The main run groups by (fund, moneySource); fund and source
	// rollups rerun the same lot math collapsed onto one dimension.
	buckets := runLotMath(txs, func(tx models.Transaction) string {
		return tx.Fund + "\x00" + tx.MoneySource
	})
	fundBuckets := runLotMath(txs, func(tx models.Transaction) string {
		return tx.Fund
	})
	sourceBuckets := runLotMath(txs, func(tx models.Transaction) string {
		return tx.MoneySource
	})

	for _, state := range buckets {
		finalizePosition(state, lookupLivePrice(livePrices, state.pos.Fund))
		byFund := result.OpenPositions
		if state.pos.IsClosed {
			byFund = result.ClosedPositions
		}
		if byFund[state.pos.Fund] == nil {
			byFund[state.pos.Fund] = make(map[string]*models.Position)
		}
		byFund[state.pos.Fund][state.pos.MoneySource] = state.pos

		result.Totals.Shares += state.pos.Shares
		result.Totals.CostBasis += state.pos.CostBasis
		result.Totals.MarketValue += state.pos.MarketValue
		result.Totals.GainLoss += state.pos.GainLoss
	}

	for _, state := range fundBuckets {
		finalizePosition(state, lookupLivePrice(livePrices, state.pos.Fund))
		result.FundTotals[state.pos.Fund] = state.pos
	}
	for _, state := range sourceBuckets {
		// Quotes are keyed by fund, so source rollups always price off
		// their most recent transaction.
		finalizePosition(state, nil)
		result.SourceTotals[state.pos.MoneySource] = state.pos
	}

	for _, tx := range txs {
		amount := math.Abs(tx.Amount)
		switch classifyCashFlow(tx) {
		case flowContribution:
			result.Totals.Contributions += amount
			result.Totals.NetInvested += amount
		case flowWithdrawal:
			result.Totals.NetInvested -= amount
		}
	}

	result.Timeline = buildTimeline(txs)
	return result
}

// normalizeForAggregation produces the working copy the aggregation runs
// on: coerced numbers, normalized activity labels, dates reduced to
// YYYY-MM-DD where parseable, sorted ascending by date with input order
// preserved among ties.
func normalizeForAggregation(transactions []models.Transaction) []models.Transaction {
	txs := make([]models.Transaction, len(transactions))
	for i, tx := range transactions {
		tx.Units = models.SafeNumber(tx.Units)
		tx.UnitPrice = models.SafeNumber(tx.UnitPrice)
		tx.Amount = models.SafeNumber(tx.Amount)
		tx.Activity = NormalizeActivity(tx.Activity, tx.Amount)
		if iso, ok := utils.NormalizeDate(tx.Date); ok {
			tx.Date = iso
		}
		txs[i] = tx
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date < txs[j].Date
	})
	return txs
}

func runLotMath(txs []models.Transaction, keyFn func(models.Transaction) string) map[string]*bucketState {
	buckets := make(map[string]*bucketState)
	for _, tx := range txs {
		key := keyFn(tx)
		state, ok := buckets[key]
		if !ok {
			state = &bucketState{pos: &models.Position{
				Fund:        tx.Fund,
				MoneySource: tx.MoneySource,
			}}
			buckets[key] = state
		}
		applyLotMath(state, tx)
	}
	return buckets
}

// applyLotMath advances one bucket's average-cost state by one
// transaction. Disposals reduce cost basis proportionally; there is no
// FIFO or LIFO lot selection. Overselling is clamped to the shares
// actually held.
func applyLotMath(state *bucketState, tx models.Transaction) {
	pos := state.pos

	if tx.UnitPrice > 0 {
		state.lastPrice = tx.UnitPrice
	}

	switch {
	case tx.Units > 0:
		pos.Shares += tx.Units
		pos.CostBasis += math.Abs(tx.Amount)
		if pos.IsClosed {
			pos.IsClosed = false
		}
	case tx.Units < 0:
		if pos.Shares <= 0 {
			return
		}
		avgCost := pos.CostBasis / pos.Shares
		sharesToRemove := utils.MinFloat(math.Abs(tx.Units), pos.Shares)
		remaining := pos.Shares - sharesToRemove

		if remaining <= closeEpsilon {
			// Closing sale: lock in the gain at the sale price before
			// zeroing the bucket.
			salePrice := tx.UnitPrice
			if salePrice <= 0 {
				salePrice = state.lastPrice
			}
			pos.RealizedGainLoss += salePrice*sharesToRemove - avgCost*sharesToRemove
			pos.Shares = 0
			pos.CostBasis = 0
			pos.IsClosed = true
			pos.LastSellDate = tx.Date
			return
		}

		pos.Shares = remaining
		pos.CostBasis = math.Max(pos.CostBasis-avgCost*sharesToRemove, 0)
	}
}

func lookupLivePrice(livePrices map[string]models.LivePrice, fund string) *models.LivePrice {
	if livePrices == nil {
		return nil
	}
	if quote, ok := livePrices[fund]; ok && quote.Price > 0 {
		return &quote
	}
	return nil
}

// finalizePosition resolves the NAV (live quote wins over the last
// transaction price) and derives market value, gain and ROI from the
// final lot state.
func finalizePosition(state *bucketState, live *models.LivePrice) {
	pos := state.pos
	if live != nil {
		pos.LatestNAV = live.Price
		pos.PriceSource = "live"
	} else {
		pos.LatestNAV = state.lastPrice
		pos.PriceSource = "transaction"
	}

	if pos.Shares > 0 {
		pos.AvgCost = pos.CostBasis / pos.Shares
	}
	pos.MarketValue = pos.Shares * pos.LatestNAV
	pos.GainLoss = pos.MarketValue - pos.CostBasis
	if pos.CostBasis > 0 {
		pos.ROI = pos.GainLoss / pos.CostBasis
	}
}

// buildTimeline emits one point per distinct date that carried at least
// one non-neutral cash flow. Contributions are the signed flow of that
// date; balance is the running net-invested sum. Dates with only
// internal transfers are omitted rather than zero-filled.
func buildTimeline(txs []models.Transaction) []models.TimelinePoint {
	timeline := []models.TimelinePoint{}
	balance := 0.0

	i := 0
	for i < len(txs) {
		date := txs[i].Date
		dayFlow := 0.0
		relevant := false
		for i < len(txs) && txs[i].Date == date {
			amount := math.Abs(txs[i].Amount)
			switch classifyCashFlow(txs[i]) {
			case flowContribution:
				dayFlow += amount
				relevant = true
			case flowWithdrawal:
				dayFlow -= amount
				relevant = true
			}
			i++
		}
		if relevant {
			balance += dayFlow
			timeline = append(timeline, models.TimelinePoint{
				Date:          date,
				Contributions: dayFlow,
				Balance:       balance,
			})
		}
	}
	return timeline
}
