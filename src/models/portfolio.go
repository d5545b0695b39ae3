package models

// Position is the running average-cost state of one (fund, moneySource)
// bucket. Buckets are never deleted: a fully sold bucket flips to closed
// and keeps its realized gain for historical reporting, and reopens if a
// later acquisition touches it again.
type Position struct {
	Fund        string  `json:"fund"`
	MoneySource string  `json:"moneySource"`
	Shares      float64 `json:"shares"`
	CostBasis   float64 `json:"costBasis"`
	AvgCost     float64 `json:"avgCost"`

	LatestNAV   float64 `json:"latestNAV"`
	PriceSource string  `json:"priceSource"` // "live" | "transaction"
	MarketValue float64 `json:"marketValue"`
	GainLoss    float64 `json:"gainLoss"`
	ROI         float64 `json:"roi"`

	IsClosed         bool    `json:"isClosed"`
	RealizedGainLoss float64 `json:"realizedGainLoss,omitempty"`
	LastSellDate     string  `json:"lastSellDate,omitempty"`
}

// PortfolioTotals are whole-portfolio sums across all buckets.
type PortfolioTotals struct {
	Shares        float64 `json:"shares"`
	CostBasis     float64 `json:"costBasis"`
	MarketValue   float64 `json:"marketValue"`
	GainLoss      float64 `json:"gainLoss"`
	Contributions float64 `json:"contributions"`
	NetInvested   float64 `json:"netInvested"`
}

// TimelinePoint is one entry of the value-over-time series: the
// contributions recorded on that date and the running invested balance.
type TimelinePoint struct {
	Date          string  `json:"date"`
	Contributions float64 `json:"contributions"`
	Balance       float64 `json:"balance"`
}

// AggregationResult is the full output of the portfolio aggregation
// engine. OpenPositions and ClosedPositions are keyed [fund][moneySource].
type AggregationResult struct {
	Totals          PortfolioTotals                  `json:"totals"`
	FundTotals      map[string]*Position             `json:"fundTotals"`
	SourceTotals    map[string]*Position             `json:"sourceTotals"`
	OpenPositions   map[string]map[string]*Position  `json:"openPositions"`
	ClosedPositions map[string]map[string]*Position  `json:"closedPositions"`
	Timeline        []TimelinePoint                  `json:"timeline"`
}

// PortfolioSnapshot is one row of the daily backfilled portfolio history.
type PortfolioSnapshot struct {
	SnapshotDate         string  `json:"snapshot_date"`
	TotalMarketValue     float64 `json:"total_market_value"`
	TotalCostBasis       float64 `json:"total_cost_basis"`
	TotalGainLoss        float64 `json:"total_gain_loss"`
	TotalGainLossPercent float64 `json:"total_gain_loss_percent"`
	SnapshotSource       string  `json:"snapshot_source"`
	MarketStatus         string  `json:"market_status"`
}

// HoldingSnapshot is the per-bucket detail behind a PortfolioSnapshot.
type HoldingSnapshot struct {
	SnapshotDate string  `json:"snapshot_date"`
	Fund         string  `json:"fund"`
	AccountName  string  `json:"account_name"`
	Shares       float64 `json:"shares"`
	UnitPrice    float64 `json:"unit_price"`
	MarketValue  float64 `json:"market_value"`
	CostBasis    float64 `json:"cost_basis"`
	GainLoss     float64 `json:"gain_loss"`
	PriceSource  string  `json:"price_source"`
}
