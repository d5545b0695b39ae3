package services

import (
	"fmt"
	"time"

	"github.com/username/fundfolio/backend/src/database"
	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/model"
	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/processors"
)

type snapshotServiceImpl struct {
	snapshotProcessor *processors.SnapshotProcessor
}

func NewSnapshotService(snapshotProcessor *processors.SnapshotProcessor) SnapshotService {
	return &snapshotServiceImpl{snapshotProcessor: snapshotProcessor}
}

// BackfillSnapshots recomputes the user's full daily history from the
// transaction log and historical closing prices, replacing whatever was
// stored before. Returns the number of daily snapshots written.
func (s *snapshotServiceImpl) BackfillSnapshots(userID int64, endDate time.Time) (int, error) {
	startTime := time.Now()
	transactions, err := FetchUserTransactions(userID)
	if err != nil {
		return 0, err
	}
	if len(transactions) == 0 {
		return 0, nil
	}

	mappings, err := model.GetMappingsByFunds(database.DB, distinctFunds(transactions))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSnapshotFailure, err)
	}
	tickers := make(map[string]processors.TickerMapping, len(mappings))
	for fund, m := range mappings {
		tickers[fund] = processors.TickerMapping{
			Ticker:          m.TickerSymbol,
			ConversionRatio: m.ConversionRatio,
		}
	}

	snapshots, holdings := s.snapshotProcessor.Backfill(transactions, tickers, endDate)

	if err := s.replaceSnapshots(userID, snapshots, holdings); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSnapshotFailure, err)
	}

	logger.L.Info("Snapshot backfill complete",
		"userID", userID,
		"snapshots", len(snapshots),
		"holdings", len(holdings),
		"duration", time.Since(startTime))
	return len(snapshots), nil
}

// replaceSnapshots swaps the stored history in one database transaction
// so readers never see a half-written backfill.
func (s *snapshotServiceImpl) replaceSnapshots(userID int64, snapshots []models.PortfolioSnapshot, holdings []models.HoldingSnapshot) error {
	dbTx, err := database.DB.Begin()
	if err != nil {
		return fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := dbTx.Exec(`DELETE FROM portfolio_snapshots WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("error clearing portfolio snapshots: %w", err)
	}
	if _, err := dbTx.Exec(`DELETE FROM holdings_snapshots WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("error clearing holdings snapshots: %w", err)
	}

	snapStmt, err := dbTx.Prepare(`INSERT INTO portfolio_snapshots (user_id, snapshot_date, total_market_value, total_cost_basis, total_gain_loss, total_gain_loss_percent, snapshot_source, market_status) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing snapshot insert: %w", err)
	}
	defer snapStmt.Close()
	for _, snap := range snapshots {
		if _, err := snapStmt.Exec(userID, snap.SnapshotDate, snap.TotalMarketValue, snap.TotalCostBasis, snap.TotalGainLoss, snap.TotalGainLossPercent, snap.SnapshotSource, snap.MarketStatus); err != nil {
			return fmt.Errorf("error inserting snapshot for %s: %w", snap.SnapshotDate, err)
		}
	}

	holdingStmt, err := dbTx.Prepare(`INSERT INTO holdings_snapshots (user_id, snapshot_date, fund, account_name, shares, unit_price, market_value, cost_basis, gain_loss, price_source) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing holding insert: %w", err)
	}
	defer holdingStmt.Close()
	for _, h := range holdings {
		if _, err := holdingStmt.Exec(userID, h.SnapshotDate, h.Fund, h.AccountName, h.Shares, h.UnitPrice, h.MarketValue, h.CostBasis, h.GainLoss, h.PriceSource); err != nil {
			return fmt.Errorf("error inserting holding snapshot for %s/%s: %w", h.SnapshotDate, h.Fund, err)
		}
	}

	return dbTx.Commit()
}

func (s *snapshotServiceImpl) GetSnapshots(userID int64, from, to string) ([]models.PortfolioSnapshot, error) {
	query := `SELECT snapshot_date, total_market_value, total_cost_basis, total_gain_loss, total_gain_loss_percent, snapshot_source, market_status FROM portfolio_snapshots WHERE user_id = ?`
	args := []interface{}{userID}
	if from != "" {
		query += ` AND snapshot_date >= ?`
		args = append(args, from)
	}
	if to != "" {
		query += ` AND snapshot_date <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY snapshot_date ASC`

	rows, err := database.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying snapshots for userID %d: %w", userID, err)
	}
	defer rows.Close()

	snapshots := []models.PortfolioSnapshot{}
	for rows.Next() {
		var snap models.PortfolioSnapshot
		if err := rows.Scan(&snap.SnapshotDate, &snap.TotalMarketValue, &snap.TotalCostBasis, &snap.TotalGainLoss, &snap.TotalGainLossPercent, &snap.SnapshotSource, &snap.MarketStatus); err != nil {
			return nil, fmt.Errorf("error scanning snapshot row: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

func (s *snapshotServiceImpl) GetHoldingSnapshots(userID int64, date string) ([]models.HoldingSnapshot, error) {
	rows, err := database.DB.Query(`SELECT snapshot_date, fund, account_name, shares, unit_price, market_value, cost_basis, gain_loss, price_source FROM holdings_snapshots WHERE user_id = ? AND snapshot_date = ? ORDER BY fund ASC, account_name ASC`, userID, date)
	if err != nil {
		return nil, fmt.Errorf("error querying holding snapshots for userID %d: %w", userID, err)
	}
	defer rows.Close()

	holdings := []models.HoldingSnapshot{}
	for rows.Next() {
		var h models.HoldingSnapshot
		if err := rows.Scan(&h.SnapshotDate, &h.Fund, &h.AccountName, &h.Shares, &h.UnitPrice, &h.MarketValue, &h.CostBasis, &h.GainLoss, &h.PriceSource); err != nil {
			return nil, fmt.Errorf("error scanning holding snapshot row: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}
