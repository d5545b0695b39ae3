package services

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/username/fundfolio/backend/src/database"
	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/parsers"
	"github.com/username/fundfolio/backend/src/processors"
)

const (
	// Aggregation results are rebuilt from the full log, so one import
	// invalidates everything for that user.
	ckPortfolioResult = "res_portfolio_user_%d"
	ckTimelineResult  = "res_timeline_user_%d"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type importServiceImpl struct {
	deduplicator processors.Deduplicator
	dedupOpts    processors.DedupOptions
	reportCache  *cache.Cache
}

func NewImportService(deduplicator processors.Deduplicator, dedupOpts processors.DedupOptions, reportCache *cache.Cache) ImportService {
	return &importServiceImpl{
		deduplicator: deduplicator,
		dedupOpts:    dedupOpts,
		reportCache:  reportCache,
	}
}

func (s *importServiceImpl) ProcessFileImport(fileReader io.Reader, userID int64, source string) (*ImportResult, error) {
	logger.L.Info("ProcessFileImport START", "userID", userID, "source", source)

	parser, err := parsers.GetParser(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownSource, err)
	}

	candidates, err := parser.Parse(fileReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	return s.runImport(candidates, userID, source)
}

func (s *importServiceImpl) ProcessBatchImport(candidates []models.Transaction, userID int64) (*ImportResult, error) {
	logger.L.Info("ProcessBatchImport START", "userID", userID, "count", len(candidates))
	return s.runImport(candidates, userID, "manual")
}

// runImport is the shared pipeline behind both import paths: classify
// the batch against the user's stored log, insert everything admitted,
// and drop the user's cached aggregations.
func (s *importServiceImpl) runImport(candidates []models.Transaction, userID int64, sourceType string) (*ImportResult, error) {
	overallStartTime := time.Now()
	if len(candidates) == 0 {
		return nil, ErrNoTransactions
	}

	known, err := FetchUserTransactions(userID)
	if err != nil {
		return nil, fmt.Errorf("error loading stored transactions: %w", err)
	}

	dedup := s.deduplicator.DeduplicateBatch(known, candidates, s.dedupOpts)
	batchID := uuid.NewString()

	if len(dedup.Imported) > 0 {
		inserted, err := insertTransactions(userID, batchID, sourceType, dedup.Imported)
		if err != nil {
			return nil, err
		}
		// The unique index catches within-batch duplicates the
		// classifier does not compare. Reconcile the stats so the
		// client's numbers match what was actually stored.
		if skippedAtInsert := len(dedup.Imported) - inserted; skippedAtInsert > 0 {
			logger.L.Info("Unique index skipped within-batch duplicates", "userID", userID, "count", skippedAtInsert)
			dedup.Stats.Imported -= skippedAtInsert
			dedup.Stats.Skipped += skippedAtInsert
		}
		s.InvalidateUserCache(userID)
	}

	logger.L.Info("Import pipeline END",
		"userID", userID,
		"batchID", batchID,
		"imported", dedup.Stats.Imported,
		"skipped", dedup.Stats.Skipped,
		"conflicts", dedup.Stats.Conflicts,
		"errors", dedup.Stats.Errors,
		"duration", time.Since(overallStartTime))

	return &ImportResult{BatchID: batchID, Dedup: dedup}, nil
}

func insertTransactions(userID int64, batchID, sourceType string, txs []models.Transaction) (int, error) {
	dbTx, err := database.DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`INSERT INTO transactions (user_id, date, activity, fund, money_source, units, unit_price, amount, source_type, source_id, plaid_transaction_id, plaid_account_id, primary_hash, fuzzy_hash, enhanced_hash) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("error preparing insert statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, tx := range txs {
		if tx.SourceType == "" {
			tx.SourceType = sourceType
		}
		if tx.SourceID == "" {
			tx.SourceID = batchID
		}
		_, err := stmt.Exec(userID, tx.Date, tx.Activity, tx.Fund, tx.MoneySource, tx.Units, tx.UnitPrice, tx.Amount, tx.SourceType, tx.SourceID, tx.PlaidTransactionID, tx.PlaidAccountID, tx.PrimaryHash, tx.FuzzyHash, tx.EnhancedHash)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
				logger.L.Debug("Skipping duplicate transaction on insert", "userID", userID, "primaryHash", tx.PrimaryHash)
				continue
			}
			return 0, fmt.Errorf("error inserting transaction (fund: %s, date: %s): %w", tx.Fund, tx.Date, err)
		}
		inserted++
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing transactions: %w", err)
	}
	return inserted, nil
}

// InvalidateUserCache clears all cached aggregations for a user, forcing
// a complete rebuild on the next request.
func (s *importServiceImpl) InvalidateUserCache(userID int64) {
	keysToDelete := []string{
		fmt.Sprintf(ckPortfolioResult, userID),
		fmt.Sprintf(ckTimelineResult, userID),
	}
	for _, key := range keysToDelete {
		s.reportCache.Delete(key)
	}
	logger.L.Info("Invalidated all caches for user", "userID", userID)
}

// FetchUserTransactions loads the user's full stored log, oldest first.
func FetchUserTransactions(userID int64) ([]models.Transaction, error) {
	logger.L.Debug("Fetching transactions from DB", "userID", userID)
	rows, err := database.DB.Query(`SELECT id, date, activity, fund, money_source, units, unit_price, amount, source_type, COALESCE(source_id, ''), COALESCE(plaid_transaction_id, ''), COALESCE(plaid_account_id, ''), COALESCE(primary_hash, ''), COALESCE(fuzzy_hash, ''), COALESCE(enhanced_hash, '') FROM transactions WHERE user_id = ? ORDER BY date ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying transactions for userID %d: %w", userID, err)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		scanErr := rows.Scan(&tx.ID, &tx.Date, &tx.Activity, &tx.Fund, &tx.MoneySource, &tx.Units, &tx.UnitPrice, &tx.Amount, &tx.SourceType, &tx.SourceID, &tx.PlaidTransactionID, &tx.PlaidAccountID, &tx.PrimaryHash, &tx.FuzzyHash, &tx.EnhancedHash)
		if scanErr != nil {
			return nil, fmt.Errorf("error scanning transaction row for userID %d: %w", userID, scanErr)
		}
		transactions = append(transactions, tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over transaction rows for userID %d: %w", userID, err)
	}
	logger.L.Debug("DB fetch complete", "userID", userID, "transactionCount", len(transactions))
	return transactions, nil
}

// DeleteAllUserTransactions wipes the user's stored log.
func DeleteAllUserTransactions(userID int64) (int64, error) {
	result, err := database.DB.Exec(`DELETE FROM transactions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("error deleting transactions for userID %d: %w", userID, err)
	}
	deleted, _ := result.RowsAffected()
	logger.L.Info("Deleted all transactions for user", "userID", userID, "count", deleted)
	return deleted, nil
}
