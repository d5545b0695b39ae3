package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/fundfolio/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateTransactionTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		auth_provider TEXT DEFAULT 'local',
		is_email_verified BOOLEAN DEFAULT FALSE,
		email_verification_token TEXT,
		email_verification_token_expires_at TIMESTAMP,
		password_reset_token TEXT,
		password_reset_token_expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		user_agent TEXT,
		client_ip TEXT,
		is_blocked BOOLEAN DEFAULT FALSE,
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		date TEXT NOT NULL,
		activity TEXT NOT NULL,
		fund TEXT NOT NULL,
		money_source TEXT NOT NULL,
		units REAL DEFAULT 0,
		unit_price REAL DEFAULT 0,
		amount REAL DEFAULT 0,
		source_type TEXT DEFAULT 'manual',
		source_id TEXT,
		plaid_transaction_id TEXT,
		plaid_account_id TEXT,
		primary_hash TEXT,
		fuzzy_hash TEXT,
		enhanced_hash TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id),
		UNIQUE(user_id, primary_hash)
	);

	CREATE TABLE IF NOT EXISTS fund_ticker_map (
		fund_name TEXT PRIMARY KEY,
		ticker_symbol TEXT NOT NULL,
		conversion_ratio REAL DEFAULT 1.0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_checked_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS portfolio_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		snapshot_date TEXT NOT NULL,
		total_market_value REAL NOT NULL,
		total_cost_basis REAL NOT NULL,
		total_gain_loss REAL NOT NULL,
		total_gain_loss_percent REAL NOT NULL,
		snapshot_source TEXT DEFAULT 'backfill',
		market_status TEXT DEFAULT 'closed',
		FOREIGN KEY(user_id) REFERENCES users(id),
		UNIQUE(user_id, snapshot_date)
	);

	CREATE TABLE IF NOT EXISTS holdings_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		snapshot_date TEXT NOT NULL,
		fund TEXT NOT NULL,
		account_name TEXT NOT NULL,
		shares REAL NOT NULL,
		unit_price REAL NOT NULL,
		market_value REAL NOT NULL,
		cost_basis REAL NOT NULL,
		gain_loss REAL NOT NULL,
		price_source TEXT DEFAULT 'historical',
		FOREIGN KEY(user_id) REFERENCES users(id)
	);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

// migrateTransactionTable adds columns introduced after the first release
// (Plaid provenance and the enhanced fingerprint) to older databases.
func migrateTransactionTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='transactions'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			return // table will be created with the full schema
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'transactions' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'transactions' table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(transactions)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'transactions'", "error", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'transactions'", "error", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'transactions'", "error", err)
		}
		return
	}

	addColumn := func(name, ddl string) {
		if columnExists[name] {
			return
		}
		if _, err := DB.Exec("ALTER TABLE transactions ADD COLUMN " + ddl); err != nil {
			if logger.L != nil {
				logger.L.Error("Error adding column to 'transactions'", "column", name, "error", err)
			}
		} else if logger.L != nil {
			logger.L.Info("Added column to 'transactions' table", "column", name)
		}
	}

	addColumn("plaid_transaction_id", "plaid_transaction_id TEXT")
	addColumn("plaid_account_id", "plaid_account_id TEXT")
	addColumn("enhanced_hash", "enhanced_hash TEXT")
	addColumn("source_id", "source_id TEXT")
}
