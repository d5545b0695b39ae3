package model

import (
	"database/sql"
	"strings"
	"time"
)

// FundTickerMap represents a row in the fund_ticker_map table. It maps a
// provider's descriptive fund name (e.g. "0899 Vanguard 500 Index Fund
// Adm") to the exchange ticker whose quotes price it, plus the unit
// conversion ratio for funds whose NAV is a fraction of the underlying
// ETF price.
type FundTickerMap struct {
	FundName        string       `json:"fundName"`
	TickerSymbol    string       `json:"tickerSymbol"`
	ConversionRatio float64      `json:"conversionRatio"`
	CreatedAt       time.Time    `json:"createdAt"`
	LastCheckedAt   sql.NullTime `json:"lastCheckedAt"`
}

// GetMappingsByFunds retrieves fund-to-ticker mappings for a set of fund
// names in a single query, returned as a map keyed by fund name.
func GetMappingsByFunds(db *sql.DB, funds []string) (map[string]FundTickerMap, error) {
	mappings := make(map[string]FundTickerMap)
	if len(funds) == 0 {
		return mappings, nil
	}

	query := `SELECT fund_name, ticker_symbol, conversion_ratio, created_at, last_checked_at
		FROM fund_ticker_map WHERE fund_name IN (?` + strings.Repeat(",?", len(funds)-1) + `)`

	args := make([]interface{}, len(funds))
	for i, fund := range funds {
		args[i] = fund
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var mapping FundTickerMap
		if err := rows.Scan(
			&mapping.FundName,
			&mapping.TickerSymbol,
			&mapping.ConversionRatio,
			&mapping.CreatedAt,
			&mapping.LastCheckedAt,
		); err != nil {
			return nil, err
		}
		if mapping.ConversionRatio == 0 {
			mapping.ConversionRatio = 1.0
		}
		mappings[mapping.FundName] = mapping
	}

	return mappings, rows.Err()
}

// GetAllMappings returns every fund-to-ticker mapping, ordered by fund name.
func GetAllMappings(db *sql.DB) ([]FundTickerMap, error) {
	rows, err := db.Query(`SELECT fund_name, ticker_symbol, conversion_ratio, created_at, last_checked_at
		FROM fund_ticker_map ORDER BY fund_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []FundTickerMap
	for rows.Next() {
		var mapping FundTickerMap
		if err := rows.Scan(
			&mapping.FundName,
			&mapping.TickerSymbol,
			&mapping.ConversionRatio,
			&mapping.CreatedAt,
			&mapping.LastCheckedAt,
		); err != nil {
			return nil, err
		}
		if mapping.ConversionRatio == 0 {
			mapping.ConversionRatio = 1.0
		}
		mappings = append(mappings, mapping)
	}

	return mappings, rows.Err()
}

// UpsertMapping inserts or replaces a fund-to-ticker mapping.
func UpsertMapping(db *sql.DB, mapping FundTickerMap) error {
	if mapping.ConversionRatio == 0 {
		mapping.ConversionRatio = 1.0
	}
	query := `
		INSERT INTO fund_ticker_map (fund_name, ticker_symbol, conversion_ratio, last_checked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(fund_name) DO UPDATE SET
			ticker_symbol = excluded.ticker_symbol,
			conversion_ratio = excluded.conversion_ratio,
			last_checked_at = excluded.last_checked_at`

	_, err := db.Exec(query, mapping.FundName, mapping.TickerSymbol, mapping.ConversionRatio, time.Now())
	return err
}
