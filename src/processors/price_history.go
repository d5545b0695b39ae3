package processors

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/username/fundfolio/backend/src/logger"
)

// historicalPrices maps ticker symbol -> "YYYY-MM-DD" -> closing price.
var historicalPrices map[string]map[string]float64
var pricesLoaded bool = false

// LoadHistoricalPrices loads the closing price history from the
// specified file path. This should be called once from main.go after
// config is loaded.
func LoadHistoricalPrices(filePath string) error {
	logger.L.Info("Loading historical closing prices", "path", filePath)
	file, err := os.ReadFile(filePath)
	if err != nil {
		logger.L.Error("Error reading historical price file", "path", filePath, "error", err)
		return fmt.Errorf("error reading historical price file '%s': %w", filePath, err)
	}

	err = json.Unmarshal(file, &historicalPrices)
	if err != nil {
		logger.L.Error("Error unmarshalling historical prices", "path", filePath, "error", err)
		return fmt.Errorf("error unmarshalling historical prices from '%s': %w", filePath, err)
	}
	pricesLoaded = true
	logger.L.Info("Historical closing prices loaded successfully.", "path", filePath, "tickerCount", len(historicalPrices))
	return nil
}

// SetHistoricalPrices replaces the loaded price table. Intended for
// snapshot backfill tests that cannot touch the filesystem.
func SetHistoricalPrices(prices map[string]map[string]float64) {
	historicalPrices = prices
	pricesLoaded = prices != nil
}

// GetClosingPrice retrieves the closing price for a ticker on a given
// date. Weekends and market holidays have no entry, so it falls back to
// the most recent prior trading day within a week.
func GetClosingPrice(ticker string, date time.Time) (float64, error) {
	if !pricesLoaded {
		logger.L.Error("Attempted to GetClosingPrice before prices were loaded.")
		return 0, fmt.Errorf("historical prices not loaded")
	}

	series, ok := historicalPrices[ticker]
	if !ok {
		return 0, fmt.Errorf("no price history for ticker %s", ticker)
	}

	for lookback := 0; lookback < 7; lookback++ {
		dateStr := date.AddDate(0, 0, -lookback).Format("2006-01-02")
		if price, ok := series[dateStr]; ok && price > 0 {
			return price, nil
		}
	}

	dateStr := date.Format("2006-01-02")
	logger.L.Warn("Closing price not found", "ticker", ticker, "date", dateStr)
	return 0, fmt.Errorf("closing price not found for %s on or before %s", ticker, dateStr)
}

// ClosingPriceOn returns the price recorded exactly on the given date,
// with no prior-day fallback.
func ClosingPriceOn(ticker, date string) (float64, bool) {
	series, ok := historicalPrices[ticker]
	if !ok {
		return 0, false
	}
	price, ok := series[date]
	if !ok || price <= 0 {
		return 0, false
	}
	return price, true
}

// EarliestPriceDate returns the first date with any price data for the
// ticker, or false when the ticker is unknown.
func EarliestPriceDate(ticker string) (time.Time, bool) {
	series, ok := historicalPrices[ticker]
	if !ok || len(series) == 0 {
		return time.Time{}, false
	}
	dates := make([]string, 0, len(series))
	for d := range series {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	earliest, err := time.Parse("2006-01-02", dates[0])
	if err != nil {
		return time.Time{}, false
	}
	return earliest, true
}
