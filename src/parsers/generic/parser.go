package generic

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/models"
)

// GenericParser reads the app's own CSV export format: a header row
// naming the columns, one transaction per row. Column names are matched
// case-insensitively with underscores ignored, so "unit_price",
// "unitPrice" and "Unit Price" all resolve to the same field.
type GenericParser struct{}

func NewParser() *GenericParser {
	return &GenericParser{}
}

func (p *GenericParser) Parse(file io.Reader) ([]models.Transaction, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int)
	for i, name := range header {
		columns[canonicalColumn(name)] = i
	}
	for _, required := range []string{"date", "fund", "activity"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("CSV header missing required column: %s", required)
		}
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read all CSV records: %w", err)
	}

	var txs []models.Transaction
	for i, record := range records {
		tx := models.Transaction{
			Date:        field(record, columns, "date"),
			Fund:        field(record, columns, "fund"),
			MoneySource: field(record, columns, "moneysource"),
			Activity:    field(record, columns, "activity"),
			Units:       numberField(record, columns, "units"),
			UnitPrice:   numberField(record, columns, "unitprice"),
			Amount:      numberField(record, columns, "amount"),
		}
		if tx.Date == "" || tx.Fund == "" {
			logger.L.Warn("Skipping CSV row with missing date or fund", "row", i+2)
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func canonicalColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "")
	return strings.ReplaceAll(name, " ", "")
}

func field(record []string, columns map[string]int, key string) string {
	i, ok := columns[key]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func numberField(record []string, columns map[string]int, key string) float64 {
	raw := field(record, columns, key)
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return value
}
