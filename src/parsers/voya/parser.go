package voya

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/utils"
)

// VoyaParser reads the activity-history CSV exported from the Voya
// participant site: Date, Fund, Money Source, Activity, Units, Unit
// Price, Amount. Dates arrive as MM/DD/YYYY; numbers carry dollar
// signs, thousands separators and accounting-style parentheses for
// negatives.
type VoyaParser struct{}

func NewParser() *VoyaParser {
	return &VoyaParser{}
}

const expectedColumns = 7

func (p *VoyaParser) Parse(file io.Reader) ([]models.Transaction, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read all CSV records: %w", err)
	}

	var txs []models.Transaction
	for i, record := range records {
		if len(record) < expectedColumns {
			logger.L.Warn("Skipping short Voya CSV row", "row", i+2, "columns", len(record))
			continue
		}

		date, ok := utils.NormalizeDate(strings.TrimSpace(record[0]))
		if !ok {
			logger.L.Warn("Skipping Voya CSV row with invalid date", "row", i+2, "date", record[0])
			continue
		}

		txs = append(txs, models.Transaction{
			Date:        date,
			Fund:        strings.TrimSpace(record[1]),
			MoneySource: strings.TrimSpace(record[2]),
			Activity:    strings.TrimSpace(record[3]),
			Units:       parseStatementNumber(record[4]),
			UnitPrice:   parseStatementNumber(record[5]),
			Amount:      parseStatementNumber(record[6]),
		})
	}
	return txs, nil
}

// parseStatementNumber converts statement-formatted numbers such as
// "$1,234.56" and "($123.45)" into floats. Parentheses mean negative.
func parseStatementNumber(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" || s == "-" {
		return 0
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if negative {
		value = -value
	}
	return value
}
