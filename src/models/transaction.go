package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Transaction is the atomic record of the system: one line of 401(k) or
// brokerage activity. Records arrive from manual paste, CSV import or a
// Plaid sync, and may use either camelCase or snake_case field names on
// the wire; UnmarshalJSON folds both spellings into this one shape before
// anything downstream sees the record.
type Transaction struct {
	ID          int64   `json:"id,omitempty"`
	Date        string  `json:"date"` // YYYY-MM-DD
	Activity    string  `json:"activity"`
	Fund        string  `json:"fund"`
	MoneySource string  `json:"moneySource"`
	Units       float64 `json:"units"`
	UnitPrice   float64 `json:"unitPrice"`
	Amount      float64 `json:"amount"`

	// Provenance
	SourceType         string `json:"sourceType,omitempty"` // manual | plaid | csv
	SourceID           string `json:"sourceId,omitempty"`
	PlaidTransactionID string `json:"plaidTransactionId,omitempty"`
	PlaidAccountID     string `json:"plaidAccountId,omitempty"`

	// Fingerprints, populated once reconciled. Legacy rows may have none.
	PrimaryHash  string `json:"primaryHash,omitempty"`
	FuzzyHash    string `json:"fuzzyHash,omitempty"`
	EnhancedHash string `json:"enhancedHash,omitempty"`
}

// HasFingerprint reports whether the record carries any usable fingerprint.
// Rows predating the reconciliation engine have none and are skipped by
// duplicate matching.
func (t *Transaction) HasFingerprint() bool {
	return t.PrimaryHash != "" || t.FuzzyHash != "" || t.EnhancedHash != ""
}

// LivePrice is a caller-supplied current quote for a fund symbol.
type LivePrice struct {
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"changePercent,omitempty"`
	UpdatedAt     string  `json:"updatedAt,omitempty"`
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	fields := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		fields[canonicalKey(k)] = v
	}

	t.ID = int64(numberField(fields, "id"))
	t.Date = stringField(fields, "date")
	t.Activity = stringField(fields, "activity")
	t.Fund = stringField(fields, "fund")
	t.MoneySource = stringField(fields, "moneysource")
	t.Units = numberField(fields, "units")
	t.UnitPrice = numberField(fields, "unitprice")
	t.Amount = numberField(fields, "amount")
	t.SourceType = stringField(fields, "sourcetype")
	t.SourceID = stringField(fields, "sourceid")
	t.PlaidTransactionID = stringField(fields, "plaidtransactionid")
	t.PlaidAccountID = stringField(fields, "plaidaccountid")
	t.PrimaryHash = stringField(fields, "primaryhash")
	t.FuzzyHash = stringField(fields, "fuzzyhash")
	t.EnhancedHash = stringField(fields, "enhancedhash")
	return nil
}

// canonicalKey maps both camelCase and snake_case spellings of a field
// name onto one lookup key ("money_source" and "moneySource" both become
// "moneysource").
func canonicalKey(k string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(k)), "_", "")
}

func stringField(fields map[string]json.RawMessage, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	// Tolerate numbers where a string was expected (fund codes etc).
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

// numberField coerces a numeric field to float64, accepting quoted
// numbers and treating anything missing or unparseable as 0.
func numberField(fields map[string]json.RawMessage, key string) float64 {
	v, ok := fields[key]
	if !ok {
		return 0
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return SafeNumber(f)
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		return SafeNumber(parsed)
	}
	return 0
}

// SafeNumber maps NaN and infinities to 0 so malformed input never
// poisons the lot math.
func SafeNumber(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
