package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalCamelCase(t *testing.T) {
	payload := `{
		"date": "2024-03-15",
		"activity": "Contribution",
		"fund": "Vanguard 500 Index",
		"moneySource": "Employee PreTax",
		"units": 10.5,
		"unitPrice": 95.25,
		"amount": 1000.13
	}`

	var tx Transaction
	require.NoError(t, json.Unmarshal([]byte(payload), &tx))

	assert.Equal(t, "2024-03-15", tx.Date)
	assert.Equal(t, "Contribution", tx.Activity)
	assert.Equal(t, "Vanguard 500 Index", tx.Fund)
	assert.Equal(t, "Employee PreTax", tx.MoneySource)
	assert.Equal(t, 10.5, tx.Units)
	assert.Equal(t, 95.25, tx.UnitPrice)
	assert.Equal(t, 1000.13, tx.Amount)
}

func TestUnmarshalSnakeCaseEquivalent(t *testing.T) {
	camel := `{"date":"2024-03-15","fund":"F","moneySource":"Match","unitPrice":10,"units":1,"amount":10,"activity":"Buy","primaryHash":"abc"}`
	snake := `{"date":"2024-03-15","fund":"F","money_source":"Match","unit_price":10,"units":1,"amount":10,"activity":"Buy","primary_hash":"abc"}`

	var fromCamel, fromSnake Transaction
	require.NoError(t, json.Unmarshal([]byte(camel), &fromCamel))
	require.NoError(t, json.Unmarshal([]byte(snake), &fromSnake))

	assert.Equal(t, fromCamel, fromSnake)
	assert.Equal(t, "Match", fromSnake.MoneySource)
	assert.Equal(t, "abc", fromSnake.PrimaryHash)
}

func TestUnmarshalQuotedNumbers(t *testing.T) {
	payload := `{"date":"2024-01-02","fund":"F","activity":"Buy","units":"2.5","unitPrice":" 40 ","amount":"100"}`

	var tx Transaction
	require.NoError(t, json.Unmarshal([]byte(payload), &tx))

	assert.Equal(t, 2.5, tx.Units)
	assert.Equal(t, 40.0, tx.UnitPrice)
	assert.Equal(t, 100.0, tx.Amount)
}

func TestUnmarshalMalformedNumbersBecomeZero(t *testing.T) {
	payload := `{"date":"2024-01-02","fund":"F","activity":"Buy","units":"n/a","amount":{"nested":true}}`

	var tx Transaction
	require.NoError(t, json.Unmarshal([]byte(payload), &tx))

	assert.Zero(t, tx.Units)
	assert.Zero(t, tx.Amount)
}

func TestUnmarshalNumericFundCode(t *testing.T) {
	payload := `{"date":"2024-01-02","fund":1234,"activity":"Buy"}`

	var tx Transaction
	require.NoError(t, json.Unmarshal([]byte(payload), &tx))

	assert.Equal(t, "1234", tx.Fund)
}

func TestSafeNumber(t *testing.T) {
	assert.Equal(t, 0.0, SafeNumber(math.NaN()))
	assert.Equal(t, 0.0, SafeNumber(math.Inf(1)))
	assert.Equal(t, 0.0, SafeNumber(math.Inf(-1)))
	assert.Equal(t, -2.5, SafeNumber(-2.5))
}

func TestHasFingerprint(t *testing.T) {
	assert.False(t, (&Transaction{}).HasFingerprint())
	assert.True(t, (&Transaction{FuzzyHash: "f"}).HasFingerprint())
	assert.True(t, (&Transaction{PrimaryHash: "p"}).HasFingerprint())
}
