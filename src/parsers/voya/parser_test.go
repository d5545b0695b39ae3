package voya

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatementCSV(t *testing.T) {
	csv := `Date,Fund,Money Source,Activity,Units,Unit Price,Amount
01/15/2024,0899 Vanguard 500 Index Fund Adm,Employee PreTax,Contribution,"10.5000","$30.00","$315.00"
02/01/2024,0899 Vanguard 500 Index Fund Adm,Employee PreTax,Fee,"(0.1000)","$30.00","($3.00)"
`
	txs, err := NewParser().Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, "2024-01-15", txs[0].Date)
	assert.Equal(t, "0899 Vanguard 500 Index Fund Adm", txs[0].Fund)
	assert.Equal(t, "Employee PreTax", txs[0].MoneySource)
	assert.InDelta(t, 10.5, txs[0].Units, 1e-9)
	assert.InDelta(t, 30, txs[0].UnitPrice, 1e-9)
	assert.InDelta(t, 315, txs[0].Amount, 1e-9)

	assert.InDelta(t, -0.1, txs[1].Units, 1e-9)
}

func TestParseSkipsBadRows(t *testing.T) {
	csv := `Date,Fund,Money Source,Activity,Units,Unit Price,Amount
not-a-date,Fund,Src,Buy,1,1,1
01/15/2024,Fund,Src,Buy
01/16/2024,Fund,Src,Buy,1,1,1
`
	txs, err := NewParser().Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "2024-01-16", txs[0].Date)
}

func TestParseStatementNumber(t *testing.T) {
	cases := map[string]float64{
		"$1,234.56":   1234.56,
		"($123.45)":   -123.45,
		"(1,000.00)":  -1000,
		"42":          42,
		"-":           0,
		"":            0,
		"not-a-value": 0,
	}
	for raw, want := range cases {
		assert.InDelta(t, want, parseStatementNumber(raw), 1e-9, raw)
	}
}
