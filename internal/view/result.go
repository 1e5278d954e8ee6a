package view

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"

	"fundfolio/internal/api"
)

var hundred = decimal.NewFromInt(100)

// WeightRow is one row of the weights table.
type WeightRow struct {
	Code    string
	Percent string
}

// Percent formats a 0..1 weight as a percentage with two decimals.
func Percent(w float64) string {
	return decimal.NewFromFloat(w).Mul(hundred).StringFixed(2) + "%"
}

// WeightRows renders weights as table rows, in response order.
func WeightRows(w api.Weights) []WeightRow {
	rows := make([]WeightRow, 0, len(w))
	for _, e := range w {
		rows = append(rows, WeightRow{Code: e.Key, Percent: Percent(e.Value)})
	}
	return rows
}

// AuxFields renders the auxiliary result fields as indented JSON text.
func AuxFields(extra api.Ordered[json.RawMessage]) []Field {
	out := make([]Field, 0, len(extra))
	for _, e := range extra {
		var buf bytes.Buffer
		val := string(e.Value)
		if json.Indent(&buf, e.Value, "", "  ") == nil {
			val = buf.String()
		}
		out = append(out, Field{Key: e.Key, Label: e.Key, Value: val})
	}
	return out
}
