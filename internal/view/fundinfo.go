package view

import (
	"bytes"
	"encoding/json"

	"fundfolio/internal/api"
)

// Toggle labels of the fund info view.
const (
	LabelShowFull    = "show full"
	LabelShowSummary = "show summary"
)

// Field is one rendered row of the fund info view.
type Field struct {
	Key   string
	Label string
	Value string
}

var summaryFields = []struct{ key, label string }{
	{"fund_code", "Code"},
	{"fund_name", "Name"},
	{"fund_type", "Type"},
	{"manager", "Manager"},
}

// FundInfoView swaps between the summary and the full projection of one
// fund info object.
type FundInfoView struct {
	summary []Field
	full    []Field
	showAll bool
}

func NewFundInfoView(info api.FundInfo) *FundInfoView {
	v := &FundInfoView{}
	v.Load(info)
	return v
}

// Load replaces the source object and resets the view to summary.
func (v *FundInfoView) Load(info api.FundInfo) {
	v.summary = make([]Field, 0, len(summaryFields))
	for _, f := range summaryFields {
		val := "-"
		if raw, ok := info.Get(f.key); ok {
			val = formatValue(raw)
		}
		v.summary = append(v.summary, Field{Key: f.key, Label: f.label, Value: val})
	}
	v.full = make([]Field, 0, len(info))
	for _, e := range info {
		v.full = append(v.full, Field{Key: e.Key, Label: e.Key, Value: formatValue(e.Value)})
	}
	v.showAll = false
}

// Toggle swaps the projection.
func (v *FundInfoView) Toggle() { v.showAll = !v.showAll }

// Full reports whether the full projection is displayed.
func (v *FundInfoView) Full() bool { return v.showAll }

// Fields returns the rows currently displayed.
func (v *FundInfoView) Fields() []Field {
	if v.showAll {
		return append([]Field(nil), v.full...)
	}
	return append([]Field(nil), v.summary...)
}

// Label is the text of the toggle control.
func (v *FundInfoView) Label() string {
	if v.showAll {
		return LabelShowSummary
	}
	return LabelShowFull
}

// formatValue renders a JSON value as display text: strings unquoted,
// null as "-", anything else compact.
func formatValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "-"
	}
	if raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if json.Compact(&buf, raw) == nil {
		return buf.String()
	}
	return string(raw)
}
