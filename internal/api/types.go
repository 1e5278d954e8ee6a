package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// envelope mirrors the upstream response wrapper {status, data}
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// errorBody mirrors the upstream error body
type errorBody struct {
	Detail string `json:"detail"`
}

// Entry is one key/value pair of an Ordered object.
type Entry[V any] struct {
	Key   string
	Value V
}

// Ordered is a JSON object decoded with its key order preserved.
type Ordered[V any] []Entry[V]

func (o *Ordered[V]) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*o = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	out := Ordered[V]{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := kt.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", kt)
		}
		var v V
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		out = append(out, Entry[V]{Key: key, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = out
	return nil
}

func (o Ordered[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", e.Key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the value stored under key.
func (o Ordered[V]) Get(key string) (V, bool) {
	for _, e := range o {
		if e.Key == key {
			return e.Value, true
		}
	}
	var zero V
	return zero, false
}

// Keys returns the keys in response order.
func (o Ordered[V]) Keys() []string {
	keys := make([]string, len(o))
	for i, e := range o {
		keys[i] = e.Key
	}
	return keys
}

// FundInfo is the detail object of one fund, fields in response order.
type FundInfo = Ordered[json.RawMessage]

// Weights maps fund code to allocation (0..1), in response order.
type Weights = Ordered[float64]

// OptimizeRequest is the body of POST /optimize.
type OptimizeRequest struct {
	FundPool     []string `json:"fund_pool"`
	Method       string   `json:"method"`
	RiskAversion float64  `json:"risk_aversion"`
}

// Optimizer methods accepted by the upstream server.
const (
	MethodMeanVariance = "mean_variance"
	MethodRiskParity   = "risk_parity"
	MethodMinVariance  = "min_variance"

	DefaultMethod       = MethodMeanVariance
	DefaultRiskAversion = 2.0
)

// ValidMethod reports whether m is an optimizer method the server knows.
func ValidMethod(m string) bool {
	switch m {
	case MethodMeanVariance, MethodRiskParity, MethodMinVariance:
		return true
	}
	return false
}

// OptimizationResult carries the weights and whatever else the optimizer returned.
type OptimizationResult struct {
	Weights Weights
	Extra   Ordered[json.RawMessage]
}

func (r *OptimizationResult) UnmarshalJSON(b []byte) error {
	var all Ordered[json.RawMessage]
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	r.Weights, r.Extra = nil, nil
	for _, e := range all {
		if e.Key == "weights" {
			if err := json.Unmarshal(e.Value, &r.Weights); err != nil {
				return fmt.Errorf("weights: %w", err)
			}
			continue
		}
		r.Extra = append(r.Extra, e)
	}
	return nil
}

// MarshalJSON writes weights first, then the other fields in response order.
func (r OptimizationResult) MarshalJSON() ([]byte, error) {
	return withField("weights", r.Weights, r.Extra)
}

// BacktestRequest is the body of POST /backtest.
type BacktestRequest struct {
	FundPool  []string `json:"fund_pool"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
}

// Sample is one point of the portfolio value series.
type Sample struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// ValueSeries is the portfolio value over time. It decodes from either a
// list of {date,value} or a {date: value} object.
type ValueSeries []Sample

func (s *ValueSeries) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = nil
		return nil
	}
	if b[0] == '[' {
		var list []Sample
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*s = list
		return nil
	}
	var byDate Ordered[float64]
	if err := json.Unmarshal(b, &byDate); err != nil {
		return err
	}
	out := make(ValueSeries, len(byDate))
	for i, e := range byDate {
		out[i] = Sample{Date: e.Key, Value: e.Value}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	*s = out
	return nil
}

// BacktestResult is the simulator output.
type BacktestResult struct {
	PortfolioValue ValueSeries
	Extra          Ordered[json.RawMessage]
}

func (r *BacktestResult) UnmarshalJSON(b []byte) error {
	var all Ordered[json.RawMessage]
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	r.PortfolioValue, r.Extra = nil, nil
	for _, e := range all {
		if e.Key == "portfolio_value" {
			if err := json.Unmarshal(e.Value, &r.PortfolioValue); err != nil {
				return fmt.Errorf("portfolio_value: %w", err)
			}
			continue
		}
		r.Extra = append(r.Extra, e)
	}
	return nil
}

func (r BacktestResult) MarshalJSON() ([]byte, error) {
	return withField("portfolio_value", r.PortfolioValue, r.Extra)
}

func withField(key string, value any, extra Ordered[json.RawMessage]) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	all := append(Ordered[json.RawMessage]{{Key: key, Value: raw}}, extra...)
	return json.Marshal(all)
}

// MarketStatus is the upstream market snapshot.
type MarketStatus struct {
	MarketTrend   string           `json:"market_trend"`
	RiskLevel     string           `json:"risk_level"`
	StyleRotation string           `json:"style_rotation"`
	IndicesChange Ordered[float64] `json:"indices_change"`
}

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	Portfolio map[string]float64 `json:"portfolio"`
	StartDate string             `json:"start_date,omitempty"`
	EndDate   string             `json:"end_date,omitempty"`
}

// Analysis is the upstream portfolio analysis.
type Analysis struct {
	RiskMetrics  Ordered[json.RawMessage] `json:"risk_metrics"`
	MarketStatus MarketStatus             `json:"market_status"`
	Performance  Ordered[float64]         `json:"performance"`
}

// LegacyOptimizeRequest is the body of POST /api/optimize.
type LegacyOptimizeRequest struct {
	FundCodes []string `json:"fund_codes"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
}

// LegacyOptimizeResult is returned by /api/optimize without an envelope.
type LegacyOptimizeResult struct {
	Weights Weights `json:"weights"`
}
