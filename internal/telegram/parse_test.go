package telegram

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"fundfolio/internal/api"
)

func TestParseOptimize(t *testing.T) {
	cases := []struct {
		in      string
		want    api.OptimizeRequest
		wantErr bool
	}{
		{in: "000001 000002", want: api.OptimizeRequest{FundPool: []string{"000001", "000002"}, Method: api.DefaultMethod, RiskAversion: 2}},
		{in: "a,b,a", want: api.OptimizeRequest{FundPool: []string{"A", "B"}, Method: api.DefaultMethod, RiskAversion: 2}},
		{in: "A B min_variance", want: api.OptimizeRequest{FundPool: []string{"A", "B"}, Method: api.MethodMinVariance, RiskAversion: 2}},
		{in: "A B RISK_PARITY 1.5", want: api.OptimizeRequest{FundPool: []string{"A", "B"}, Method: api.MethodRiskParity, RiskAversion: 1.5}},
		{in: "A mean_variance -1", wantErr: true},
		{in: "mean_variance", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, c := range cases {
		got, err := parseOptimize(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseOptimize(%q) = %+v, want error", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseOptimize(%q): %v", c.in, err)
			continue
		}
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("parseOptimize(%q) mismatch (-want +got):\n%s", c.in, diff)
		}
	}
}

func TestParseBacktest(t *testing.T) {
	now := time.Date(2024, 3, 31, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		in      string
		want    api.BacktestRequest
		wantErr bool
	}{
		{in: "A B 2023-01-01 2023-12-31", want: api.BacktestRequest{FundPool: []string{"A", "B"}, StartDate: "2023-01-01", EndDate: "2023-12-31"}},
		{in: "A 30d", want: api.BacktestRequest{FundPool: []string{"A"}, StartDate: "2024-03-01", EndDate: "2024-03-31"}},
		{in: "A B 2w", want: api.BacktestRequest{FundPool: []string{"A", "B"}, StartDate: "2024-03-17", EndDate: "2024-03-31"}},
		{in: "A 1y", want: api.BacktestRequest{FundPool: []string{"A"}, StartDate: "2023-03-31", EndDate: "2024-03-31"}},
		{in: "A 2023-12-31 2023-01-01", wantErr: true},
		{in: "A B", wantErr: true},
		{in: "1y", wantErr: true},
	}
	for _, c := range cases {
		got, err := parseBacktest(c.in, now)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseBacktest(%q) = %+v, want error", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseBacktest(%q): %v", c.in, err)
			continue
		}
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("parseBacktest(%q) mismatch (-want +got):\n%s", c.in, diff)
		}
	}
}

func TestResolveWindow(t *testing.T) {
	now := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		in, start string
		wantErr   bool
	}{
		{in: "7d", start: "2024-05-24"},
		{in: "1W", start: "2024-05-24"},
		{in: "3m", start: "2024-03-02"},
		{in: "2y", start: "2022-05-31"},
		{in: "0d", wantErr: true},
		{in: "5x", wantErr: true},
		{in: "d", wantErr: true},
		{in: "1.5m", wantErr: true},
	}
	for _, c := range cases {
		start, end, err := resolveWindow(c.in, now)
		if c.wantErr {
			if err == nil {
				t.Errorf("resolveWindow(%q) = %s, want error", c.in, start)
			}
			continue
		}
		if err != nil {
			t.Errorf("resolveWindow(%q): %v", c.in, err)
			continue
		}
		if start != c.start || end != "2024-05-31" {
			t.Errorf("resolveWindow(%q) = %s..%s, want %s..2024-05-31", c.in, start, end, c.start)
		}
	}
}

func TestParseAnalyze(t *testing.T) {
	now := time.Date(2024, 3, 31, 10, 0, 0, 0, time.UTC)
	got, err := parseAnalyze("a 0.5 b 0.25", now)
	if err != nil {
		t.Fatal(err)
	}
	want := api.AnalyzeRequest{Portfolio: map[string]float64{"A": 0.5, "B": 0.25}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	got, err = parseAnalyze("A 1 1y", now)
	if err != nil {
		t.Fatal(err)
	}
	if got.StartDate != "2023-03-31" || got.EndDate != "2024-03-31" {
		t.Errorf("dates = %s..%s", got.StartDate, got.EndDate)
	}

	for _, in := range []string{"", "A", "A x", "A 1.5", "A 0 B 0.5", "A 0.6 A 0.3", "A 0.7 B 0.7", "A 0.5 B"} {
		if _, err := parseAnalyze(in, now); err == nil {
			t.Errorf("parseAnalyze(%q): want error", in)
		}
	}
}
