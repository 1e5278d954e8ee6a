package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fundfolio/internal/api"
	"fundfolio/internal/view"
)

// parseOptimize parses "C1 C2 ... [method [risk]]". Fund codes are often
// numeric, so a risk value is only read right after a method name.
func parseOptimize(input string) (api.OptimizeRequest, error) {
	req := api.OptimizeRequest{Method: api.DefaultMethod, RiskAversion: api.DefaultRiskAversion}
	parts := strings.Fields(input)

	if n := len(parts); n >= 2 && api.ValidMethod(strings.ToLower(parts[n-2])) {
		ra, err := strconv.ParseFloat(parts[n-1], 64)
		if err != nil || ra <= 0 {
			return req, fmt.Errorf("invalid risk aversion %q: must be a positive number", parts[n-1])
		}
		req.Method, req.RiskAversion = strings.ToLower(parts[n-2]), ra
		parts = parts[:n-2]
	} else if n > 0 && api.ValidMethod(strings.ToLower(parts[n-1])) {
		req.Method = strings.ToLower(parts[n-1])
		parts = parts[:n-1]
	}

	codes, err := parseCodes(parts)
	if err != nil {
		return req, err
	}
	req.FundPool = codes
	return req, nil
}

// parseBacktest parses "C1 C2 ... WINDOW" or "C1 C2 ... START END".
func parseBacktest(input string, now time.Time) (api.BacktestRequest, error) {
	var req api.BacktestRequest
	parts := strings.Fields(input)

	switch n := len(parts); {
	case n >= 3 && isDate(parts[n-2]) && isDate(parts[n-1]):
		req.StartDate, req.EndDate = parts[n-2], parts[n-1]
		if req.StartDate > req.EndDate {
			return req, fmt.Errorf("start date %s is after end date %s", req.StartDate, req.EndDate)
		}
		parts = parts[:n-2]
	case n >= 2 && isWindow(parts[n-1]):
		start, end, err := resolveWindow(parts[n-1], now)
		if err != nil {
			return req, err
		}
		req.StartDate, req.EndDate = start, end
		parts = parts[:n-1]
	default:
		return req, fmt.Errorf("insufficient arguments: need fund codes followed by a window (30d, 6m, 1y) or START END dates")
	}

	codes, err := parseCodes(parts)
	if err != nil {
		return req, err
	}
	req.FundPool = codes
	return req, nil
}

func parseCodes(parts []string) ([]string, error) {
	codes := view.ParseCodes(strings.Join(parts, " "))
	if len(codes) == 0 {
		return nil, fmt.Errorf("insufficient arguments: need at least one fund code")
	}
	return codes, nil
}

// parseAnalyze parses "C1 W1 C2 W2 ... [WINDOW]" where each weight is a
// fraction of the portfolio.
func parseAnalyze(input string, now time.Time) (api.AnalyzeRequest, error) {
	var req api.AnalyzeRequest
	parts := strings.Fields(input)
	if n := len(parts); n%2 == 1 && isWindow(parts[n-1]) {
		start, end, err := resolveWindow(parts[n-1], now)
		if err != nil {
			return req, err
		}
		req.StartDate, req.EndDate = start, end
		parts = parts[:n-1]
	}
	if len(parts) < 2 {
		return req, fmt.Errorf("insufficient arguments: need at least one fund code and weight")
	}
	if len(parts)%2 != 0 {
		return req, fmt.Errorf("invalid format: each fund code must have a weight")
	}

	req.Portfolio = make(map[string]float64, len(parts)/2)
	total := 0.0
	for i := 0; i < len(parts); i += 2 {
		code := strings.ToUpper(strings.Trim(parts[i], ",;"))
		raw := strings.Trim(parts[i+1], ",;")
		w, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return req, fmt.Errorf("invalid weight '%s' for fund %s: %w", raw, code, err)
		}
		if w <= 0 || w > 1 {
			return req, fmt.Errorf("weight %g for fund %s must be in (0, 1]", w, code)
		}
		if _, dup := req.Portfolio[code]; dup {
			return req, fmt.Errorf("duplicate fund: %s", code)
		}
		req.Portfolio[code] = w
		total += w
	}
	if total > 1+1e-9 {
		return req, fmt.Errorf("total weight %.3f exceeds 1.0", total)
	}
	return req, nil
}
