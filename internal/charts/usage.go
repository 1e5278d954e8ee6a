package charts

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"fundfolio/internal/storage"
)

// RenderUsage draws the share of submissions per form over the last days onto canvas.
func (r *Renderer) RenderUsage(canvas string, stats map[string]*storage.UsageStats, days int) (*Chart, error) {
	if len(stats) == 0 {
		return nil, errors.New("no usage data available")
	}
	forms := sortedForms(stats)
	total := 0
	for _, f := range forms {
		total += stats[f].Count
	}
	if total == 0 {
		return nil, errors.New("no usage data available")
	}
	labels := make([]string, len(forms))
	values := make([]float64, len(forms))
	for i, f := range forms {
		values[i] = float64(stats[f].Count)
		labels[i] = fmt.Sprintf("%s (%.1f%%)", formatFormName(f), values[i]/float64(total)*100)
	}
	title := fmt.Sprintf("Submissions by Form (%d days)", days)
	key := cacheKey(KindUsage, title, labels, values)
	img, ok := r.cache.get(key)
	if !ok {
		var err error
		img, err = r.draw.pie(title, labels, values)
		if err != nil {
			return nil, fmt.Errorf("failed to render usage chart: %w", err)
		}
		r.cache.set(key, img)
	}
	return r.install(canvas, KindUsage, img), nil
}

// FormatUsageText is the plain text version of the usage chart.
func FormatUsageText(stats map[string]*storage.UsageStats, days int) string {
	if len(stats) == 0 {
		return "No submissions recorded for the specified period."
	}
	forms := sortedForms(stats)
	total := 0
	for _, f := range forms {
		total += stats[f].Count
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Usage (%d days)\n\nTotal submissions: %d\n\n", days, total)
	for _, f := range forms {
		s := stats[f]
		pct := 0.0
		if total > 0 {
			pct = float64(s.Count) / float64(total) * 100
		}
		fmt.Fprintf(&b, "%s: %d (%.1f%%)\n", formatFormName(f), s.Count, pct)
		outcomes := make([]string, 0, len(s.Outcomes))
		for o := range s.Outcomes {
			outcomes = append(outcomes, o)
		}
		sort.Strings(outcomes)
		for _, o := range outcomes {
			fmt.Fprintf(&b, "  • %s: %d\n", o, s.Outcomes[o])
		}
	}
	return b.String()
}

func sortedForms(stats map[string]*storage.UsageStats) []string {
	forms := make([]string, 0, len(stats))
	for f := range stats {
		forms = append(forms, f)
	}
	sort.Strings(forms)
	return forms
}

// formatFormName converts form names to display names
func formatFormName(form string) string {
	switch form {
	case storage.FormFunds:
		return "Fund list"
	case storage.FormFund:
		return "Fund detail"
	case storage.FormOptimize:
		return "Optimize"
	case storage.FormBacktest:
		return "Backtest"
	case storage.FormLegacyOptimize:
		return "Optimize (legacy)"
	case storage.FormMarket:
		return "Market status"
	case storage.FormAnalyze:
		return "Portfolio analysis"
	case storage.FormFrontier:
		return "Efficient frontier"
	case storage.FormTree:
		return "Portfolio tree"
	default:
		return form
	}
}
