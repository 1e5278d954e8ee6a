package telegram

import (
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"fundfolio/internal/api"
	"fundfolio/internal/charts"
	"fundfolio/internal/view"
)

// maxMessageLen is Telegram's limit on the text of one message.
const maxMessageLen = 4096

// fundsPages renders the disclosure as one or more message texts, each
// within maxMessageLen. Only an expanded list of a whole market needs more
// than one page.
func fundsPages(fundType string, d *view.Disclosure[string]) []string {
	header := fmt.Sprintf("Funds: %d\n", d.Len())
	if fundType != "" {
		header = fmt.Sprintf("Funds (%s): %d\n", fundType, d.Len())
	}
	lines := d.Visible()
	if d.State() == view.Collapsed {
		if n := d.Hidden(); n > 0 {
			lines = append(lines, fmt.Sprintf("… %d more", n))
		}
	}
	return paginate(header, lines, maxMessageLen)
}

// paginate joins lines under header, starting a new page whenever the next
// line would push the current one past limit characters.
func paginate(header string, lines []string, limit int) []string {
	var (
		pages []string
		b     strings.Builder
		n     = utf8.RuneCountInString(header)
	)
	b.WriteString(header)
	for _, l := range lines {
		ln := utf8.RuneCountInString(l) + 1
		if n+ln > limit && b.Len() > 0 {
			pages = append(pages, strings.TrimLeft(b.String(), "\n"))
			b.Reset()
			n = 0
		}
		b.WriteString("\n" + l)
		n += ln
	}
	return append(pages, strings.TrimLeft(b.String(), "\n"))
}

// fundsMarkup is nil when the list fits in the preview.
func fundsMarkup(d *view.Disclosure[string]) *tgbotapi.InlineKeyboardMarkup {
	if !d.ControlVisible() {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(d.Label(), cbFundsToggle),
	))
	return &kb
}

func fundText(code string, v *view.FundInfoView) string {
	var b strings.Builder
	b.WriteString("Fund " + code + "\n")
	for _, f := range v.Fields() {
		fmt.Fprintf(&b, "\n%s: %s", f.Label, f.Value)
	}
	return b.String()
}

func fundMarkup(v *view.FundInfoView) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(v.Label(), cbFundToggle),
	))
	return &kb
}

func weightsText(req api.OptimizeRequest, res *api.OptimizationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Optimized weights (%s, risk aversion %.2f)\n", req.Method, req.RiskAversion)
	rows := view.WeightRows(res.Weights)
	if len(rows) == 0 {
		b.WriteString("\nNo weights returned.")
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "\n%-10s %8s", r.Code, r.Percent)
	}
	for _, f := range view.AuxFields(res.Extra) {
		fmt.Fprintf(&b, "\n\n%s:\n%s", f.Label, f.Value)
	}
	return b.String()
}

func backtestText(req api.BacktestRequest, res *api.BacktestResult, stats *charts.SeriesStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Backtest %s\n%s → %s: %d samples", strings.Join(req.FundPool, ", "), req.StartDate, req.EndDate, len(res.PortfolioValue))
	if stats != nil {
		b.WriteString("\n" + stats.String())
	}
	for _, f := range view.AuxFields(res.Extra) {
		fmt.Fprintf(&b, "\n\n%s:\n%s", f.Label, f.Value)
	}
	return b.String()
}

func marketText(ms *api.MarketStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Market status\n\nTrend: %s\nRisk level: %s\nStyle rotation: %s", ms.MarketTrend, ms.RiskLevel, ms.StyleRotation)
	if len(ms.IndicesChange) > 0 {
		b.WriteString("\n")
	}
	for _, e := range ms.IndicesChange {
		fmt.Fprintf(&b, "\n%s: %+.2f%%", e.Key, e.Value)
	}
	return b.String()
}

func analysisText(a *api.Analysis) string {
	var b strings.Builder
	b.WriteString("Portfolio analysis")
	if len(a.Performance) > 0 {
		b.WriteString("\n\nPerformance")
		for _, e := range a.Performance {
			fmt.Fprintf(&b, "\n%s: %.4f", e.Key, e.Value)
		}
	}
	if len(a.RiskMetrics) > 0 {
		b.WriteString("\n\nRisk")
		for _, f := range view.AuxFields(a.RiskMetrics) {
			fmt.Fprintf(&b, "\n%s: %s", f.Label, f.Value)
		}
	}
	b.WriteString("\n\n" + marketText(&a.MarketStatus))
	return b.String()
}
