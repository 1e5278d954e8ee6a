package telegram

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"fundfolio/internal/api"
	"fundfolio/internal/charts"
	"fundfolio/internal/inflight"
	"fundfolio/internal/openai"
	"fundfolio/internal/storage"
	"fundfolio/internal/view"
)

var (
	// /funds [type]
	reFunds = regexp.MustCompile(`^/funds(?:@[\w_]+)?(?:\s+(\S+))?$`)
	// /fund CODE
	reFund = regexp.MustCompile(`^/fund(?:@[\w_]+)?\s+(\S+)$`)
	// /optimize C1 C2 ... [method [risk]]
	reOptimize = regexp.MustCompile(`^/optimize(?:@[\w_]+)?\s+(.+)$`)
	// /backtest C1 C2 ... WINDOW | START END
	reBacktest = regexp.MustCompile(`^/backtest(?:@[\w_]+)?\s+(.+)$`)
	// /analyze C1 W1 C2 W2 ... [WINDOW]
	reAnalyze = regexp.MustCompile(`^/analyze(?:@[\w_]+)?\s+(.+)$`)
	// /frontier [C1 C2 ...]
	reFrontier = regexp.MustCompile(`^/frontier(?:@[\w_]+)?(?:\s+(.+))?$`)
	reTree     = regexp.MustCompile(`^/tree(?:@[\w_]+)?$`)
	reMarket   = regexp.MustCompile(`^/market(?:@[\w_]+)?$`)
	reExplain  = regexp.MustCompile(`^/explain(?:@[\w_]+)?$`)
	// /history [days]
	reHistory = regexp.MustCompile(`^/history(?:@[\w_]+)?(?:\s+(\d+))?$`)
	reHelp    = regexp.MustCompile(`^/(help|start)(?:@[\w_]+)?$`)
)

// Inline button payloads.
const (
	cbFundsToggle = "funds:toggle"
	cbFundToggle  = "fund:toggle"
)

const (
	source         = "telegram"
	historyDays    = 30
	maxHistoryDays = 365
	explainTimeout = 45 * time.Second
)

// Sender is the part of the bot API the handlers use.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// FundAPI is the part of the upstream client the chat surface uses.
type FundAPI interface {
	ListFunds(ctx context.Context, fundType string) ([]string, error)
	FundInfo(ctx context.Context, code string) (api.FundInfo, error)
	Optimize(ctx context.Context, in api.OptimizeRequest) (*api.OptimizationResult, error)
	Backtest(ctx context.Context, in api.BacktestRequest) (*api.BacktestResult, error)
	MarketStatus(ctx context.Context) (*api.MarketStatus, error)
	Analyze(ctx context.Context, in api.AnalyzeRequest) (*api.Analysis, error)
	EfficientFrontier(ctx context.Context, fundPool []string) (*api.ImageRef, error)
	PortfolioTree(ctx context.Context, portfolio api.Weights) (*api.ImageRef, error)
	FetchImage(ctx context.Context, ref *api.ImageRef) ([]byte, error)
}

// Commentator explains the latest result of a chat.
type Commentator interface {
	Comment(ctx context.Context, kind string, payload any) (string, error)
}

// Deps wires the handlers; History and Commentator may be nil.
type Deps struct {
	FundAPI     FundAPI
	Renderer    *charts.Renderer
	History     *storage.Store
	Commentator Commentator
}

// chatState is what one chat last saw.
type chatState struct {
	fundType string
	funds    *view.Disclosure[string]
	fundsMsg int
	// follow-up messages carrying the rest of an expanded list
	fundsMore []int

	fundCode string
	fundInfo *view.FundInfoView
	fundMsg  int

	lastKind   string
	lastResult any

	// latest /optimize, for /frontier and /tree
	lastPool    []string
	lastWeights api.Weights
}

type Handlers struct {
	api     Sender
	deps    Deps
	tracker *inflight.Tracker
	now     func() time.Time

	mu    sync.Mutex
	chats map[int64]*chatState
}

func NewHandlers(api Sender, deps Deps) *Handlers {
	return &Handlers{
		api:     api,
		deps:    deps,
		tracker: inflight.NewTracker(),
		now:     time.Now,
		chats:   map[int64]*chatState{},
	}
}

func (h *Handlers) HandleMessage(m *tgbotapi.Message) {
	if m == nil || m.Chat == nil {
		return
	}
	chatID := m.Chat.ID
	txt := strings.TrimSpace(m.Text)
	switch {
	case reFunds.MatchString(txt):
		h.handleFunds(chatID, reFunds.FindStringSubmatch(txt)[1])
	case reFund.MatchString(txt):
		h.handleFund(chatID, strings.ToUpper(reFund.FindStringSubmatch(txt)[1]))
	case reOptimize.MatchString(txt):
		h.handleOptimize(chatID, reOptimize.FindStringSubmatch(txt)[1])
	case reBacktest.MatchString(txt):
		h.handleBacktest(chatID, reBacktest.FindStringSubmatch(txt)[1])
	case reAnalyze.MatchString(txt):
		h.handleAnalyze(chatID, reAnalyze.FindStringSubmatch(txt)[1])
	case reFrontier.MatchString(txt):
		h.handleFrontier(chatID, reFrontier.FindStringSubmatch(txt)[1])
	case reTree.MatchString(txt):
		h.handleTree(chatID)
	case reMarket.MatchString(txt):
		h.handleMarket(chatID)
	case reExplain.MatchString(txt):
		h.handleExplain(chatID)
	case reHistory.MatchString(txt):
		days := historyDays
		if g := reHistory.FindStringSubmatch(txt); g[1] != "" {
			days, _ = strconv.Atoi(g[1])
			days = max(1, min(days, maxHistoryDays))
		}
		h.handleHistory(chatID, days)
	case reHelp.MatchString(txt):
		h.handleHelp(chatID)
	}
}

// HandleCallback flips the disclosure or summary/full state behind an
// inline button and edits the message in place. An expanded list too long
// for one message continues in follow-up messages, which are deleted again
// on collapse. The state is flipped back when the edit fails.
func (h *Handlers) HandleCallback(cb *tgbotapi.CallbackQuery) {
	if cb == nil || cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID, msgID := cb.Message.Chat.ID, cb.Message.MessageID

	var (
		text     string
		more     []string
		stale    []int
		markup   *tgbotapi.InlineKeyboardMarkup
		notice   = "This message is outdated."
		rollback func(st *chatState)
	)
	h.withChat(chatID, func(st *chatState) {
		switch cb.Data {
		case cbFundsToggle:
			if st.funds == nil || st.fundsMsg != msgID {
				return
			}
			d := st.funds
			d.Toggle()
			pages := fundsPages(st.fundType, d)
			text, more, markup, notice = pages[0], pages[1:], fundsMarkup(d), ""
			stale = st.fundsMore
			rollback = func(st *chatState) {
				if st.funds == d {
					d.Toggle()
				}
			}
		case cbFundToggle:
			if st.fundInfo == nil || st.fundMsg != msgID {
				return
			}
			v := st.fundInfo
			v.Toggle()
			text, markup, notice = fundText(st.fundCode, v), fundMarkup(v), ""
			rollback = func(st *chatState) {
				if st.fundInfo == v {
					v.Toggle()
				}
			}
		default:
			notice = "Unknown action."
		}
	})

	if _, err := h.api.Request(tgbotapi.NewCallback(cb.ID, notice)); err != nil {
		log.Warn().Err(err).Msg("telegram: answer callback")
	}
	if text == "" {
		return
	}
	edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
	edit.ReplyMarkup = markup
	if _, err := h.api.Send(edit); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("telegram: edit message")
		h.withChat(chatID, rollback)
		return
	}
	if cb.Data != cbFundsToggle {
		return
	}

	for _, id := range stale {
		if _, err := h.api.Request(tgbotapi.NewDeleteMessage(chatID, id)); err != nil {
			log.Warn().Err(err).Int64("chat_id", chatID).Int("message_id", id).Msg("telegram: delete message")
		}
	}
	var sent []int
	for _, page := range more {
		if m, err := h.send(chatID, page, nil); err == nil {
			sent = append(sent, m.MessageID)
		}
	}
	h.withChat(chatID, func(st *chatState) {
		if st.fundsMsg == msgID {
			st.fundsMore = sent
		}
	})
}

// run issues a per-chat token for form, performs call and applies its
// result only while the token is still the latest. Failures are replied
// as text. It reports whether the result was applied.
func (h *Handlers) run(chatID int64, form, label string, request any, call func(ctx context.Context) (func(), error)) bool {
	key := fmt.Sprintf("%s:%d", form, chatID)
	tok := h.tracker.Issue(key)

	outcome, detail, applied := storage.OutcomeOK, "", false
	apply, err := call(context.Background())
	switch {
	case err != nil:
		outcome, detail = storage.OutcomeError, err.Error()
		log.Error().Err(err).Str("form", form).Int64("chat_id", chatID).Msg("telegram: request failed")
		h.reply(chatID, label+" failed: "+errorText(err))
	case !h.tracker.Commit(key, tok, apply):
		outcome = storage.OutcomeStale
		log.Info().Str("form", form).Int64("chat_id", chatID).Msg("telegram: stale response discarded")
	default:
		applied = true
	}
	h.record(form, request, outcome, detail)
	return applied
}

// reject answers a command whose arguments could not be parsed.
func (h *Handlers) reject(chatID int64, form, usage string, args string, err error) {
	h.record(form, map[string]string{"args": args}, storage.OutcomeError, err.Error())
	h.reply(chatID, err.Error()+"\nUsage: "+usage)
}

func (h *Handlers) record(form string, request any, outcome, detail string) {
	if h.deps.History == nil {
		return
	}
	if err := h.deps.History.Record(form, source, request, outcome, detail, h.now().Unix()); err != nil {
		log.Error().Err(err).Msg("history: record failed")
	}
}

func errorText(err error) string {
	var se *api.StatusError
	switch {
	case errors.As(err, &se) && se.Detail != "":
		return se.Detail
	case errors.As(err, &se):
		return fmt.Sprintf("server returned %d", se.StatusCode)
	case errors.Is(err, api.ErrNotJSON):
		return "server did not return JSON"
	}
	return err.Error()
}

func (h *Handlers) handleFunds(chatID int64, fundType string) {
	var (
		text   string
		markup *tgbotapi.InlineKeyboardMarkup
	)
	ok := h.run(chatID, storage.FormFunds, "Fund list", map[string]string{"fund_type": fundType}, func(ctx context.Context) (func(), error) {
		funds, err := h.deps.FundAPI.ListFunds(ctx, fundType)
		if err != nil {
			return nil, err
		}
		return func() {
			h.withChat(chatID, func(st *chatState) {
				st.fundType = fundType
				st.funds = view.NewDisclosure(funds, view.PreviewSize)
				st.fundsMore = nil
				text, markup = fundsPages(fundType, st.funds)[0], fundsMarkup(st.funds)
			})
		}, nil
	})
	if !ok {
		return
	}
	if sent, err := h.send(chatID, text, markup); err == nil {
		h.withChat(chatID, func(st *chatState) { st.fundsMsg = sent.MessageID })
	}
}

func (h *Handlers) handleFund(chatID int64, code string) {
	var (
		text   string
		markup *tgbotapi.InlineKeyboardMarkup
	)
	ok := h.run(chatID, storage.FormFund, "Fund detail", map[string]string{"code": code}, func(ctx context.Context) (func(), error) {
		info, err := h.deps.FundAPI.FundInfo(ctx, code)
		if err != nil {
			return nil, err
		}
		return func() {
			h.withChat(chatID, func(st *chatState) {
				st.fundCode = code
				if st.fundInfo == nil {
					st.fundInfo = view.NewFundInfoView(info)
				} else {
					st.fundInfo.Load(info)
				}
				text, markup = fundText(code, st.fundInfo), fundMarkup(st.fundInfo)
			})
		}, nil
	})
	if !ok {
		return
	}
	if sent, err := h.send(chatID, text, markup); err == nil {
		h.withChat(chatID, func(st *chatState) { st.fundMsg = sent.MessageID })
	}
}

func (h *Handlers) handleOptimize(chatID int64, args string) {
	req, err := parseOptimize(args)
	if err != nil {
		h.reject(chatID, storage.FormOptimize, "/optimize C1 C2 ... [method [risk]]", args, err)
		return
	}
	canvas := chatCanvas(chatID, "weights")
	var (
		text string
		img  []byte
	)
	ok := h.run(chatID, storage.FormOptimize, "Optimize", req, func(ctx context.Context) (func(), error) {
		res, err := h.deps.FundAPI.Optimize(ctx, req)
		if err != nil {
			return nil, err
		}
		return func() {
			h.setLast(chatID, openai.KindOptimization, res)
			h.withChat(chatID, func(st *chatState) { st.lastPool, st.lastWeights = req.FundPool, res.Weights })
			text = weightsText(req, res)
			img = h.renderOrRelease(canvas, func() (*charts.Chart, error) {
				if len(res.Weights) == 0 {
					return nil, nil
				}
				return h.deps.Renderer.RenderWeights(canvas, res.Weights)
			})
		}, nil
	})
	if !ok {
		return
	}
	h.reply(chatID, text)
	if img != nil {
		h.sendPhoto(chatID, "weights.png", img, "Portfolio weights • "+req.Method)
	}
}

func (h *Handlers) handleBacktest(chatID int64, args string) {
	req, err := parseBacktest(args, h.now().In(charts.MarketTime()))
	if err != nil {
		h.reject(chatID, storage.FormBacktest, "/backtest C1 C2 ... WINDOW (30d|12w|6m|1y) or START END (YYYY-MM-DD)", args, err)
		return
	}
	canvas := chatCanvas(chatID, "value")
	var (
		text  string
		img   []byte
		stats *charts.SeriesStats
	)
	ok := h.run(chatID, storage.FormBacktest, "Backtest", req, func(ctx context.Context) (func(), error) {
		res, err := h.deps.FundAPI.Backtest(ctx, req)
		if err != nil {
			return nil, err
		}
		return func() {
			h.setLast(chatID, openai.KindBacktest, res)
			img = h.renderOrRelease(canvas, func() (*charts.Chart, error) {
				if len(res.PortfolioValue) == 0 {
					return nil, nil
				}
				chart, s, err := h.deps.Renderer.RenderValue(canvas, res.PortfolioValue)
				stats = s
				return chart, err
			})
			text = backtestText(req, res, stats)
		}, nil
	})
	if !ok {
		return
	}
	h.reply(chatID, text)
	if img != nil {
		h.sendPhoto(chatID, "portfolio_value.png", img, "Portfolio value • "+req.StartDate+" → "+req.EndDate)
	}
}

// renderOrRelease runs render and returns the image, releasing the canvas
// when there is nothing to draw or drawing failed.
func (h *Handlers) renderOrRelease(canvas string, render func() (*charts.Chart, error)) []byte {
	chart, err := render()
	if err != nil {
		log.Error().Err(err).Str("canvas", canvas).Msg("telegram: chart")
	}
	if chart == nil {
		h.deps.Renderer.Registry().Release(canvas)
		return nil
	}
	img, ok := chart.Image()
	if !ok {
		return nil
	}
	return img
}

func (h *Handlers) handleAnalyze(chatID int64, args string) {
	req, err := parseAnalyze(args, h.now().In(charts.MarketTime()))
	if err != nil {
		h.reject(chatID, storage.FormAnalyze, "/analyze C1 W1 C2 W2 ... [WINDOW]", args, err)
		return
	}
	var text string
	ok := h.run(chatID, storage.FormAnalyze, "Analysis", req, func(ctx context.Context) (func(), error) {
		a, err := h.deps.FundAPI.Analyze(ctx, req)
		if err != nil {
			return nil, err
		}
		return func() {
			h.setLast(chatID, openai.KindAnalysis, a)
			text = analysisText(a)
		}, nil
	})
	if ok {
		h.reply(chatID, text)
	}
}

func (h *Handlers) handleFrontier(chatID int64, args string) {
	var pool []string
	if strings.TrimSpace(args) != "" {
		pool = view.ParseCodes(args)
	} else {
		h.withChat(chatID, func(st *chatState) { pool = st.lastPool })
	}
	if len(pool) == 0 {
		h.reject(chatID, storage.FormFrontier, "/frontier [C1 C2 ...] (defaults to the last /optimize pool)", args,
			errors.New("no fund pool: give fund codes or run /optimize first"))
		return
	}
	h.plot(chatID, storage.FormFrontier, "Efficient frontier", map[string][]string{"fund_pool": pool}, charts.KindFrontier,
		func(ctx context.Context) (*api.ImageRef, error) { return h.deps.FundAPI.EfficientFrontier(ctx, pool) })
}

func (h *Handlers) handleTree(chatID int64) {
	var w api.Weights
	h.withChat(chatID, func(st *chatState) { w = st.lastWeights })
	if len(w) == 0 {
		h.reject(chatID, storage.FormTree, "/tree (after /optimize)", "", errors.New("no optimized weights: run /optimize first"))
		return
	}
	h.plot(chatID, storage.FormTree, "Portfolio tree", w, charts.KindTree,
		func(ctx context.Context) (*api.ImageRef, error) { return h.deps.FundAPI.PortfolioTree(ctx, w) })
}

// plot fetches an image the server drew and sends it as a photo.
func (h *Handlers) plot(chatID int64, form, label string, request any, kind string, draw func(ctx context.Context) (*api.ImageRef, error)) {
	canvas := chatCanvas(chatID, kind)
	var img []byte
	ok := h.run(chatID, form, label, request, func(ctx context.Context) (func(), error) {
		ref, err := draw(ctx)
		if err != nil {
			return nil, err
		}
		data, err := h.deps.FundAPI.FetchImage(ctx, ref)
		if err != nil {
			return nil, err
		}
		return func() {
			img = h.renderOrRelease(canvas, func() (*charts.Chart, error) {
				return h.deps.Renderer.Adopt(canvas, kind, data), nil
			})
		}, nil
	})
	if ok && img != nil {
		h.sendPhoto(chatID, kind+".png", img, label)
	}
}

func (h *Handlers) handleMarket(chatID int64) {
	var text string
	ok := h.run(chatID, storage.FormMarket, "Market status", struct{}{}, func(ctx context.Context) (func(), error) {
		ms, err := h.deps.FundAPI.MarketStatus(ctx)
		if err != nil {
			return nil, err
		}
		return func() { text = marketText(ms) }, nil
	})
	if ok {
		h.reply(chatID, text)
	}
}

func (h *Handlers) handleExplain(chatID int64) {
	if h.deps.Commentator == nil {
		h.reply(chatID, "Commentary is disabled (OPENAI_API_KEY not set).")
		return
	}
	var (
		kind   string
		result any
	)
	h.withChat(chatID, func(st *chatState) { kind, result = st.lastKind, st.lastResult })
	if result == nil {
		h.reply(chatID, "Nothing to explain yet. Run /optimize, /backtest or /analyze first.")
		return
	}
	h.reply(chatID, "Explaining the last "+kind+"…")
	ctx, cancel := context.WithTimeout(context.Background(), explainTimeout)
	defer cancel()
	out, err := h.deps.Commentator.Comment(ctx, kind, result)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("telegram: explain")
		h.reply(chatID, "Explain failed: "+err.Error())
		return
	}
	h.reply(chatID, out)
}

func (h *Handlers) handleHistory(chatID int64, days int) {
	if h.deps.History == nil {
		h.reply(chatID, "History is disabled.")
		return
	}
	since := h.now().AddDate(0, 0, -days).Unix()
	usage, err := h.deps.History.Usage(since)
	if err != nil {
		log.Error().Err(err).Msg("history: usage")
		h.reply(chatID, "History failed: "+err.Error())
		return
	}
	canvas := chatCanvas(chatID, "usage")
	if chart, err := h.deps.Renderer.RenderUsage(canvas, usage, days); err == nil {
		if img, ok := chart.Image(); ok {
			h.sendPhoto(chatID, "usage.png", img, fmt.Sprintf("Submissions by form • %d days", days))
		}
	} else {
		h.deps.Renderer.Registry().Release(canvas)
	}
	h.reply(chatID, charts.FormatUsageText(usage, days))
}

func (h *Handlers) handleHelp(chatID int64) {
	help := "Commands\n\n" +
		"- /funds [type] - List available funds, optionally of one type\n" +
		"- /fund CODE - Fund detail with a summary/full toggle\n" +
		"- /optimize C1 C2 ... [method [risk]] - Optimize weights (methods: mean_variance, risk_parity, min_variance; risk aversion default 2.0)\n" +
		"- /backtest C1 C2 ... WINDOW - Backtest over the last 30d, 12w, 6m, 1y...\n" +
		"- /backtest C1 C2 ... START END - Backtest between two dates (YYYY-MM-DD)\n" +
		"- /analyze C1 W1 C2 W2 ... [WINDOW] - Risk and performance of a weighted portfolio (weights 0-1)\n" +
		"- /frontier [C1 C2 ...] - Efficient frontier of a fund pool (default: last /optimize)\n" +
		"- /tree - Tree plot of the last optimized weights\n" +
		"- /market - Current market status\n" +
		"- /explain - Commentary on your last optimization, backtest or analysis\n" +
		"- /history [days] - Submissions by form (default 30 days)\n" +
		"\nFund codes may be separated by spaces or commas."
	h.reply(chatID, help)
}

func (h *Handlers) withChat(chatID int64, fn func(st *chatState)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.chats[chatID]
	if !ok {
		st = &chatState{}
		h.chats[chatID] = st
	}
	fn(st)
}

func (h *Handlers) setLast(chatID int64, kind string, result any) {
	h.withChat(chatID, func(st *chatState) { st.lastKind, st.lastResult = kind, result })
}

func (h *Handlers) send(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	sent, err := h.api.Send(msg)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("telegram: send")
	}
	return sent, err
}

func (h *Handlers) sendPhoto(chatID int64, name string, img []byte, caption string) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: img})
	photo.Caption = caption
	if _, err := h.api.Send(photo); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("telegram: send photo")
	}
}

func (h *Handlers) reply(chatID int64, text string) {
	h.send(chatID, text, nil)
}

func chatCanvas(chatID int64, slot string) string {
	return fmt.Sprintf("tg:%d:%s", chatID, slot)
}
