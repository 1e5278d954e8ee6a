package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"fundfolio/internal/api"
	"fundfolio/internal/charts"
	"fundfolio/internal/storage"
	"fundfolio/internal/view"
)

const (
	historyLimit = 50
	usageDays    = 30
)

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", s.ws.snapshot(s.renderer.Registry()))
}

// submit issues a token for form, runs call and applies its result only if
// no newer submission of the same form was issued meanwhile. Failures are
// logged and recorded; the page keeps its previous content.
func (s *Server) submit(c *gin.Context, form string, request any, call func(ctx context.Context) (func(), error)) {
	tok := s.tracker.Issue(form)
	ctx := context.WithoutCancel(c.Request.Context())

	outcome, detail := storage.OutcomeOK, ""
	apply, err := call(ctx)
	switch {
	case err != nil:
		outcome, detail = storage.OutcomeError, err.Error()
		log.Error().Err(err).Str("form", form).Msg("web: request failed")
	case !s.tracker.Commit(form, tok, apply):
		outcome = storage.OutcomeStale
		log.Info().Str("form", form).Str("token", tok.String()).Msg("web: stale response discarded")
	default:
		log.Info().Str("form", form).Msg("web: result applied")
	}
	s.record(form, request, outcome, detail)
	c.Redirect(http.StatusSeeOther, "/#"+form)
}

// reject records a submission that never reached the API.
func (s *Server) reject(c *gin.Context, form string, request any, err error) {
	log.Warn().Err(err).Str("form", form).Msg("web: invalid submission")
	s.record(form, request, storage.OutcomeError, err.Error())
	c.Redirect(http.StatusSeeOther, "/#"+form)
}

func (s *Server) record(form string, request any, outcome, detail string) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(form, "web", request, outcome, detail, time.Now().Unix()); err != nil {
		log.Error().Err(err).Msg("history: record failed")
	}
}

func (s *Server) handleListFunds(c *gin.Context) {
	fundType := strings.TrimSpace(c.PostForm("fund_type"))
	req := map[string]string{"fund_type": fundType}
	s.submit(c, storage.FormFunds, req, func(ctx context.Context) (func(), error) {
		funds, err := s.fundAPI.ListFunds(ctx, fundType)
		if err != nil {
			return nil, err
		}
		return func() { s.ws.setFunds(fundType, funds) }, nil
	})
}

func (s *Server) handleToggleFunds(c *gin.Context) {
	s.ws.toggleFunds()
	c.Redirect(http.StatusSeeOther, "/#"+storage.FormFunds)
}

func (s *Server) handleFundInfo(c *gin.Context) {
	code := strings.TrimSpace(c.PostForm("code"))
	req := map[string]string{"code": code}
	if code == "" {
		s.reject(c, storage.FormFund, req, errors.New("empty fund code"))
		return
	}
	s.submit(c, storage.FormFund, req, func(ctx context.Context) (func(), error) {
		info, err := s.fundAPI.FundInfo(ctx, code)
		if err != nil {
			return nil, err
		}
		return func() { s.ws.setFundInfo(code, info) }, nil
	})
}

func (s *Server) handleToggleFundInfo(c *gin.Context) {
	s.ws.toggleFundInfo()
	c.Redirect(http.StatusSeeOther, "/#"+storage.FormFund)
}

func (s *Server) handleOptimize(c *gin.Context) {
	req := api.OptimizeRequest{
		FundPool:     view.ParseCodes(c.PostForm("fund_pool")),
		Method:       strings.TrimSpace(c.PostForm("method")),
		RiskAversion: api.DefaultRiskAversion,
	}
	if req.Method == "" {
		req.Method = api.DefaultMethod
	}
	if raw := strings.TrimSpace(c.PostForm("risk_aversion")); raw != "" {
		ra, err := strconv.ParseFloat(raw, 64)
		if err != nil || ra <= 0 {
			s.reject(c, storage.FormOptimize, req, errors.New("invalid risk aversion "+strconv.Quote(raw)+": must be a positive number"))
			return
		}
		req.RiskAversion = ra
	}
	if len(req.FundPool) == 0 {
		s.reject(c, storage.FormOptimize, req, errors.New("empty fund pool"))
		return
	}
	s.submit(c, storage.FormOptimize, req, func(ctx context.Context) (func(), error) {
		res, err := s.fundAPI.Optimize(ctx, req)
		if err != nil {
			return nil, err
		}
		return func() {
			s.ws.setOptimization(req, res)
			s.renderer.Registry().Release(CanvasFrontier)
			s.renderer.Registry().Release(CanvasTree)
			if len(res.Weights) == 0 {
				s.renderer.Registry().Release(CanvasWeights)
				return
			}
			if _, err := s.renderer.RenderWeights(CanvasWeights, res.Weights); err != nil {
				s.renderer.Registry().Release(CanvasWeights)
				log.Error().Err(err).Msg("web: weights chart")
			}
		}, nil
	})
}

// handleFrontier fetches the efficient frontier of the latest optimized
// fund pool.
func (s *Server) handleFrontier(c *gin.Context) {
	req, res := s.ws.optimized()
	request := map[string][]string{"fund_pool": req.FundPool}
	if res == nil {
		s.reject(c, storage.FormFrontier, request, errors.New("no optimization to plot"))
		return
	}
	s.submit(c, storage.FormFrontier, request, func(ctx context.Context) (func(), error) {
		ref, err := s.fundAPI.EfficientFrontier(ctx, req.FundPool)
		if err != nil {
			return nil, err
		}
		img, err := s.fundAPI.FetchImage(ctx, ref)
		if err != nil {
			return nil, err
		}
		return func() { s.adoptFor(res, CanvasFrontier, charts.KindFrontier, img) }, nil
	})
}

// handleTree fetches the tree plot of the latest optimized weights.
func (s *Server) handleTree(c *gin.Context) {
	_, res := s.ws.optimized()
	if res == nil || len(res.Weights) == 0 {
		s.reject(c, storage.FormTree, struct{}{}, errors.New("no optimized weights to plot"))
		return
	}
	s.submit(c, storage.FormTree, res.Weights, func(ctx context.Context) (func(), error) {
		ref, err := s.fundAPI.PortfolioTree(ctx, res.Weights)
		if err != nil {
			return nil, err
		}
		img, err := s.fundAPI.FetchImage(ctx, ref)
		if err != nil {
			return nil, err
		}
		return func() { s.adoptFor(res, CanvasTree, charts.KindTree, img) }, nil
	})
}

// adoptFor installs img unless the optimization it was drawn for has been
// replaced meanwhile.
func (s *Server) adoptFor(res *api.OptimizationResult, canvas, kind string, img []byte) {
	if _, cur := s.ws.optimized(); cur != res {
		log.Info().Str("canvas", canvas).Msg("web: plot of a replaced optimization discarded")
		return
	}
	s.renderer.Adopt(canvas, kind, img)
}

func (s *Server) handleBacktest(c *gin.Context) {
	req := api.BacktestRequest{
		FundPool:  view.ParseCodes(c.PostForm("fund_pool")),
		StartDate: strings.TrimSpace(c.PostForm("start_date")),
		EndDate:   strings.TrimSpace(c.PostForm("end_date")),
	}
	if len(req.FundPool) == 0 || req.StartDate == "" || req.EndDate == "" {
		s.reject(c, storage.FormBacktest, req, errors.New("fund pool, start date and end date are required"))
		return
	}
	s.submit(c, storage.FormBacktest, req, func(ctx context.Context) (func(), error) {
		res, err := s.fundAPI.Backtest(ctx, req)
		if err != nil {
			return nil, err
		}
		return func() {
			if len(res.PortfolioValue) == 0 {
				s.renderer.Registry().Release(CanvasValue)
				s.ws.setBacktest(req, res, nil)
				return
			}
			_, stats, err := s.renderer.RenderValue(CanvasValue, res.PortfolioValue)
			if err != nil {
				s.renderer.Registry().Release(CanvasValue)
				log.Error().Err(err).Msg("web: value chart")
			}
			s.ws.setBacktest(req, res, stats)
		}, nil
	})
}

func (s *Server) handleLegacyOptimize(c *gin.Context) {
	req := api.LegacyOptimizeRequest{
		FundCodes: view.ParseCodes(c.PostForm("fund_codes")),
		StartDate: strings.TrimSpace(c.PostForm("start_date")),
		EndDate:   strings.TrimSpace(c.PostForm("end_date")),
	}
	if len(req.FundCodes) == 0 {
		s.reject(c, storage.FormLegacyOptimize, req, errors.New("empty fund codes"))
		return
	}
	s.submit(c, storage.FormLegacyOptimize, req, func(ctx context.Context) (func(), error) {
		res, err := s.legacyAPI.Optimize(ctx, req)
		if err != nil {
			return nil, err
		}
		return func() { s.ws.setLegacy(req, res) }, nil
	})
}

func (s *Server) handleMarket(c *gin.Context) {
	s.submit(c, storage.FormMarket, struct{}{}, func(ctx context.Context) (func(), error) {
		ms, err := s.fundAPI.MarketStatus(ctx)
		if err != nil {
			return nil, err
		}
		return func() { s.ws.setMarket(ms) }, nil
	})
}

// HistoryPage is the data of the history template.
type HistoryPage struct {
	Runs      []storage.Run
	Days      int
	Usage     string
	ChartSeq  uint64
	HaveChart bool
}

func (s *Server) handleHistory(c *gin.Context) {
	page := HistoryPage{Days: usageDays}
	if s.history == nil {
		c.HTML(http.StatusOK, "history.html", page)
		return
	}
	runs, err := s.history.Recent(historyLimit)
	if err != nil {
		log.Error().Err(err).Msg("history: recent")
	}
	page.Runs = runs

	since := time.Now().AddDate(0, 0, -usageDays).Unix()
	usage, err := s.history.Usage(since)
	if err != nil {
		log.Error().Err(err).Msg("history: usage")
	}
	page.Usage = charts.FormatUsageText(usage, usageDays)
	if chart, err := s.renderer.RenderUsage(CanvasUsage, usage, usageDays); err == nil {
		page.ChartSeq, page.HaveChart = chart.Seq, true
	} else {
		s.renderer.Registry().Release(CanvasUsage)
	}
	c.HTML(http.StatusOK, "history.html", page)
}

func (s *Server) handleChart(c *gin.Context) {
	chart, ok := s.renderer.Registry().Get(c.Param("canvas"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	img, ok := chart.Image()
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", img)
}
