package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"fundfolio/internal/api"
	"fundfolio/internal/charts"
	"fundfolio/internal/inflight"
	"fundfolio/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

// FundAPI is the part of the upstream client the web surface uses.
type FundAPI interface {
	ListFunds(ctx context.Context, fundType string) ([]string, error)
	FundInfo(ctx context.Context, code string) (api.FundInfo, error)
	Optimize(ctx context.Context, in api.OptimizeRequest) (*api.OptimizationResult, error)
	Backtest(ctx context.Context, in api.BacktestRequest) (*api.BacktestResult, error)
	MarketStatus(ctx context.Context) (*api.MarketStatus, error)
	EfficientFrontier(ctx context.Context, fundPool []string) (*api.ImageRef, error)
	PortfolioTree(ctx context.Context, portfolio api.Weights) (*api.ImageRef, error)
	FetchImage(ctx context.Context, ref *api.ImageRef) ([]byte, error)
}

// LegacyAPI is the /api/optimize surface.
type LegacyAPI interface {
	Optimize(ctx context.Context, in api.LegacyOptimizeRequest) (*api.LegacyOptimizeResult, error)
}

type Server struct {
	fundAPI   FundAPI
	legacyAPI LegacyAPI
	renderer  *charts.Renderer
	tracker   *inflight.Tracker
	ws        *Workspace
	history   *storage.Store
	tmpl      *template.Template
}

func New(fundAPI FundAPI, legacyAPI LegacyAPI, renderer *charts.Renderer, history *storage.Store) *Server {
	tmpl := template.Must(template.New("").Funcs(template.FuncMap{
		"pct":      func(v float64) string { return fmt.Sprintf("%.2f%%", v) },
		"datetime": func(ts int64) string { return time.Unix(ts, 0).Format("2006-01-02 15:04:05") },
	}).ParseFS(templateFS, "templates/*.html"))
	return &Server{
		fundAPI:   fundAPI,
		legacyAPI: legacyAPI,
		renderer:  renderer,
		tracker:   inflight.NewTracker(),
		ws:        NewWorkspace(),
		history:   history,
		tmpl:      tmpl,
	}
}

// NewRouter registers the page, form and chart routes; webhook may be nil.
func (s *Server) NewRouter(webhook http.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.SetHTMLTemplate(s.tmpl)

	r.GET("/", s.handleIndex)
	r.POST("/funds", s.handleListFunds)
	r.POST("/funds/toggle", s.handleToggleFunds)
	r.POST("/fund", s.handleFundInfo)
	r.POST("/fund/toggle", s.handleToggleFundInfo)
	r.POST("/optimize", s.handleOptimize)
	r.POST("/optimize/frontier", s.handleFrontier)
	r.POST("/optimize/tree", s.handleTree)
	r.POST("/backtest", s.handleBacktest)
	r.POST("/legacy/optimize", s.handleLegacyOptimize)
	r.POST("/market", s.handleMarket)
	r.GET("/history", s.handleHistory)
	r.GET("/charts/:canvas", s.handleChart)
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	if webhook != nil {
		r.POST("/telegram/webhook", gin.WrapF(webhook))
	}
	return r
}

func ListenAndServe(addr string, h http.Handler) error {
	return http.ListenAndServe(addr, h)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("http")
	}
}
