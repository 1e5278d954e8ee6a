package server

import (
	"sync"

	"fundfolio/internal/api"
	"fundfolio/internal/charts"
	"fundfolio/internal/view"
)

// Canvas ids of the web page.
const (
	CanvasWeights = "weights-chart"
	CanvasValue   = "value-chart"
	CanvasUsage   = "usage-chart"

	CanvasFrontier = "frontier-chart"
	CanvasTree     = "tree-chart"
)

// Workspace holds the latest rendered result of every form on the page.
type Workspace struct {
	mu sync.Mutex

	fundType string
	funds    *view.Disclosure[string]

	fundCode string
	fundInfo *view.FundInfoView

	optimizeReq  api.OptimizeRequest
	optimization *api.OptimizationResult

	backtestReq api.BacktestRequest
	backtest    *api.BacktestResult
	stats       *charts.SeriesStats

	legacyReq api.LegacyOptimizeRequest
	legacy    *api.LegacyOptimizeResult

	market *api.MarketStatus
}

func NewWorkspace() *Workspace { return &Workspace{} }

func (w *Workspace) setFunds(fundType string, funds []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fundType = fundType
	w.funds = view.NewDisclosure(funds, view.PreviewSize)
}

func (w *Workspace) toggleFunds() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.funds != nil {
		w.funds.Toggle()
	}
}

func (w *Workspace) setFundInfo(code string, info api.FundInfo) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fundCode = code
	if w.fundInfo == nil {
		w.fundInfo = view.NewFundInfoView(info)
		return
	}
	w.fundInfo.Load(info)
}

func (w *Workspace) toggleFundInfo() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fundInfo != nil {
		w.fundInfo.Toggle()
	}
}

func (w *Workspace) setOptimization(req api.OptimizeRequest, res *api.OptimizationResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.optimizeReq, w.optimization = req, res
}

// optimized returns the latest applied optimization, or nil.
func (w *Workspace) optimized() (api.OptimizeRequest, *api.OptimizationResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.optimizeReq, w.optimization
}

func (w *Workspace) setBacktest(req api.BacktestRequest, res *api.BacktestResult, stats *charts.SeriesStats) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.backtestReq, w.backtest, w.stats = req, res, stats
}

func (w *Workspace) setLegacy(req api.LegacyOptimizeRequest, res *api.LegacyOptimizeResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.legacyReq, w.legacy = req, res
}

func (w *Workspace) setMarket(ms *api.MarketStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.market = ms
}

// FundsSection is the fund list as displayed.
type FundsSection struct {
	FundType    string
	Items       []string
	Total       int
	ShowControl bool
	Label       string
}

// FundSection is the fund detail as displayed.
type FundSection struct {
	Code   string
	Fields []view.Field
	Label  string
}

// OptimizeSection is the optimizer result as displayed.
type OptimizeSection struct {
	Request api.OptimizeRequest
	Rows    []view.WeightRow
	Extra   []view.Field
	Chart   *charts.Chart

	// upstream plots of the same result
	Frontier *charts.Chart
	Tree     *charts.Chart
}

// BacktestSection is the backtest result as displayed.
type BacktestSection struct {
	Request api.BacktestRequest
	Samples int
	Stats   *charts.SeriesStats
	Extra   []view.Field
	Chart   *charts.Chart
}

// LegacySection is the legacy optimizer table.
type LegacySection struct {
	Request api.LegacyOptimizeRequest
	Rows    []view.WeightRow
}

// PageData is everything the index template renders.
type PageData struct {
	Funds    *FundsSection
	Fund     *FundSection
	Optimize *OptimizeSection
	Backtest *BacktestSection
	Legacy   *LegacySection
	Market   *api.MarketStatus
	Methods  []string
}

// snapshot copies the workspace into template data.
func (w *Workspace) snapshot(reg *charts.Registry) PageData {
	w.mu.Lock()
	defer w.mu.Unlock()
	pd := PageData{
		Market:  w.market,
		Methods: []string{api.MethodMeanVariance, api.MethodRiskParity, api.MethodMinVariance},
	}
	if w.funds != nil {
		pd.Funds = &FundsSection{
			FundType:    w.fundType,
			Items:       w.funds.Visible(),
			Total:       w.funds.Len(),
			ShowControl: w.funds.ControlVisible(),
			Label:       w.funds.Label(),
		}
	}
	if w.fundInfo != nil {
		pd.Fund = &FundSection{Code: w.fundCode, Fields: w.fundInfo.Fields(), Label: w.fundInfo.Label()}
	}
	if w.optimization != nil {
		sec := &OptimizeSection{
			Request: w.optimizeReq,
			Rows:    view.WeightRows(w.optimization.Weights),
			Extra:   view.AuxFields(w.optimization.Extra),
		}
		if c, ok := reg.Get(CanvasWeights); ok {
			sec.Chart = c
		}
		if c, ok := reg.Get(CanvasFrontier); ok {
			sec.Frontier = c
		}
		if c, ok := reg.Get(CanvasTree); ok {
			sec.Tree = c
		}
		pd.Optimize = sec
	}
	if w.backtest != nil {
		sec := &BacktestSection{
			Request: w.backtestReq,
			Samples: len(w.backtest.PortfolioValue),
			Stats:   w.stats,
			Extra:   view.AuxFields(w.backtest.Extra),
		}
		if c, ok := reg.Get(CanvasValue); ok {
			sec.Chart = c
		}
		pd.Backtest = sec
	}
	if w.legacy != nil {
		pd.Legacy = &LegacySection{Request: w.legacyReq, Rows: view.WeightRows(w.legacy.Weights)}
	}
	return pd
}
