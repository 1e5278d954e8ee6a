package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"fundfolio/internal/api"
	"fundfolio/internal/charts"
	"fundfolio/internal/storage"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeAPI struct {
	funds    []string
	info     string
	optimize func(ctx context.Context, in api.OptimizeRequest) (*api.OptimizationResult, error)
	backtest *api.BacktestResult
	err      error

	gotPool []string
	gotTree api.Weights
}

func (f *fakeAPI) ListFunds(ctx context.Context, fundType string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.funds, nil
}

func (f *fakeAPI) FundInfo(ctx context.Context, code string) (api.FundInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	var info api.FundInfo
	err := json.Unmarshal([]byte(f.info), &info)
	return info, err
}

func (f *fakeAPI) Optimize(ctx context.Context, in api.OptimizeRequest) (*api.OptimizationResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.optimize(ctx, in)
}

func (f *fakeAPI) Backtest(ctx context.Context, in api.BacktestRequest) (*api.BacktestResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.backtest, nil
}

func (f *fakeAPI) MarketStatus(ctx context.Context) (*api.MarketStatus, error) {
	return &api.MarketStatus{MarketTrend: "sideways", RiskLevel: "normal"}, nil
}

func (f *fakeAPI) EfficientFrontier(ctx context.Context, fundPool []string) (*api.ImageRef, error) {
	f.gotPool = fundPool
	return &api.ImageRef{ImageURL: "static/frontier.png"}, f.err
}

func (f *fakeAPI) PortfolioTree(ctx context.Context, portfolio api.Weights) (*api.ImageRef, error) {
	f.gotTree = portfolio
	return &api.ImageRef{ImageURL: "static/tree.png"}, f.err
}

func (f *fakeAPI) FetchImage(ctx context.Context, ref *api.ImageRef) ([]byte, error) {
	return []byte("png:" + ref.ImageURL), nil
}

type fakeLegacy struct{}

func (fakeLegacy) Optimize(ctx context.Context, in api.LegacyOptimizeRequest) (*api.LegacyOptimizeResult, error) {
	return &api.LegacyOptimizeResult{Weights: api.Weights{{Key: "A", Value: 0.6}, {Key: "B", Value: 0.4}}}, nil
}

func weights(pairs ...any) api.Weights {
	var w api.Weights
	for i := 0; i < len(pairs); i += 2 {
		w = append(w, api.Entry[float64]{Key: pairs[i].(string), Value: pairs[i+1].(float64)})
	}
	return w
}

type harness struct {
	srv    *Server
	router *gin.Engine
	store  *storage.Store
}

func newHarness(t *testing.T, fa *fakeAPI) *harness {
	t.Helper()
	db, err := storage.OpenSQLite("file:" + filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.InitSchema(db); err != nil {
		t.Fatal(err)
	}
	store := storage.NewStore(db)
	srv := New(fa, fakeLegacy{}, charts.NewRenderer(charts.NewRegistry()), store)
	return &harness{srv: srv, router: srv.NewRouter(nil), store: store}
}

func (h *harness) post(t *testing.T, path string, form url.Values) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("POST %s status = %d, want 303", path, w.Code)
	}
}

func (h *harness) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func (h *harness) page(t *testing.T) string {
	t.Helper()
	w := h.get(t, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", w.Code)
	}
	return w.Body.String()
}

func TestOptimize_RendersPercentTableAndOneChart(t *testing.T) {
	fa := &fakeAPI{optimize: func(ctx context.Context, in api.OptimizeRequest) (*api.OptimizationResult, error) {
		return &api.OptimizationResult{Weights: weights("A", 0.6, "B", 0.4)}, nil
	}}
	h := newHarness(t, fa)

	h.post(t, "/optimize", url.Values{"fund_pool": {"A, B"}})
	h.post(t, "/optimize", url.Values{"fund_pool": {"A, B"}})

	body := h.page(t)
	for _, want := range []string{"<td>A</td><td>60.00%</td>", "<td>B</td><td>40.00%</td>", `id="weights-chart"`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if live := h.srv.renderer.Registry().Live(); live != 1 {
		t.Errorf("Live() = %d, want 1", live)
	}

	w := h.get(t, "/charts/"+CanvasWeights)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("GET chart = %d %s", w.Code, w.Header().Get("Content-Type"))
	}
}

func TestOptimize_FrontierAndTreeFollowTheResult(t *testing.T) {
	fa := &fakeAPI{optimize: func(ctx context.Context, in api.OptimizeRequest) (*api.OptimizationResult, error) {
		return &api.OptimizationResult{Weights: weights("A", 0.6, "B", 0.4)}, nil
	}}
	h := newHarness(t, fa)

	h.post(t, "/optimize/frontier", nil)
	runs, _ := h.store.Recent(1)
	if len(runs) != 1 || runs[0].Form != storage.FormFrontier || runs[0].Outcome != storage.OutcomeError {
		t.Fatalf("runs = %+v, want rejected frontier", runs)
	}

	h.post(t, "/optimize", url.Values{"fund_pool": {"A B"}})
	h.post(t, "/optimize/frontier", nil)
	h.post(t, "/optimize/tree", nil)

	if strings.Join(fa.gotPool, ",") != "A,B" || len(fa.gotTree) != 2 || fa.gotTree[0].Key != "A" {
		t.Errorf("frontier pool = %v, tree = %v", fa.gotPool, fa.gotTree)
	}
	body := h.page(t)
	if !strings.Contains(body, `id="frontier-chart"`) || !strings.Contains(body, `id="tree-chart"`) {
		t.Error("page missing upstream plots")
	}
	w := h.get(t, "/charts/"+CanvasTree)
	if w.Code != http.StatusOK || w.Body.String() != "png:static/tree.png" {
		t.Errorf("GET tree = %d %q", w.Code, w.Body.String())
	}

	h.post(t, "/optimize", url.Values{"fund_pool": {"A B"}})
	if body := h.page(t); strings.Contains(body, `id="frontier-chart"`) || strings.Contains(body, `id="tree-chart"`) {
		t.Error("plots of the previous optimization still shown")
	}
}

func TestFunds_Disclosure(t *testing.T) {
	fa := &fakeAPI{}
	for i := 0; i < 15; i++ {
		fa.funds = append(fa.funds, fmt.Sprintf("F%02d", i))
	}
	h := newHarness(t, fa)
	h.post(t, "/funds", url.Values{"fund_type": {"bond"}})

	count := func(body string) int { return strings.Count(body, "<li>") }
	body := h.page(t)
	if got := count(body); got != 10 {
		t.Errorf("collapsed items = %d, want 10", got)
	}
	if !strings.Contains(body, "Show more") {
		t.Error("collapsed page missing Show more")
	}

	h.post(t, "/funds/toggle", nil)
	body = h.page(t)
	if got := count(body); got != 15 {
		t.Errorf("expanded items = %d, want 15", got)
	}
	if !strings.Contains(body, "Show less") {
		t.Error("expanded page missing Show less")
	}

	h.post(t, "/funds/toggle", nil)
	if got := count(h.page(t)); got != 10 {
		t.Errorf("re-collapsed items = %d, want 10", got)
	}
}

func TestFunds_ShortListHasNoControl(t *testing.T) {
	h := newHarness(t, &fakeAPI{funds: []string{"A", "B"}})
	h.post(t, "/funds", nil)
	body := h.page(t)
	if strings.Contains(body, "/funds/toggle") {
		t.Error("toggle control rendered for a short list")
	}
}

func TestFundInfo_Toggle(t *testing.T) {
	h := newHarness(t, &fakeAPI{info: `{"fund_code":"000001","fund_name":"Alpha","fund_type":"stock","manager":"Li","company":"Acme"}`})
	h.post(t, "/fund", url.Values{"code": {"000001"}})

	body := h.page(t)
	if !strings.Contains(body, "show full") || strings.Contains(body, "Acme") {
		t.Error("summary view wrong")
	}
	h.post(t, "/fund/toggle", nil)
	body = h.page(t)
	if !strings.Contains(body, "show summary") || !strings.Contains(body, "Acme") {
		t.Error("full view wrong")
	}
}

func TestFailure_KeepsPreviousContentAndRecords(t *testing.T) {
	fa := &fakeAPI{funds: []string{"KEEP"}}
	h := newHarness(t, fa)
	h.post(t, "/funds", nil)

	fa.err = errors.New("upstream down")
	h.post(t, "/funds", nil)

	if !strings.Contains(h.page(t), "<li>KEEP</li>") {
		t.Error("failed request replaced previous content")
	}
	runs, err := h.store.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].Outcome != storage.OutcomeError || runs[0].Detail != "upstream down" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestOptimize_StaleResponseDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fa := &fakeAPI{optimize: func(ctx context.Context, in api.OptimizeRequest) (*api.OptimizationResult, error) {
		if in.FundPool[0] == "SLOW" {
			close(started)
			<-release
			return &api.OptimizationResult{Weights: weights("SLOW", 1.0)}, nil
		}
		return &api.OptimizationResult{Weights: weights("FAST", 1.0)}, nil
	}}
	h := newHarness(t, fa)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.post(t, "/optimize", url.Values{"fund_pool": {"SLOW"}})
	}()
	<-started
	h.post(t, "/optimize", url.Values{"fund_pool": {"FAST"}})
	close(release)
	<-done

	body := h.page(t)
	if !strings.Contains(body, "<td>FAST</td>") || strings.Contains(body, "<td>SLOW</td>") {
		t.Error("stale response overwrote the newer result")
	}
	runs, _ := h.store.Recent(10)
	if len(runs) != 2 || runs[0].Outcome != storage.OutcomeStale {
		t.Errorf("runs = %+v, want newest outcome stale", runs)
	}
}

func TestBacktest_RendersStatsAndChart(t *testing.T) {
	series := make(api.ValueSeries, 30)
	for i := range series {
		series[i] = api.Sample{Date: fmt.Sprintf("2024-01-%02d", i+1), Value: 1 + float64(i%5)/100}
	}
	h := newHarness(t, &fakeAPI{backtest: &api.BacktestResult{PortfolioValue: series}})
	h.post(t, "/backtest", url.Values{"fund_pool": {"A"}, "start_date": {"2024-01-01"}, "end_date": {"2024-01-30"}})

	body := h.page(t)
	if !strings.Contains(body, "30 samples") || !strings.Contains(body, `id="value-chart"`) {
		t.Error("backtest section missing samples or chart")
	}
}

func TestBacktest_MissingDatesRejected(t *testing.T) {
	h := newHarness(t, &fakeAPI{})
	h.post(t, "/backtest", url.Values{"fund_pool": {"A"}})
	runs, _ := h.store.Recent(1)
	if len(runs) != 1 || runs[0].Outcome != storage.OutcomeError {
		t.Errorf("runs = %+v", runs)
	}
}

func TestOptimize_NonPositiveRiskRejected(t *testing.T) {
	fa := &fakeAPI{optimize: func(ctx context.Context, in api.OptimizeRequest) (*api.OptimizationResult, error) {
		t.Error("optimizer called with an invalid risk aversion")
		return nil, nil
	}}
	h := newHarness(t, fa)
	h.post(t, "/optimize", url.Values{"fund_pool": {"A B"}, "risk_aversion": {"0"}})
	runs, _ := h.store.Recent(1)
	if len(runs) != 1 || runs[0].Outcome != storage.OutcomeError || !strings.Contains(runs[0].Detail, "positive") {
		t.Errorf("runs = %+v", runs)
	}
}

func TestLegacyOptimize(t *testing.T) {
	h := newHarness(t, &fakeAPI{})
	h.post(t, "/legacy/optimize", url.Values{"fund_codes": {"A B"}, "start_date": {"2023-01-01"}, "end_date": {"2023-12-31"}})
	body := h.page(t)
	if !strings.Contains(body, "<td>A</td><td>60.00%</td>") {
		t.Error("legacy table missing A row")
	}
}

func TestHistoryPage(t *testing.T) {
	h := newHarness(t, &fakeAPI{funds: []string{"A"}})
	h.post(t, "/funds", nil)
	h.post(t, "/market", nil)
	w := h.get(t, "/history")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /history status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Total submissions: 2") {
		t.Errorf("history page missing usage summary")
	}
}

func TestChart_UnknownCanvas(t *testing.T) {
	h := newHarness(t, &fakeAPI{})
	if w := h.get(t, "/charts/nope"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
