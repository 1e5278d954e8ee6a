package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// ErrNotJSON is returned when the server answers with a body that is not JSON.
var ErrNotJSON = errors.New("response is not json")

// StatusError is returned for any non-2xx answer.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s %s returned %d", e.Method, e.Path, e.StatusCode)
}

// Client talks to the fund portfolio API. Each call is a single attempt:
// no retry and no timeout beyond what ctx imposes.
type Client struct {
	client *resty.Client
}

func NewClient(baseURL string) *Client {
	return &Client{client: newResty(baseURL)}
}

func newResty(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAllowGetMethodPayload(true).
		SetHeaders(map[string]string{
			"Accept":     "application/json",
			"User-Agent": "fundfolio/1.0",
		})
}

// ListFunds returns the fund identifiers, optionally filtered by fund type.
func (c *Client) ListFunds(ctx context.Context, fundType string) ([]string, error) {
	req := c.client.R().SetContext(ctx)
	if ft := strings.TrimSpace(fundType); ft != "" {
		req.SetQueryParam("fund_type", ft)
	}
	var funds []string
	if err := c.do(req, "GET", "/funds", &funds); err != nil {
		return nil, err
	}
	return funds, nil
}

// FundInfo returns the detail object of one fund.
func (c *Client) FundInfo(ctx context.Context, code string) (FundInfo, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("empty fund code")
	}
	req := c.client.R().SetContext(ctx).SetPathParam("code", code)
	var info FundInfo
	if err := c.do(req, "GET", "/fund/{code}", &info); err != nil {
		return nil, err
	}
	return info, nil
}

// Optimize asks the optimizer for weights over the fund pool. An empty
// Method means DefaultMethod; RiskAversion must be positive.
func (c *Client) Optimize(ctx context.Context, in OptimizeRequest) (*OptimizationResult, error) {
	if len(in.FundPool) == 0 {
		return nil, errors.New("empty fund pool")
	}
	if in.Method == "" {
		in.Method = DefaultMethod
	}
	if !ValidMethod(in.Method) {
		return nil, fmt.Errorf("unknown optimization method %q", in.Method)
	}
	if in.RiskAversion <= 0 {
		return nil, fmt.Errorf("risk aversion %g must be positive", in.RiskAversion)
	}
	req := c.client.R().SetContext(ctx).SetBody(in)
	var out OptimizationResult
	if err := c.do(req, "POST", "/optimize", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Backtest runs the simulator over the fund pool and date range.
func (c *Client) Backtest(ctx context.Context, in BacktestRequest) (*BacktestResult, error) {
	if len(in.FundPool) == 0 {
		return nil, errors.New("empty fund pool")
	}
	req := c.client.R().SetContext(ctx).SetBody(in)
	var out BacktestResult
	if err := c.do(req, "POST", "/backtest", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarketStatus returns the market snapshot.
func (c *Client) MarketStatus(ctx context.Context) (*MarketStatus, error) {
	var out MarketStatus
	if err := c.do(c.client.R().SetContext(ctx), "GET", "/market/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Analyze returns risk metrics and blended performance for a weighted portfolio.
func (c *Client) Analyze(ctx context.Context, in AnalyzeRequest) (*Analysis, error) {
	if len(in.Portfolio) == 0 {
		return nil, errors.New("empty portfolio")
	}
	req := c.client.R().SetContext(ctx).SetBody(in)
	var out Analysis
	if err := c.do(req, "POST", "/analyze", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do executes req and decodes the data field of the envelope into out.
func (c *Client) do(req *resty.Request, method, path string, out any) error {
	body, err := send(req, method, path)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%s %s: decode envelope: %w", method, path, err)
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("%s %s: response has no data field", method, path)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return nil
}

// send performs the request and returns the raw JSON body of a 2xx answer.
func send(req *resty.Request, method, path string) ([]byte, error) {
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	body := resp.Body()
	if !resp.IsSuccess() {
		se := &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode()}
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil {
			se.Detail = eb.Detail
		}
		return nil, se
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%s %s: %w: %s", method, path, ErrNotJSON, preview(body))
	}
	return body, nil
}

func preview(b []byte) string {
	s := string(b)
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
