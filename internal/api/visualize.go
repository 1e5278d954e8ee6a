package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ImageRef points at a chart the server rendered and stored under its
// static files.
type ImageRef struct {
	ImageURL string `json:"image_url"`
}

// EfficientFrontier asks the server to plot the efficient frontier of the
// fund pool. The pool travels as a JSON body on a GET.
func (c *Client) EfficientFrontier(ctx context.Context, fundPool []string) (*ImageRef, error) {
	if len(fundPool) == 0 {
		return nil, errors.New("empty fund pool")
	}
	req := c.client.R().SetContext(ctx).SetBody(fundPool)
	var out ImageRef
	if err := c.do(req, "GET", "/visualization/efficient-frontier", &out); err != nil {
		return nil, err
	}
	if out.ImageURL == "" {
		return nil, errors.New("efficient frontier: empty image_url")
	}
	return &out, nil
}

// PortfolioTree asks the server to plot the portfolio as a tree of weights.
func (c *Client) PortfolioTree(ctx context.Context, portfolio Weights) (*ImageRef, error) {
	if len(portfolio) == 0 {
		return nil, errors.New("empty portfolio")
	}
	req := c.client.R().SetContext(ctx).SetBody(portfolio)
	var out ImageRef
	if err := c.do(req, "GET", "/visualization/portfolio-tree", &out); err != nil {
		return nil, err
	}
	if out.ImageURL == "" {
		return nil, errors.New("portfolio tree: empty image_url")
	}
	return &out, nil
}

// FetchImage downloads the image ref points at. Relative URLs resolve
// against the API base URL.
func (c *Client) FetchImage(ctx context.Context, ref *ImageRef) ([]byte, error) {
	resp, err := c.client.R().SetContext(ctx).SetHeader("Accept", "image/*").Get(ref.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", ref.ImageURL, err)
	}
	if !resp.IsSuccess() {
		return nil, &StatusError{Method: http.MethodGet, Path: ref.ImageURL, StatusCode: resp.StatusCode()}
	}
	body := resp.Body()
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("GET %s: content type %q is not an image", ref.ImageURL, ct)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("GET %s: empty image", ref.ImageURL)
	}
	return body, nil
}
