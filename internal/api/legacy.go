package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// LegacyClient talks to the older /api/optimize surface, which answers
// with the result object directly instead of a {status, data} envelope.
type LegacyClient struct {
	client *resty.Client
}

func NewLegacyClient(baseURL string) *LegacyClient {
	return &LegacyClient{client: newResty(baseURL)}
}

func (c *LegacyClient) Optimize(ctx context.Context, in LegacyOptimizeRequest) (*LegacyOptimizeResult, error) {
	if len(in.FundCodes) == 0 {
		return nil, errors.New("empty fund codes")
	}
	body, err := send(c.client.R().SetContext(ctx).SetBody(in), "POST", "/api/optimize")
	if err != nil {
		return nil, err
	}
	var out LegacyOptimizeResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("POST /api/optimize: decode: %w", err)
	}
	return &out, nil
}
