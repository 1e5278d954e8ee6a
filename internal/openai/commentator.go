package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	oa "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Result kinds a Commentator knows how to introduce.
const (
	KindOptimization = "optimization"
	KindBacktest     = "backtest"
	KindAnalysis     = "analysis"
)

const maxPayload = 6000

const systemPrompt = `You are a concise portfolio analyst. You receive the raw JSON result of a fund portfolio optimization, backtest or analysis and explain it to a retail investor.

Your response must follow this structure:

**Summary:**
[Two or three sentences on what the result says]

**Allocation / Performance:**
[Bullet points on the most important weights or figures]

**Caveats:**
[What the result does not tell you: past performance, model assumptions, concentration]

Guidelines:
- Plain text with short bullets
- Quote numbers as percentages with two decimals
- Do not recommend specific trades
- Do not invent data that is not in the payload`

// Commentator turns API results into a short narrative.
type Commentator struct {
	cli oa.Client
}

func NewCommentator(apiKey string) *Commentator {
	client := oa.NewClient(option.WithAPIKey(apiKey))
	return &Commentator{cli: client}
}

func (c *Commentator) Comment(ctx context.Context, kind string, payload any) (string, error) {
	prompt, err := userPrompt(kind, payload)
	if err != nil {
		return "", err
	}
	resp, err := c.cli.Chat.Completions.New(ctx, oa.ChatCompletionNewParams{
		Model: "gpt-4",
		Messages: []oa.ChatCompletionMessageParamUnion{
			oa.SystemMessage(systemPrompt),
			oa.UserMessage(prompt),
		},
		MaxTokens: oa.Int(800), // fits one telegram message
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func userPrompt(kind string, payload any) (string, error) {
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", kind, err)
	}
	text := string(body)
	if len(text) > maxPayload {
		cut := maxPayload
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "\n…(truncated)"
	}
	var intro string
	switch kind {
	case KindOptimization:
		intro = "Explain this optimization result. Weights are fractions of the portfolio (0 to 1)."
	case KindBacktest:
		intro = "Explain this backtest result. portfolio_value is the net value over time."
	case KindAnalysis:
		intro = "Explain this portfolio analysis. risk_metrics and performance describe the given weights; market_status is the current market backdrop."
	default:
		intro = "Explain this " + kind + " result."
	}
	return intro + "\n\n" + text, nil
}
