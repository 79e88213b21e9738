package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"findash/internal/backend"
	"findash/internal/chart"
	"findash/internal/util"
)

// Poster is the backend call RemoteAnswerer forwards to.
type Poster interface {
	Chat(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error)
}

// RemoteAnswerer asks the analytics API's /chat/ endpoint.
type RemoteAnswerer struct {
	poster Poster
}

// NewRemoteAnswerer wraps a backend client.
func NewRemoteAnswerer(p Poster) *RemoteAnswerer {
	return &RemoteAnswerer{poster: p}
}

// Answer returns the answer text, or the error text of a successful
// response that carried no answer.
func (a *RemoteAnswerer) Answer(ctx context.Context, req backend.ChatRequest) (string, error) {
	resp, err := a.poster.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	switch {
	case resp.Answer != "":
		return resp.Answer, nil
	case resp.Error != "":
		return resp.Error, nil
	}
	return NoResponse, nil
}

const systemPrompt = `You are a financial analyst assistant embedded in a charting dashboard.
Answer the user's question using only the chart data provided. Be concise,
quote concrete figures and periods, and say so when the data cannot answer the question.`

// LLMAnswerer asks an OpenAI-compatible chat model directly.
type LLMAnswerer struct {
	model   model.BaseChatModel
	limiter *rate.Limiter
}

// LLMConfig configures NewLLMAnswerer.
type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestsPerMin int
}

// NewLLMAnswerer builds an answerer on the eino OpenAI chat model.
func NewLLMAnswerer(ctx context.Context, cfg LLMConfig) (*LLMAnswerer, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat model: %w", err)
	}
	return NewLLMAnswererWith(cm, cfg.RequestsPerMin), nil
}

// NewLLMAnswererWith wraps an existing chat model. rpm <= 0 disables
// throttling.
func NewLLMAnswererWith(cm model.BaseChatModel, rpm int) *LLMAnswerer {
	limit := rate.Inf
	if rpm > 0 {
		limit = rate.Limit(float64(rpm) / 60.0)
	}
	return &LLMAnswerer{model: cm, limiter: rate.NewLimiter(limit, 1)}
}

// Answer sends the chart context and question to the model. Rate-limited
// responses are retried with backoff.
func (a *LLMAnswerer) Answer(ctx context.Context, req backend.ChatRequest) (string, error) {
	prompt, err := userPrompt(req)
	if err != nil {
		return "", err
	}
	messages := []*schema.Message{
		{Role: schema.System, Content: systemPrompt},
		{Role: schema.User, Content: prompt},
	}

	var answer string
	err = util.Retry(ctx, 3, 2*time.Second, util.IsRateLimited, func() error {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := a.model.Generate(ctx, messages)
		if err != nil {
			return err
		}
		answer = strings.TrimSpace(resp.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}
	if answer == "" {
		return NoResponse, nil
	}
	return answer, nil
}

func userPrompt(req backend.ChatRequest) (string, error) {
	data, err := json.Marshal(req.ChartData)
	if err != nil {
		return "", fmt.Errorf("encoding chart data: %w", err)
	}
	labels := make([]string, len(req.Metrics))
	for i, m := range req.Metrics {
		labels[i] = chart.MetricLabel(m)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Company: %s\n", req.Company)
	fmt.Fprintf(&sb, "Period: %s\n", req.Period)
	fmt.Fprintf(&sb, "Metrics: %s\n", strings.Join(labels, ", "))
	fmt.Fprintf(&sb, "Chart: %s\n", req.ChartType)
	fmt.Fprintf(&sb, "Data: %s\n\n", data)
	sb.WriteString("Question: ")
	sb.WriteString(req.Question)
	return sb.String(), nil
}
