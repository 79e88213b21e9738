// Package chat relays questions about the current chart to an answering
// service and keeps the per-session transcript.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"findash/internal/backend"
	"findash/internal/domain"
)

// Fixed assistant texts.
const (
	Greeting   = "I can help you analyze this data. What would you like to know?"
	Apology    = "Sorry, I encountered an error. Please try again."
	NoResponse = "No response from server"
)

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

// Context is the chart state a question is asked about.
type Context struct {
	Company   string
	Period    domain.Period
	Metrics   []string
	ChartType string
	Rows      []domain.ChartRow
}

// Answerer produces an answer for a prepared request.
type Answerer interface {
	Answer(ctx context.Context, req backend.ChatRequest) (string, error)
}

// Recorder persists answered questions. It may be nil.
type Recorder interface {
	Append(ctx context.Context, sessionID, question, answer string) error
}

// Bridge owns one session's transcript.
type Bridge struct {
	sessionID string
	answerer  Answerer
	recorder  Recorder
	log       *slog.Logger

	mu       sync.Mutex
	messages []domain.ChatMessage
	epoch    uint64

	clears chan chan struct{}
}

// NewBridge creates a bridge whose transcript holds only the greeting.
// Clear requests are served once Run is started.
func NewBridge(sessionID string, answerer Answerer, recorder Recorder, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		sessionID: sessionID,
		answerer:  answerer,
		recorder:  recorder,
		log:       log.With("session", sessionID),
		messages:  seed(),
		clears:    make(chan chan struct{}),
	}
}

func seed() []domain.ChatMessage {
	return []domain.ChatMessage{{Role: domain.RoleAssistant, Content: Greeting}}
}

// Messages returns a copy of the transcript.
func (b *Bridge) Messages() []domain.ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.ChatMessage(nil), b.messages...)
}

// Run serves clear requests until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ack := <-b.clears:
			b.mu.Lock()
			b.messages = seed()
			b.epoch++
			b.mu.Unlock()
			b.log.Info("chat cleared")
			close(ack)
		}
	}
}

// Clear asks the Run loop to reset the transcript and waits until it has.
// Answers still in flight when the transcript is cleared are dropped.
func (b *Bridge) Clear(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case b.clears <- ack:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send appends question to the transcript, asks the answerer about cc and
// appends the reply. It returns the assistant message that was appended.
// Validation problems and answerer failures become assistant messages, not
// errors.
func (b *Bridge) Send(ctx context.Context, question string, cc Context) (domain.ChatMessage, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.ChatMessage{}, ErrEmptyQuestion
	}

	b.mu.Lock()
	b.messages = append(b.messages, domain.ChatMessage{Role: domain.RoleUser, Content: question})
	epoch := b.epoch
	b.mu.Unlock()

	reply := b.answer(ctx, question, cc)
	msg := domain.ChatMessage{Role: domain.RoleAssistant, Content: reply}

	b.mu.Lock()
	if b.epoch != epoch {
		b.mu.Unlock()
		b.log.Debug("dropping answer for cleared transcript")
		return msg, nil
	}
	b.messages = append(b.messages, msg)
	b.mu.Unlock()
	return msg, nil
}

func (b *Bridge) answer(ctx context.Context, question string, cc Context) string {
	company := strings.ToUpper(strings.TrimSpace(cc.Company))
	if i := strings.Index(company, ":"); i >= 0 {
		company = strings.TrimSpace(company[:i])
	}
	rows := FilterRows(cc.Rows, cc.Metrics)

	switch {
	case company == "":
		return "Please select a company first to analyze the data."
	case len(cc.Metrics) == 0:
		return "Please select at least one metric to analyze."
	case len(rows) == 0:
		return fmt.Sprintf("No valid data available for %s with the selected metrics.", company)
	}

	chartType := cc.ChartType
	if chartType == "" {
		chartType = "line"
	}
	req := backend.ChatRequest{
		Question:  question,
		Company:   company,
		Period:    cc.Period,
		Metrics:   cc.Metrics,
		ChartType: chartType,
		ChartData: rows,
	}

	answer, err := b.answerer.Answer(ctx, req)
	if err != nil {
		b.log.Error("chat request failed", "company", company, "error", err)
		return Apology
	}
	if b.recorder != nil {
		if err := b.recorder.Append(ctx, b.sessionID, question, answer); err != nil {
			b.log.Warn("recording chat", "error", err)
		}
	}
	return answer
}

// FilterRows keeps rows where at least one metric has a value, reduced to
// the period label and those metrics that are defined.
func FilterRows(rows []domain.ChartRow, metrics []string) []domain.ChartRow {
	out := make([]domain.ChartRow, 0, len(rows))
	for _, r := range rows {
		kept := domain.ChartRow{Name: r.Name, Values: make(map[string]*float64)}
		for _, m := range metrics {
			if v, ok := r.Value(m); ok {
				kept.Keys = append(kept.Keys, m)
				kept.Values[m] = domain.Float(v)
			}
		}
		if len(kept.Keys) > 0 {
			out = append(out, kept)
		}
	}
	return out
}
