package advisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"probable-pancake/internal/domain"

	"github.com/openai/openai-go"
	"go.opentelemetry.io/otel/trace"
)

func newTestAdvisor(llm LLMClient, store ConversationStore) *AdvisorService {
	return NewAdvisorService(
		trace.NewNoopTracerProvider().Tracer("test"),
		llm,
		&stubStatus{},
		&stubDecisions{},
		&stubTrades{},
		&stubMacro{},
		store,
		"USD_JPY", "gpt-4o-mini", 20,
	)
}

func TestAskHappyPath(t *testing.T) {
	llm := &stubLLMClient{
		response: &openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "momentum favors the long side"}},
			},
		},
	}
	store := &stubConvStore{}

	svc := newTestAdvisor(llm, store)

	reply, err := svc.Ask(context.Background(), 123, "How does USD_JPY look?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "momentum favors the long side" {
		t.Fatalf("unexpected reply %q", reply)
	}
	// Verify messages were stored (user + assistant)
	if len(store.messages) != 2 {
		t.Fatalf("expected 2 stored messages, got %d", len(store.messages))
	}
	if store.messages[0].role != "user" {
		t.Fatalf("expected first stored message role=user, got %s", store.messages[0].role)
	}
	if store.messages[1].role != "assistant" {
		t.Fatalf("expected second stored message role=assistant, got %s", store.messages[1].role)
	}
}

func TestAskLLMError(t *testing.T) {
	llm := &stubLLMClient{err: errors.New("api down")}
	store := &stubConvStore{}

	svc := newTestAdvisor(llm, store)

	_, err := svc.Ask(context.Background(), 123, "what happened today?")
	if err == nil {
		t.Fatal("expected error from LLM failure")
	}
	// User message should still have been stored
	if len(store.messages) != 1 || store.messages[0].role != "user" {
		t.Fatalf("expected user message stored despite LLM error, got %d messages", len(store.messages))
	}
}

func TestAskConversationStoreFailureNonFatal(t *testing.T) {
	llm := &stubLLMClient{
		response: &openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "response"}},
			},
		},
	}
	store := &stubConvStore{appendErr: errors.New("db down")}

	svc := newTestAdvisor(llm, store)

	reply, err := svc.Ask(context.Background(), 123, "test")
	if err != nil {
		t.Fatalf("store failure should be non-fatal, got: %v", err)
	}
	if reply != "response" {
		t.Fatalf("expected 'response', got %q", reply)
	}
}

func TestAskContextSourceFailureNonFatal(t *testing.T) {
	llm := &stubLLMClient{
		response: &openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "no data available"}},
			},
		},
	}
	store := &stubConvStore{}

	svc := NewAdvisorService(
		trace.NewNoopTracerProvider().Tracer("test"),
		llm,
		&stubStatus{},
		&stubDecisions{err: errors.New("db down")},
		&stubTrades{err: errors.New("db down")},
		&stubMacro{},
		store,
		"USD_JPY", "gpt-4o-mini", 20,
	)

	reply, err := svc.Ask(context.Background(), 123, "what looks good?")
	if err != nil {
		t.Fatalf("context failure should be non-fatal, got: %v", err)
	}
	if reply != "no data available" {
		t.Fatalf("expected 'no data available', got %q", reply)
	}
}

func TestAskUsesConversationHistory(t *testing.T) {
	llm := &stubLLMClient{
		response: &openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "continuing"}},
			},
		},
	}
	store := &stubConvStore{
		history: []domain.ConversationMessage{
			{Role: "user", Content: "earlier question"},
			{Role: "assistant", Content: "earlier answer"},
		},
	}

	svc := newTestAdvisor(llm, store)
	if _, err := svc.Ask(context.Background(), 5, "follow up"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// system prompt + 2 history messages
	if llm.lastMessageCount != 3 {
		t.Fatalf("expected 3 messages to LLM, got %d", llm.lastMessageCount)
	}
}

func TestNewAdvisorServiceDefaults(t *testing.T) {
	svc := NewAdvisorService(
		trace.NewNoopTracerProvider().Tracer("test"),
		&stubLLMClient{}, &stubStatus{}, &stubDecisions{}, &stubTrades{}, &stubMacro{}, &stubConvStore{},
		"", "gpt-4o-mini", 0,
	)
	if svc.maxHistory != 20 {
		t.Fatalf("expected default maxHistory=20, got %d", svc.maxHistory)
	}
	if svc.pair != domain.DefaultPair {
		t.Fatalf("expected default pair %s, got %s", domain.DefaultPair, svc.pair)
	}
}

type stubLLMClient struct {
	response         *openai.ChatCompletion
	err              error
	lastMessageCount int
}

func (s *stubLLMClient) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	s.lastMessageCount = len(params.Messages)
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

type stubStatus struct{}

func (s *stubStatus) Status(ctx context.Context) domain.StatusSnapshot {
	return domain.StatusSnapshot{Pair: "USD_JPY", Equity: 1000, UpdatedAt: time.Now()}
}

type stubDecisions struct {
	decisions []domain.Decision
	err       error
}

func (s *stubDecisions) RecentDecisions(ctx context.Context, pair string, limit int) ([]domain.Decision, error) {
	return s.decisions, s.err
}

type stubTrades struct {
	trades []domain.TradeRecord
	err    error
}

func (s *stubTrades) RecentTrades(ctx context.Context, pair string, limit int) ([]domain.TradeRecord, error) {
	return s.trades, s.err
}

type stubMacro struct {
	snap *domain.MacroSnapshot
}

func (s *stubMacro) Snapshot(ctx context.Context, now time.Time) (*domain.MacroSnapshot, error) {
	return s.snap, nil
}

type storedMessage struct {
	chatID  int64
	role    string
	content string
}

type stubConvStore struct {
	messages  []storedMessage
	history   []domain.ConversationMessage
	appendErr error
}

func (s *stubConvStore) AppendMessage(ctx context.Context, chatID int64, role, content string) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.messages = append(s.messages, storedMessage{chatID: chatID, role: role, content: content})
	return nil
}

func (s *stubConvStore) RecentMessages(ctx context.Context, chatID int64, limit int) ([]domain.ConversationMessage, error) {
	return s.history, nil
}
