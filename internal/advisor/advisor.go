package advisor

import (
	"context"
	"fmt"
	"log"
	"time"

	"probable-pancake/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LLMClient abstracts the OpenAI chat completions API for testability.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// StatusQuerier provides the live loop snapshot for the advisor's context.
type StatusQuerier interface {
	Status(ctx context.Context) domain.StatusSnapshot
}

// DecisionQuerier provides recent signal evaluations.
type DecisionQuerier interface {
	RecentDecisions(ctx context.Context, pair string, limit int) ([]domain.Decision, error)
}

// TradeQuerier provides the recent closed-trade ledger.
type TradeQuerier interface {
	RecentTrades(ctx context.Context, pair string, limit int) ([]domain.TradeRecord, error)
}

// MacroQuerier provides the composite macro bias.
type MacroQuerier interface {
	Snapshot(ctx context.Context, now time.Time) (*domain.MacroSnapshot, error)
}

// ConversationStore persists and retrieves conversation messages.
type ConversationStore interface {
	AppendMessage(ctx context.Context, chatID int64, role, content string) error
	RecentMessages(ctx context.Context, chatID int64, limit int) ([]domain.ConversationMessage, error)
}

type AdvisorService struct {
	tracer     trace.Tracer
	llm        LLMClient
	status     StatusQuerier
	decisions  DecisionQuerier
	trades     TradeQuerier
	macro      MacroQuerier
	convStore  ConversationStore
	pair       string
	model      string
	maxHistory int
}

func NewAdvisorService(
	tracer trace.Tracer,
	llm LLMClient,
	status StatusQuerier,
	decisions DecisionQuerier,
	trades TradeQuerier,
	macro MacroQuerier,
	convStore ConversationStore,
	pair, model string,
	maxHistory int,
) *AdvisorService {
	if maxHistory <= 0 {
		maxHistory = 20
	}
	if pair == "" {
		pair = domain.DefaultPair
	}
	return &AdvisorService{
		tracer:     tracer,
		llm:        llm,
		status:     status,
		decisions:  decisions,
		trades:     trades,
		macro:      macro,
		convStore:  convStore,
		pair:       pair,
		model:      model,
		maxHistory: maxHistory,
	}
}

func (s *AdvisorService) Ask(ctx context.Context, chatID int64, userMessage string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.ask")
	defer span.End()
	span.SetAttributes(attribute.Int64("chat_id", chatID))

	// 1. Persist the user message
	if err := s.convStore.AppendMessage(ctx, chatID, "user", userMessage); err != nil {
		log.Printf("failed to store user message: %v", err)
	}

	// 2. Gather live context
	marketContext, err := s.gatherContext(ctx)
	if err != nil {
		log.Printf("failed to gather market context: %v", err)
		marketContext = "Market data temporarily unavailable."
	}

	// 3. Build system prompt with live data
	systemPrompt := BuildSystemPrompt(s.pair, marketContext)

	// 4. Load conversation history
	history, err := s.convStore.RecentMessages(ctx, chatID, s.maxHistory)
	if err != nil {
		log.Printf("failed to load conversation history: %v", err)
		history = nil
	}

	// 5. Construct messages array
	messages := s.buildMessages(systemPrompt, history)

	// 6. Call LLM
	reply, err := s.callLLM(ctx, messages)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("advisor unavailable: %w", err)
	}

	// 7. Persist the assistant reply
	if err := s.convStore.AppendMessage(ctx, chatID, "assistant", reply); err != nil {
		log.Printf("failed to store assistant reply: %v", err)
	}

	return reply, nil
}

func (s *AdvisorService) gatherContext(ctx context.Context) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.gather-context")
	defer span.End()

	var snap domain.StatusSnapshot
	if s.status != nil {
		snap = s.status.Status(ctx)
	}

	var decisions []domain.Decision
	if s.decisions != nil {
		decisions, _ = s.decisions.RecentDecisions(ctx, s.pair, 5)
	}

	var trades []domain.TradeRecord
	if s.trades != nil {
		trades, _ = s.trades.RecentTrades(ctx, s.pair, 5)
	}

	var macro *domain.MacroSnapshot
	if s.macro != nil {
		macro, _ = s.macro.Snapshot(ctx, time.Now().UTC())
	}

	return FormatMarketContext(snap, decisions, trades, macro), nil
}

func (s *AdvisorService) buildMessages(
	systemPrompt string,
	history []domain.ConversationMessage,
) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)

	// System prompt always first
	messages = append(messages, openai.SystemMessage(systemPrompt))

	// Conversation history (already limited by RecentMessages query)
	for _, msg := range history {
		switch msg.Role {
		case "user":
			messages = append(messages, openai.UserMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}

	return messages
}

func (s *AdvisorService) callLLM(
	ctx context.Context,
	messages []openai.ChatCompletionMessageParamUnion,
) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.llm-call")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", s.model),
		attribute.Int("llm.message_count", len(messages)),
	)

	completion, err := s.llm.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model:    s.model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}

	reply := completion.Choices[0].Message.Content
	span.SetAttributes(attribute.Int("llm.reply_length", len(reply)))
	return reply, nil
}

// openaiClient wraps the official SDK's chat completions service.
type openaiClient struct {
	client openai.Client
}

func NewOpenAIClient(apiKey string) LLMClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &openaiClient{client: client}
}

func (c *openaiClient) CreateChatCompletion(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
