// Package conversation owns the per-bot chat sessions: the planner loop
// that turns user text into tool calls against the bot's schedule and
// document index, and the memory that persists across turns.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/docbot-ai/platform/internal/observability/metrics"
	"github.com/docbot-ai/platform/pkg/logging"
)

var tracer = otel.Tracer("docbot.internal.conversation")

// chatClient is the slice of the OpenAI client the planner needs.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// EventType tags the incremental events a streaming turn emits.
type EventType string

const (
	// EventToolCall reports one tool invocation and its observation.
	EventToolCall EventType = "tool_call"
	// EventReply carries the final assistant reply; it is always the
	// last event of a successful turn.
	EventReply EventType = "reply"
	// EventError terminates a turn that failed outright.
	EventError EventType = "error"
)

// Event is one step of a streaming turn.
type Event struct {
	Type        EventType `json:"type"`
	Tool        string    `json:"tool,omitempty"`
	Args        string    `json:"args,omitempty"`
	Observation string    `json:"observation,omitempty"`
	Reply       string    `json:"reply,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// eventBuffer caps the streaming channel. A turn is bounded by the step
// budget, but a single completion may fan out into several tool calls,
// so the buffer leaves generous headroom; overflow drops events rather
// than blocking the planner on an abandoned consumer.
const eventBuffer = 64

// Session is one bot's conversation: planner client, tool catalogue,
// and message history. A mutex serializes turns so interleaved requests
// cannot corrupt memory ordering.
type Session struct {
	botID        string
	client       chatClient
	catalog      *Catalog
	model        string
	instructions string
	greeting     string
	maxSteps     int
	stepTimeout  time.Duration
	logger       *logging.Logger
	metrics      *metrics.PlannerMetrics

	mu      sync.Mutex
	history []openai.ChatCompletionMessage
}

func newSession(botID string, client chatClient, catalog *Catalog, cfg sessionConfig) *Session {
	s := &Session{
		botID:        botID,
		client:       client,
		catalog:      catalog,
		model:        cfg.model,
		instructions: cfg.instructions,
		greeting:     cfg.greeting,
		maxSteps:     cfg.maxSteps,
		stepTimeout:  cfg.stepTimeout,
		logger:       cfg.logger,
		metrics:      cfg.metrics,
	}
	s.resetLocked()
	return s
}

type sessionConfig struct {
	model        string
	instructions string
	greeting     string
	maxSteps     int
	stepTimeout  time.Duration
	logger       *logging.Logger
	metrics      *metrics.PlannerMetrics
}

// resetLocked rewinds memory to the opening state: the system
// instructions followed by the greeting already delivered.
func (s *Session) resetLocked() {
	system := strings.TrimSpace(s.instructions)
	if system == "" {
		system = baseInstructions
	} else {
		system += "\n\n" + baseInstructions
	}
	system += fmt.Sprintf("\n\nYou are operating on behalf of bot %q.", s.botID)

	s.history = []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}
	if s.greeting != "" {
		s.history = append(s.history, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: s.greeting,
		})
	}
}

// Reset discards accumulated memory and returns the greeting to show.
func (s *Session) Reset() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	return s.greeting
}

// Turn runs one full user turn and returns the final reply.
func (s *Session) Turn(ctx context.Context, userText string) (string, error) {
	return s.run(ctx, userText, nil)
}

// TurnStream runs one user turn and emits incremental events on the
// returned channel. The channel is closed when the turn finishes; the
// producer never blocks on a consumer that stopped reading.
func (s *Session) TurnStream(ctx context.Context, userText string) <-chan Event {
	ch := make(chan Event, eventBuffer)
	emit := func(ev Event) {
		select {
		case ch <- ev:
		default:
			s.logger.Warn("stream consumer lagging, dropping event", "bot_id", s.botID, "event", string(ev.Type))
		}
	}
	go func() {
		defer close(ch)
		reply, err := s.run(ctx, userText, emit)
		if err != nil {
			emit(Event{Type: EventError, Error: err.Error()})
			return
		}
		emit(Event{Type: EventReply, Reply: reply})
	}()
	return ch
}

// run is the planner loop: completion, tool dispatch, observation,
// repeat, until the model answers in plain text or the step budget runs
// out.
func (s *Session) run(ctx context.Context, userText string, emit func(Event)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "conversation.turn",
		oteltrace.WithAttributes(attribute.String("bot.id", s.botID)))
	defer span.End()

	started := time.Now()
	defer func() {
		s.metrics.ObserveTurnLatency(time.Since(started).Seconds())
	}()

	// Everything appended during this turn is rolled back together on a
	// completion failure. A partial turn left in memory would replay an
	// assistant tool call with no matching tool response forever after.
	baseline := len(s.history)
	s.history = append(s.history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userText,
	})

	specs := s.catalog.Specs()
	for step := 0; step < s.maxSteps; step++ {
		msg, err := s.complete(ctx, specs)
		if err != nil {
			s.history = s.history[:baseline]
			return "", fmt.Errorf("conversation: completion step %d: %w", step, err)
		}
		s.history = append(s.history, msg)

		if len(msg.ToolCalls) == 0 {
			reply := strings.TrimSpace(msg.Content)
			if reply == "" {
				reply = exhaustedReply
			}
			span.SetAttributes(attribute.Int("turn.steps", step+1))
			return reply, nil
		}

		for _, call := range msg.ToolCalls {
			obs, err := s.catalog.Dispatch(ctx, call.Function.Name, call.Function.Arguments)
			if err != nil {
				// The planner still needs an observation for this call
				// id; surface a generic failure it can relay.
				obs = "The action failed unexpectedly. Apologize and suggest trying again shortly."
			}
			if emit != nil {
				emit(Event{
					Type:        EventToolCall,
					Tool:        call.Function.Name,
					Args:        call.Function.Arguments,
					Observation: obs,
				})
			}
			s.history = append(s.history, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    obs,
				Name:       call.Function.Name,
				ToolCallID: call.ID,
			})
		}
	}

	s.logger.Warn("planner exhausted step budget", "bot_id", s.botID, "max_steps", s.maxSteps)
	return exhaustedReply, nil
}

func (s *Session) complete(ctx context.Context, specs []openai.Tool) (openai.ChatCompletionMessage, error) {
	callCtx := ctx
	if s.stepTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.stepTimeout)
		defer cancel()
	}

	resp, err := s.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: s.history,
		Tools:    specs,
	})
	if err != nil {
		return openai.ChatCompletionMessage{}, err
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, fmt.Errorf("completion returned no choices")
	}
	return resp.Choices[0].Message, nil
}
