package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voxelware/aura/internal/conversation"
	"github.com/voxelware/aura/internal/observe"
	"github.com/voxelware/aura/pkg/provider/llm"
)

// defaultMaxToolRounds bounds the tool loop. A model that keeps requesting
// tools past this point gets cut off with a suppressed reply.
const defaultMaxToolRounds = 5

// DefaultSystemPrompt is used when no prompt file is configured. The
// {current_time} and {person_name} placeholders are substituted per turn.
const DefaultSystemPrompt = `You are Aura, a discreet assistant living in the wearer's smart glasses.
The current time is {current_time}. The person in front of the wearer is {person_name}.
Answer briefly; the reply is read aloud. Use tools when the wearer asks you to act.
When a tool pushes output to the wearer directly, do not repeat it in your reply.`

// Compile-time interface check: Agent must satisfy conversation.Agent.
var _ conversation.Agent = (*Agent)(nil)

// Config holds all dependencies needed to create an [Agent].
//
// Required fields are LLM and Log. Tools may be nil for a plain chat agent;
// Notify may be nil when no client side-channel exists.
type Config struct {
	// LLM is the completion backend. Must not be nil.
	LLM llm.Provider

	// Tools is the capability set offered to the model. Nil means no tools.
	Tools *Registry

	// SystemPrompt overrides DefaultSystemPrompt when non-empty.
	SystemPrompt string

	// Temperature for completions. Zero means provider default.
	Temperature float64

	// Notify is this client's notification side-channel, handed to tools
	// via the per-turn ToolContext.
	Notify func(title, message string)

	// Log must not be nil.
	Log *slog.Logger

	// Metrics defaults to the process-wide set when nil.
	Metrics *observe.Metrics

	// MaxToolRounds defaults to defaultMaxToolRounds when zero.
	MaxToolRounds int

	// Now is overridable for tests. Defaults to time.Now.
	Now func() time.Time
}

// Agent implements conversation.Agent with an iterative tool loop. One Agent
// serves one client; turns arrive serialised from that client's coordinator.
type Agent struct {
	llm          llm.Provider
	tools        *Registry
	systemPrompt string
	temperature  float64
	notify       func(title, message string)
	log          *slog.Logger
	metrics      *observe.Metrics
	maxRounds    int
	now          func() time.Time
}

// New creates an [Agent] from the given configuration.
func New(cfg Config) (*Agent, error) {
	if cfg.LLM == nil {
		return nil, errors.New("agent: LLM must not be nil")
	}
	if cfg.Log == nil {
		return nil, errors.New("agent: Log must not be nil")
	}
	a := &Agent{
		llm:          cfg.LLM,
		tools:        cfg.Tools,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		notify:       cfg.Notify,
		log:          cfg.Log,
		metrics:      cfg.Metrics,
		maxRounds:    cfg.MaxToolRounds,
		now:          cfg.Now,
	}
	if a.tools == nil {
		a.tools = NewRegistry()
	}
	if a.systemPrompt == "" {
		a.systemPrompt = DefaultSystemPrompt
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.maxRounds <= 0 {
		a.maxRounds = defaultMaxToolRounds
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// Respond runs one turn over the full history in st. The utterance is
// already the newest entry in st; it is passed separately only for logging.
//
// Any tool invocation during the turn suppresses the spoken reply: tools
// that owe the user output deliver it through the ToolContext side-channel
// instead.
func (a *Agent) Respond(ctx context.Context, st *conversation.State, utterance string) (conversation.AgentReply, error) {
	tc := ToolContext{
		PersonID:       st.CurrentPerson,
		ConversationID: st.ConversationID,
		Notify:         a.notify,
	}

	msgs := historyToMessages(st.Messages())
	var defs []llm.ToolDefinition
	if a.tools.Len() > 0 {
		defs = a.tools.Definitions()
	}

	toolInvoked := false
	for round := 0; round < a.maxRounds; round++ {
		resp, err := a.llm.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: a.renderSystemPrompt(st),
			Messages:     msgs,
			Tools:        defs,
			Temperature:  a.temperature,
		})
		if err != nil {
			return conversation.AgentReply{Text: conversation.NoFurtherResponse}, fmt.Errorf("agent: complete: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			if toolInvoked {
				return conversation.AgentReply{Text: conversation.NoFurtherResponse, ToolInvoked: true}, nil
			}
			return conversation.AgentReply{Text: strings.TrimSpace(resp.Content)}, nil
		}

		toolInvoked = true
		msgs = append(msgs, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			msgs = append(msgs, a.executeCall(ctx, tc, call))
		}
	}

	a.log.Warn("tool loop exhausted", slog.String("utterance", utterance))
	return conversation.AgentReply{Text: conversation.NoFurtherResponse, ToolInvoked: true}, nil
}

// executeCall runs one tool call and wraps the outcome as a tool message.
// Tool failures are reported back to the model rather than aborting the turn.
func (a *Agent) executeCall(ctx context.Context, tc ToolContext, call llm.ToolCall) llm.Message {
	result, err := a.tools.Invoke(ctx, tc, call.Name, json.RawMessage(call.Arguments))
	status := "ok"
	if err != nil {
		status = "error"
		a.log.Warn("tool invocation failed",
			slog.String("tool", call.Name),
			slog.String("error", err.Error()))
		result = "error: " + err.Error()
	}
	a.metrics.RecordToolCall(ctx, call.Name, status)

	return llm.Message{
		Role:       "tool",
		Content:    result,
		Name:       call.Name,
		ToolCallID: call.ID,
	}
}

func (a *Agent) renderSystemPrompt(st *conversation.State) string {
	prompt := strings.ReplaceAll(a.systemPrompt, "{current_time}", a.now().Format(time.RFC1123))
	return strings.ReplaceAll(prompt, "{person_name}", conversation.DisplayName(st.CurrentPerson))
}

func historyToMessages(history []conversation.Message) []llm.Message {
	msgs := make([]llm.Message, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return msgs
}
