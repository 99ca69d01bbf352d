// Package summary turns finished conversation threads into persistent
// context: append-only summaries, extracted person memories, captured todos,
// and the short recap shown when a person returns.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/voxelware/aura/internal/conversation"
	"github.com/voxelware/aura/internal/store"
	"github.com/voxelware/aura/internal/vision"
	"github.com/voxelware/aura/pkg/provider/embeddings"
	"github.com/voxelware/aura/pkg/provider/llm"
)

// summarizationPrompt asks the model for a structured digest of one thread.
const summarizationPrompt = `Summarise the following conversation between the wearer of a pair of smart glasses and the person in front of them.
Respond with a single JSON object, no prose around it:
{
  "summary": "2-4 sentence summary of what was discussed",
  "key_facts": ["standalone facts about the person worth remembering"],
  "action_items": ["concrete follow-ups the wearer agreed to"]
}
Omit small talk. Leave key_facts and action_items empty when nothing qualifies.`

// maxConcurrentSummaries caps in-flight summarization LLM calls across all
// clients. Departures beyond the cap queue on the semaphore.
const maxConcurrentSummaries = 4

// Store is the slice of persistence the summarizer needs.
type Store interface {
	AddSummary(ctx context.Context, personID vision.PersonID, text string) error
	SetRecap(ctx context.Context, personID vision.PersonID, recap string) error
	ListSummaries(ctx context.Context, personID vision.PersonID) ([]store.Summary, error)
	AddMemory(ctx context.Context, m store.Memory, embedding []float32) error
	AddTodo(ctx context.Context, description string, personID vision.PersonID, conversationID string) error
}

// LLMSummarizer implements conversation.Summarizer on top of an LLM provider
// and the store.
type LLMSummarizer struct {
	llm      llm.Provider
	store    Store
	embedder embeddings.Provider
	log      *slog.Logger
	sem      *semaphore.Weighted
}

var _ conversation.Summarizer = (*LLMSummarizer)(nil)

// Option configures an LLMSummarizer.
type Option func(*LLMSummarizer)

// WithEmbedder enables semantic indexing of extracted memories. Without it
// memories are stored without embeddings and served by recency only.
func WithEmbedder(e embeddings.Provider) Option {
	return func(s *LLMSummarizer) { s.embedder = e }
}

// NewLLMSummarizer creates a summarizer backed by the given provider.
func NewLLMSummarizer(provider llm.Provider, st Store, log *slog.Logger, opts ...Option) *LLMSummarizer {
	s := &LLMSummarizer{
		llm:   provider,
		store: st,
		log:   log,
		sem:   semaphore.NewWeighted(maxConcurrentSummaries),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// digest is the model's structured answer.
type digest struct {
	Summary     string   `json:"summary"`
	KeyFacts    []string `json:"key_facts"`
	ActionItems []string `json:"action_items"`
}

// Summarize condenses msgs, then persists the summary, the person's recap,
// extracted memories, and captured action items. Partial persistence
// failures are logged and folded into the returned error; the summary row is
// the only write treated as fatal.
func (s *LLMSummarizer) Summarize(ctx context.Context, personID vision.PersonID, conversationID string, msgs []conversation.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	defer s.sem.Release(1)

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarizationPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: renderTranscript(msgs)},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	d := parseDigest(resp.Content)
	if d.Summary == "" {
		return errors.New("summarize: model returned an empty summary")
	}

	if err := s.store.AddSummary(ctx, personID, d.Summary); err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	var errs []error
	if err := s.store.SetRecap(ctx, personID, d.Summary); err != nil {
		errs = append(errs, err)
	}
	for _, fact := range d.KeyFacts {
		if fact = strings.TrimSpace(fact); fact == "" {
			continue
		}
		m := store.Memory{
			PersonID:       personID,
			Text:           fact,
			Context:        "extracted from conversation summary",
			ConversationID: conversationID,
		}
		if err := s.store.AddMemory(ctx, m, s.embed(ctx, fact)); err != nil {
			errs = append(errs, err)
		}
	}
	for _, item := range d.ActionItems {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		if err := s.store.AddTodo(ctx, item, personID, conversationID); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("summarize: partial persistence failure: %w", errors.Join(errs...))
	}
	return nil
}

// embed returns the fact's embedding, or nil when no embedder is configured
// or the call fails. Memories without embeddings still land in the store.
func (s *LLMSummarizer) embed(ctx context.Context, text string) []float32 {
	if s.embedder == nil {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.log.Warn("memory embedding failed", slog.String("error", err.Error()))
		return nil
	}
	return vec
}

// renderTranscript formats messages into a readable transcript for the model.
func renderTranscript(msgs []conversation.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		speaker := "Wearer"
		if m.Role == conversation.RoleAssistant {
			speaker = "Assistant"
		}
		fmt.Fprintf(&sb, "[%s]: %s\n", speaker, m.Content)
	}
	return sb.String()
}

// parseDigest decodes the model's JSON answer, tolerating a fenced code
// block around it. A response that is not valid JSON becomes a plain-text
// summary with no facts or action items.
func parseDigest(content string) digest {
	text := strings.TrimSpace(content)
	if after, ok := strings.CutPrefix(text, "```json"); ok {
		text = after
	} else if after, ok := strings.CutPrefix(text, "```"); ok {
		text = after
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	var d digest
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return digest{Summary: strings.TrimSpace(content)}
	}
	d.Summary = strings.TrimSpace(d.Summary)
	return d
}
