package conversation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxelware/aura/internal/mailbox"
	"github.com/voxelware/aura/internal/observe"
	"github.com/voxelware/aura/internal/vision"
)

// DefaultRecapTimeout bounds recap generation on a person switch. A recap
// that misses the deadline is dropped, never retried.
const DefaultRecapTimeout = 30 * time.Second

// DefaultBlurb is shown when no richer context for the person is available.
const DefaultBlurb = "Last seen: 5 min ago"

// Agent runs one conversational turn against the current state. The returned
// reply may be suppressed (ToolInvoked, or text equal to NoFurtherResponse).
type Agent interface {
	Respond(ctx context.Context, st *State, utterance string) (AgentReply, error)
}

// AgentReply is the outcome of one agent turn.
type AgentReply struct {
	Text        string
	ToolInvoked bool
}

// Summarizer captures a departing person's conversation and produces recaps
// for returning ones.
type Summarizer interface {
	// Summarize persists a structured summary of msgs for the person.
	Summarize(ctx context.Context, personID vision.PersonID, conversationID string, msgs []Message) error

	// Recap condenses everything known about the person into a short
	// briefing. Returns "" when there is no prior context.
	Recap(ctx context.Context, personID vision.PersonID) (string, error)
}

// SwitchNotice is what a client is told when the person in front of the
// camera changes.
type SwitchNotice struct {
	PersonID   vision.PersonID
	PersonName string
	Blurb      string
	Recap      *string
}

// Sinks are the coordinator's per-client outbound callbacks. All three are
// invoked from the coordinator goroutine and must not block indefinitely.
type Sinks struct {
	Switch func(SwitchNotice)
	Reply  func(text string)
}

// Coordinator serialises switch events and transcripts for one client
// through a single inbox, so a switch is always fully applied before the
// next utterance is routed into the new conversation.
type Coordinator struct {
	inbox      *mailbox.Mailbox[event]
	state      *State
	agent      Agent
	summarizer Summarizer
	sinks      Sinks
	log        *slog.Logger
	metrics    *observe.Metrics

	recapTimeout time.Duration

	// summaries tracks detached summarization tasks. They deliberately
	// outlive the client connection.
	summaries sync.WaitGroup
}

type event struct {
	sw    *vision.SwitchEvent
	tr    *transcript
	setID *string
}

type transcript struct {
	text string
	at   time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecapTimeout overrides the recap deadline.
func WithRecapTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.recapTimeout = d }
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator builds a coordinator with a fresh conversation state.
func NewCoordinator(agent Agent, summarizer Summarizer, sinks Sinks, log *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		inbox:        mailbox.New[event](),
		state:        NewState(),
		agent:        agent,
		summarizer:   summarizer,
		sinks:        sinks,
		log:          log,
		recapTimeout: DefaultRecapTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// ConversationID returns the current thread id. Only meaningful between
// inbox events; exposed for diagnostics and tests.
func (c *Coordinator) ConversationID() string { return c.state.ConversationID }

// HandleSwitch enqueues a person-switch event. Never blocks.
func (c *Coordinator) HandleSwitch(ev vision.SwitchEvent) {
	c.inbox.Put(event{sw: &ev})
}

// HandleTranscript enqueues a finalised user utterance. Never blocks.
func (c *Coordinator) HandleTranscript(text string, at time.Time) {
	c.inbox.Put(event{tr: &transcript{text: text, at: at}})
}

// SetConversationID enqueues an explicit conversation id override, keeping
// it ordered with respect to transcripts already in flight.
func (c *Coordinator) SetConversationID(id string) {
	c.inbox.Put(event{setID: &id})
}

// Close stops accepting new events. Run drains what was already enqueued.
func (c *Coordinator) Close() { c.inbox.Close() }

// Wait blocks until all detached summarization tasks have finished.
func (c *Coordinator) Wait() { c.summaries.Wait() }

// Run drains the inbox until it is closed and empty or ctx is cancelled.
// Detached summaries keep running after Run returns.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		ev, ok := c.inbox.Next(ctx)
		if !ok {
			return ctx.Err()
		}
		switch {
		case ev.sw != nil:
			c.onSwitch(ctx, *ev.sw)
		case ev.tr != nil:
			c.onTranscript(ctx, *ev.tr)
		case ev.setID != nil:
			c.state.ConversationID = *ev.setID
		}
	}
}

func (c *Coordinator) onSwitch(ctx context.Context, ev vision.SwitchEvent) {
	c.log.Info("person switch",
		slog.String("from", string(ev.From)),
		slog.String("to", string(ev.To)))

	// Summarize the outgoing person's part of the thread in the background.
	// The conversation id is captured now, before Reset replaces it.
	if ev.From != vision.NoPerson {
		if msgs := c.state.MessagesFor(ev.From); len(msgs) > 0 {
			c.spawnSummary(ctx, ev.From, c.state.ConversationID, msgs)
		}
	}

	c.state.Reset(ev.To)

	notice := SwitchNotice{
		PersonID:   ev.To,
		PersonName: DisplayName(ev.To),
		Blurb:      DefaultBlurb,
	}
	if ev.To != vision.NoPerson {
		if recap := c.recap(ctx, ev.To); recap != "" {
			notice.Recap = &recap
		}
	}
	if c.sinks.Switch != nil {
		c.sinks.Switch(notice)
	}
}

// recap blocks the inbox on purpose. The deadline keeps a slow model from
// stalling the client for more than recapTimeout.
func (c *Coordinator) recap(ctx context.Context, id vision.PersonID) string {
	rctx, cancel := context.WithTimeout(ctx, c.recapTimeout)
	defer cancel()

	recap, err := c.summarizer.Recap(rctx, id)
	if err != nil {
		c.log.Warn("recap generation failed",
			slog.String("person", string(id)),
			slog.String("error", err.Error()))
		return ""
	}
	return recap
}

func (c *Coordinator) spawnSummary(ctx context.Context, id vision.PersonID, conversationID string, msgs []Message) {
	c.summaries.Add(1)
	dctx := context.WithoutCancel(ctx)
	go func() {
		defer c.summaries.Done()
		start := time.Now()
		if err := c.summarizer.Summarize(dctx, id, conversationID, msgs); err != nil {
			c.log.Warn("background summary failed",
				slog.String("person", string(id)),
				slog.String("error", err.Error()))
			return
		}
		c.metrics.SummaryDuration.Record(dctx, time.Since(start).Seconds())
	}()
}

func (c *Coordinator) onTranscript(ctx context.Context, tr transcript) {
	c.state.AppendUser(tr.text, tr.at)

	start := time.Now()
	reply, err := c.agent.Respond(ctx, c.state, tr.text)
	c.metrics.AgentTurnDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		c.log.Warn("agent turn failed", slog.String("error", err.Error()))
		return
	}
	if reply.ToolInvoked || reply.Text == "" || reply.Text == NoFurtherResponse {
		return
	}

	c.state.AppendAssistant(reply.Text, time.Now())
	if c.sinks.Reply != nil {
		c.sinks.Reply(reply.Text)
	}
}

// DisplayName maps a person id to what the client shows for it.
func DisplayName(id vision.PersonID) string {
	switch {
	case id == vision.NoPerson:
		return "No person detected"
	case strings.HasPrefix(string(id), "Unnamed_"):
		return "Unknown"
	default:
		return string(id)
	}
}
