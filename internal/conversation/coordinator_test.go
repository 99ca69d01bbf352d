package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/voxelware/aura/internal/vision"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeAgent records every turn it sees, including a snapshot of the state at
// call time, and replies from a script.
type fakeAgent struct {
	mu      sync.Mutex
	replies []AgentReply
	err     error

	utterances []string
	convIDs    []string
	histories  [][]Message
}

func (a *fakeAgent) Respond(_ context.Context, st *State, utterance string) (AgentReply, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.utterances = append(a.utterances, utterance)
	a.convIDs = append(a.convIDs, st.ConversationID)
	a.histories = append(a.histories, st.Messages())
	if a.err != nil {
		return AgentReply{}, a.err
	}
	if len(a.replies) == 0 {
		return AgentReply{Text: "ok"}, nil
	}
	r := a.replies[0]
	a.replies = a.replies[1:]
	return r, nil
}

type summaryCall struct {
	person vision.PersonID
	convID string
	msgs   []Message
}

type fakeSummarizer struct {
	mu         sync.Mutex
	summaries  []summaryCall
	recap      string
	recapErr   error
	recapCalls []vision.PersonID
	recapBlock bool
}

func (s *fakeSummarizer) Summarize(_ context.Context, id vision.PersonID, convID string, msgs []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summaryCall{person: id, convID: convID, msgs: msgs})
	return nil
}

func (s *fakeSummarizer) Recap(ctx context.Context, id vision.PersonID) (string, error) {
	s.mu.Lock()
	s.recapCalls = append(s.recapCalls, id)
	block := s.recapBlock
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.recap, s.recapErr
}

type noticeSink struct {
	mu      sync.Mutex
	notices []SwitchNotice
	replies []string
}

func (n *noticeSink) sinks() Sinks {
	return Sinks{
		Switch: func(sn SwitchNotice) {
			n.mu.Lock()
			defer n.mu.Unlock()
			n.notices = append(n.notices, sn)
		},
		Reply: func(text string) {
			n.mu.Lock()
			defer n.mu.Unlock()
			n.replies = append(n.replies, text)
		},
	}
}

// run drives the coordinator over the already-enqueued events and returns
// once the inbox is drained.
func run(t *testing.T, c *Coordinator) {
	t.Helper()
	c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	c.Wait()
}

func TestSwitchMintsFreshConversation(t *testing.T) {
	agent := &fakeAgent{}
	sum := &fakeSummarizer{}
	sink := &noticeSink{}
	c := NewCoordinator(agent, sum, sink.sinks(), testLogger())

	before := c.ConversationID()
	c.HandleSwitch(vision.SwitchEvent{From: vision.NoPerson, To: "alice"})
	run(t, c)

	if c.ConversationID() == before {
		t.Error("conversation id not regenerated on switch")
	}
	if !c.state.PersonPresent || c.state.CurrentPerson != "alice" {
		t.Errorf("state not rebound: person=%q present=%v", c.state.CurrentPerson, c.state.PersonPresent)
	}
	if len(sink.notices) != 1 {
		t.Fatalf("got %d switch notices, want 1", len(sink.notices))
	}
	if sink.notices[0].PersonName != "alice" {
		t.Errorf("person name = %q, want alice", sink.notices[0].PersonName)
	}
	if sink.notices[0].Blurb != DefaultBlurb {
		t.Errorf("blurb = %q, want %q", sink.notices[0].Blurb, DefaultBlurb)
	}
}

func TestSwitchAppliedBeforeNextTranscript(t *testing.T) {
	agent := &fakeAgent{}
	sum := &fakeSummarizer{}
	sink := &noticeSink{}
	c := NewCoordinator(agent, sum, sink.sinks(), testLogger())

	c.HandleSwitch(vision.SwitchEvent{From: vision.NoPerson, To: "alice"})
	c.HandleTranscript("hi there", time.Now())
	c.HandleSwitch(vision.SwitchEvent{From: "alice", To: "bob"})
	c.HandleTranscript("hello again", time.Now())
	run(t, c)

	if len(agent.convIDs) != 2 {
		t.Fatalf("got %d agent turns, want 2", len(agent.convIDs))
	}
	if agent.convIDs[0] == agent.convIDs[1] {
		t.Error("second transcript reused the pre-switch conversation id")
	}
	// Bob's thread must start clean: one user message, nothing from alice.
	if got := len(agent.histories[1]); got != 1 {
		t.Errorf("history after switch has %d messages, want 1", got)
	}
	if agent.histories[1][0].PersonID != "bob" {
		t.Errorf("utterance attributed to %q, want bob", agent.histories[1][0].PersonID)
	}
}

func TestDepartureSummarizesOutgoingPerson(t *testing.T) {
	agent := &fakeAgent{replies: []AgentReply{{Text: "sure"}}}
	sum := &fakeSummarizer{}
	sink := &noticeSink{}
	c := NewCoordinator(agent, sum, sink.sinks(), testLogger())

	c.HandleSwitch(vision.SwitchEvent{From: vision.NoPerson, To: "alice"})
	c.HandleTranscript("remember the milk", time.Now())
	c.HandleSwitch(vision.SwitchEvent{From: "alice", To: vision.NoPerson})
	run(t, c)

	if len(sum.summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(sum.summaries))
	}
	call := sum.summaries[0]
	if call.person != "alice" {
		t.Errorf("summarized %q, want alice", call.person)
	}
	// Both the utterance and the assistant reply belong to alice's thread.
	if len(call.msgs) != 2 {
		t.Errorf("summary saw %d messages, want 2", len(call.msgs))
	}
	if call.convID == c.ConversationID() {
		t.Error("summary captured the post-switch conversation id")
	}
}

func TestNoSummaryForEmptyThread(t *testing.T) {
	agent := &fakeAgent{}
	sum := &fakeSummarizer{}
	sink := &noticeSink{}
	c := NewCoordinator(agent, sum, sink.sinks(), testLogger())

	c.HandleSwitch(vision.SwitchEvent{From: vision.NoPerson, To: "alice"})
	c.HandleSwitch(vision.SwitchEvent{From: "alice", To: vision.NoPerson})
	run(t, c)

	if len(sum.summaries) != 0 {
		t.Errorf("got %d summaries for an empty thread, want 0", len(sum.summaries))
	}
}

func TestRecapAttachedToNotice(t *testing.T) {
	agent := &fakeAgent{}
	sum := &fakeSummarizer{recap: "You discussed the demo schedule."}
	sink := &noticeSink{}
	c := NewCoordinator(agent, sum, sink.sinks(), testLogger())

	c.HandleSwitch(vision.SwitchEvent{From: vision.NoPerson, To: "alice"})
	run(t, c)

	if len(sink.notices) != 1 {
		t.Fatalf("got %d notices, want 1", len(sink.notices))
	}
	got := sink.notices[0].Recap
	if got == nil || *got != sum.recap {
		t.Errorf("recap = %v, want %q", got, sum.recap)
	}
}

func TestRecapFailureYieldsNil(t *testing.T) {
	agent := &fakeAgent{}
	sum := &fakeSummarizer{recapErr: errors.New("model unavailable")}
	sink := &noticeSink{}
	c := NewCoordinator(agent, sum, sink.sinks(), testLogger())

	c.HandleSwitch(vision.SwitchEvent{From: vision.NoPerson, To: "alice"})
	run(t, c)

	if len(sink.notices) != 1 {
		t.Fatalf("got %d notices, want 1", len(sink.notices))
	}
	if sink.notices[0].Recap != nil {
		t.Errorf("recap = %q, want nil after failure", *sink.notices[0].Recap)
	}
}

func TestRecapDeadlineEnforced(t *testing.T) {
	agent := &fakeAgent{}
	sum := &fakeSummarizer{recapBlock: true}
	sink := &noticeSink{}
	c := NewCoordinator(agent, sum, sink.sinks(), testLogger(),
		WithRecapTimeout(20*time.Millisecond))

	c.HandleSwitch(vision.SwitchEvent{From: vision.NoPerson, To: "alice"})

	start := time.Now()
	run(t, c)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("recap blocked the inbox for %v", elapsed)
	}
	if len(sink.notices) != 1 || sink.notices[0].Recap != nil {
		t.Error("timed-out recap must still deliver the notice with a nil recap")
	}
}

func TestNoRecapForNoPerson(t *testing.T) {
	agent := &fakeAgent{}
	sum := &fakeSummarizer{recap: "should never appear"}
	sink := &noticeSink{}
	c := NewCoordinator(agent, sum, sink.sinks(), testLogger())

	c.HandleSwitch(vision.SwitchEvent{From: "alice", To: vision.NoPerson})
	run(t, c)

	if len(sum.recapCalls) != 0 {
		t.Errorf("recap requested for an absent person: %v", sum.recapCalls)
	}
	if len(sink.notices) != 1 {
		t.Fatalf("got %d notices, want 1", len(sink.notices))
	}
	if sink.notices[0].PersonName != "No person detected" {
		t.Errorf("person name = %q", sink.notices[0].PersonName)
	}
}

func TestToolTurnSuppressesReply(t *testing.T) {
	agent := &fakeAgent{replies: []AgentReply{{Text: NoFurtherResponse, ToolInvoked: true}}}
	sum := &fakeSummarizer{}
	sink := &noticeSink{}
	c := NewCoordinator(agent, sum, sink.sinks(), testLogger())

	c.HandleSwitch(vision.SwitchEvent{From: vision.NoPerson, To: "alice"})
	c.HandleTranscript("add milk to my list", time.Now())
	run(t, c)

	if len(sink.replies) != 0 {
		t.Errorf("tool turn produced replies: %v", sink.replies)
	}
	// Only the user message lands in history.
	if got := c.state.Len(); got != 1 {
		t.Errorf("history has %d messages, want 1", got)
	}
}

func TestFailedTurnAppendsNothing(t *testing.T) {
	agent := &fakeAgent{err: errors.New("backend down")}
	sum := &fakeSummarizer{}
	sink := &noticeSink{}
	c := NewCoordinator(agent, sum, sink.sinks(), testLogger())

	c.HandleSwitch(vision.SwitchEvent{From: vision.NoPerson, To: "alice"})
	c.HandleTranscript("hello?", time.Now())
	run(t, c)

	if len(sink.replies) != 0 {
		t.Errorf("failed turn produced replies: %v", sink.replies)
	}
	if got := c.state.Len(); got != 1 {
		t.Errorf("history has %d messages, want 1", got)
	}
}

func TestReplyDeliveredAndRecorded(t *testing.T) {
	agent := &fakeAgent{replies: []AgentReply{{Text: "the meeting is at 3pm"}}}
	sum := &fakeSummarizer{}
	sink := &noticeSink{}
	c := NewCoordinator(agent, sum, sink.sinks(), testLogger())

	c.HandleSwitch(vision.SwitchEvent{From: vision.NoPerson, To: "alice"})
	c.HandleTranscript("when is the meeting?", time.Now())
	run(t, c)

	if len(sink.replies) != 1 || sink.replies[0] != "the meeting is at 3pm" {
		t.Fatalf("replies = %v", sink.replies)
	}
	msgs := c.state.Messages()
	if len(msgs) != 2 || msgs[1].Role != RoleAssistant {
		t.Errorf("history = %+v, want user then assistant", msgs)
	}
}

func TestSetConversationIDOrdered(t *testing.T) {
	agent := &fakeAgent{}
	sum := &fakeSummarizer{}
	sink := &noticeSink{}
	c := NewCoordinator(agent, sum, sink.sinks(), testLogger())

	c.SetConversationID("session-42")
	c.HandleTranscript("hi", time.Now())
	run(t, c)

	if len(agent.convIDs) != 1 || agent.convIDs[0] != "session-42" {
		t.Errorf("agent saw conversation ids %v, want [session-42]", agent.convIDs)
	}
}

func TestClientsAreIsolated(t *testing.T) {
	sum := &fakeSummarizer{}
	agentA := &fakeAgent{}
	agentB := &fakeAgent{}
	sinkA := &noticeSink{}
	sinkB := &noticeSink{}
	a := NewCoordinator(agentA, sum, sinkA.sinks(), testLogger())
	b := NewCoordinator(agentB, sum, sinkB.sinks(), testLogger())

	a.HandleSwitch(vision.SwitchEvent{From: vision.NoPerson, To: "alice"})
	b.HandleSwitch(vision.SwitchEvent{From: vision.NoPerson, To: "alice"})
	a.HandleTranscript("only for client A", time.Now())
	b.HandleTranscript("only for client B", time.Now())
	run(t, a)
	run(t, b)

	if a.ConversationID() == b.ConversationID() {
		t.Error("clients share a conversation id")
	}
	if len(agentA.histories) != 1 || len(agentB.histories) != 1 {
		t.Fatalf("turns: A=%d B=%d, want 1 each", len(agentA.histories), len(agentB.histories))
	}
	if agentA.histories[0][0].Content != "only for client A" {
		t.Errorf("client A history leaked: %+v", agentA.histories[0])
	}
	if agentB.histories[0][0].Content != "only for client B" {
		t.Errorf("client B history leaked: %+v", agentB.histories[0])
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		id   vision.PersonID
		want string
	}{
		{vision.NoPerson, "No person detected"},
		{"Unnamed_a1b2c3d4", "Unknown"},
		{"alice", "alice"},
	}
	for _, tc := range cases {
		if got := DisplayName(tc.id); got != tc.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tc.id, got, tc.want)
		}
	}
}
