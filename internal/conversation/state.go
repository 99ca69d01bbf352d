// Package conversation holds per-client conversational state and the
// coordinator that serialises switch events and transcripts for one client.
package conversation

import (
	"time"

	"github.com/google/uuid"

	"github.com/voxelware/aura/internal/vision"
)

// Message roles.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// NoFurtherResponse is the sentinel an agent turn yields when the reply is
// suppressed (a tool already acted, or the turn failed). It is never appended
// to history or shown to the user.
const NoFurtherResponse = "[NO FURTHER RESPONSE]"

// Message is one immutable history entry.
type Message struct {
	Role     Role
	Content  string
	At       time.Time
	PersonID vision.PersonID
}

// State is the conversational state owned by exactly one coordinator. It is
// not safe for concurrent use; all mutation happens on the coordinator's
// goroutine.
type State struct {
	// ConversationID identifies the current thread. Regenerated on switch.
	ConversationID string

	// CurrentPerson is the person this thread is bound to, or NoPerson.
	CurrentPerson vision.PersonID

	// PersonPresent mirrors CurrentPerson != NoPerson.
	PersonPresent bool

	// LastSpeech is monotone and never precedes the newest user message.
	LastSpeech time.Time

	messages []Message
}

// NewState returns a fresh state with a new conversation id and no person.
func NewState() *State {
	return &State{ConversationID: uuid.NewString()}
}

// AppendUser records a user utterance attributed to the current person.
func (s *State) AppendUser(content string, at time.Time) {
	s.messages = append(s.messages, Message{
		Role:     RoleUser,
		Content:  content,
		At:       at,
		PersonID: s.CurrentPerson,
	})
	if at.After(s.LastSpeech) {
		s.LastSpeech = at
	}
}

// AppendAssistant records an agent reply attributed to the current person.
func (s *State) AppendAssistant(content string, at time.Time) {
	s.messages = append(s.messages, Message{
		Role:     RoleAssistant,
		Content:  content,
		At:       at,
		PersonID: s.CurrentPerson,
	})
}

// Messages returns a copy of the full history.
func (s *State) Messages() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// MessagesFor returns a copy of the history entries attributed to id.
func (s *State) MessagesFor(id vision.PersonID) []Message {
	var out []Message
	for _, m := range s.messages {
		if m.PersonID == id {
			out = append(out, m)
		}
	}
	return out
}

// Len reports the history length.
func (s *State) Len() int { return len(s.messages) }

// Reset drops all messages, generates a fresh conversation id, and rebinds
// the thread to the given person.
func (s *State) Reset(to vision.PersonID) {
	s.messages = nil
	s.ConversationID = uuid.NewString()
	s.CurrentPerson = to
	s.PersonPresent = to != vision.NoPerson
}
