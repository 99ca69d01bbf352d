// Package mock provides test doubles for the stt.Provider and
// stt.SessionHandle interfaces.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/voxelware/aura/pkg/provider/stt"
)

// Session is a scriptable stt.SessionHandle. Tests push transcripts with
// EmitFinal/EmitPartial and inspect audio received via SendAudio.
type Session struct {
	mu     sync.Mutex
	closed bool

	partials chan stt.Transcript
	finals   chan stt.Transcript

	// AudioChunks records every chunk passed to SendAudio in order.
	AudioChunks [][]byte

	// SendAudioErr, if non-nil, is returned by SendAudio.
	SendAudioErr error
}

// NewSession returns a ready Session with buffered transcript channels.
func NewSession() *Session {
	return &Session{
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
	}
}

// SendAudio records the chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock stt: session is closed")
	}
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)
	s.AudioChunks = append(s.AudioChunks, c)
	return nil
}

// Audio returns a snapshot of all chunks received so far.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.AudioChunks))
	copy(out, s.AudioChunks)
	return out
}

// Partials returns the partial transcript channel.
func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the final transcript channel.
func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// EmitPartial pushes an interim transcript to consumers.
func (s *Session) EmitPartial(t stt.Transcript) { s.partials <- t }

// EmitFinal pushes a final transcript to consumers.
func (s *Session) EmitFinal(t stt.Transcript) { s.finals <- t }

// Close closes both transcript channels. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.partials)
	close(s.finals)
	return nil
}

// Provider is a mock stt.Provider that hands out pre-built sessions.
type Provider struct {
	mu sync.Mutex

	// Sessions are returned by StartStream in order. When exhausted, a fresh
	// Session is created per call.
	Sessions []*Session

	// StartErr, if non-nil, is returned by StartStream.
	StartErr error

	// StartCalls records the StreamConfig of every StartStream invocation.
	StartCalls []stt.StreamConfig
}

// StartStream records the call and returns the next scripted session.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls = append(p.StartCalls, cfg)
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	if len(p.Sessions) > 0 {
		s := p.Sessions[0]
		p.Sessions = p.Sessions[1:]
		return s, nil
	}
	return NewSession(), nil
}

// Compile-time interface checks.
var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.SessionHandle = (*Session)(nil)
)
