// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service (e.g., Deepgram or a
// local Whisper server) and exposes a uniform streaming interface. The central
// abstraction is SessionHandle: once opened, a session accepts raw PCM audio
// chunks and emits two streams of Transcript values — low-latency partials for
// responsiveness and authoritative finals for the conversation history.
//
// Implementations must be safe for concurrent use. Audio input and transcript
// output channels are goroutine-safe by construction.
package stt

import (
	"context"
	"time"
)

// Transcript is a single recognition result emitted by an STT session.
type Transcript struct {
	// Text is the recognised utterance.
	Text string

	// IsFinal reports whether the provider has committed to this result.
	// Non-final transcripts are interim guesses and may be revised.
	IsFinal bool

	// Confidence is the provider's confidence in Text, in [0, 1].
	Confidence float64

	// At is the wall-clock time the result was received.
	At time.Time
}

// StreamConfig describes the audio format for a new STT session. All fields
// must be compatible with what the underlying provider supports.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. The glasses stream 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most
	// STT providers).
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect, if supported.
	Language string
}

// SessionHandle represents an open STT streaming session. It is an interface
// so that test code can provide mock implementations without a live provider
// connection.
//
// Callers must call Close when the session is no longer needed. Failing to do
// so may leak goroutines and network connections inside the provider
// implementation. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the provider for
	// transcription. The chunk must match the SampleRate, Channels, and
	// bit-depth agreed in StreamConfig. Calling SendAudio after Close returns
	// an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel that emits interim Transcript
	// values. These may drive UI indicators but must not be routed into the
	// conversation history. The channel is closed when the session ends.
	Partials() <-chan Transcript

	// Finals returns a read-only channel that emits authoritative Transcript
	// values once the provider has committed to a result. These are the values
	// routed into the conversation. The channel is closed when the session ends.
	Finals() <-chan Transcript

	// Close terminates the session, flushes any pending audio, and releases
	// all associated resources. After Close returns, the Partials and Finals
	// channels will be closed. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use. Multiple sessions may be
// open simultaneously (one per connected client).
type Provider interface {
	// StartStream opens a new streaming transcription session with the given
	// audio format. The returned SessionHandle is ready to accept audio
	// immediately.
	//
	// Returns an error if the provider cannot establish the session. The
	// caller owns the SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
