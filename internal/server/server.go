package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxelware/aura/internal/agent"
	"github.com/voxelware/aura/internal/conversation"
	"github.com/voxelware/aura/internal/observe"
	"github.com/voxelware/aura/internal/vision"
	"github.com/voxelware/aura/pkg/provider/stt"
)

const (
	defaultGreeting    = "Connected to Aura"
	shutdownTimeout    = 5 * time.Second
	defaultSampleRate  = 16000
	defaultNumChannels = 1
)

// AgentFactory builds a per-client agent bound to that client's notification
// side-channel.
type AgentFactory func(notify func(title, message string)) (conversation.Agent, error)

// Config holds the server's listen address and per-client defaults.
type Config struct {
	// Addr is the TCP listen address, e.g. ":8080".
	Addr string

	// Greeting is sent in the connected frame. Defaults to defaultGreeting.
	Greeting string

	// Stream is the audio format clients send. Defaults to 16 kHz mono.
	Stream stt.StreamConfig
}

// Deps are the server's collaborators. Bus, STT, Summarizer, NewAgent, and
// Log are required; Directory may be nil, which makes change_name always
// fail gracefully.
type Deps struct {
	Bus        *vision.Broadcaster
	STT        stt.Provider
	Summarizer conversation.Summarizer
	NewAgent   AgentFactory
	Directory  agent.PersonDirectory
	Log        *slog.Logger
	Metrics    *observe.Metrics
}

// Server accepts WebSocket clients and runs one session per connection.
type Server struct {
	cfg  Config
	deps Deps

	boundAddr atomic.Value // string
}

// New validates deps and returns a Server.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Bus == nil {
		return nil, errors.New("server: Bus must not be nil")
	}
	if deps.STT == nil {
		return nil, errors.New("server: STT must not be nil")
	}
	if deps.Summarizer == nil {
		return nil, errors.New("server: Summarizer must not be nil")
	}
	if deps.NewAgent == nil {
		return nil, errors.New("server: NewAgent must not be nil")
	}
	if deps.Log == nil {
		return nil, errors.New("server: Log must not be nil")
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	if cfg.Greeting == "" {
		cfg.Greeting = defaultGreeting
	}
	if cfg.Stream.SampleRate == 0 {
		cfg.Stream.SampleRate = defaultSampleRate
	}
	if cfg.Stream.Channels == 0 {
		cfg.Stream.Channels = defaultNumChannels
	}
	return &Server{cfg: cfg, deps: deps}, nil
}

// Addr returns the bound listen address once Run has opened the listener.
func (s *Server) Addr() string {
	if v := s.boundAddr.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Run serves until ctx is cancelled. The same mux carries the WebSocket
// endpoint, Prometheus metrics, and a liveness probe.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	s.boundAddr.Store(ln.Addr().String())
	s.deps.Log.Info("websocket server listening", slog.String("addr", ln.Addr().String()))

	srv := &http.Server{
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	err = srv.Serve(ln)
	<-done
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return fmt.Errorf("server: serve: %w", err)
}

// handleWS upgrades the connection and runs the session to completion. Each
// HTTP handler invocation already has its own goroutine.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The glasses connect from a native client, not a browser origin.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.deps.Log.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(s.cfg, s.deps, conn)
	c.run(r.Context())
}
