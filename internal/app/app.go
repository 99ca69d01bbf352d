// Package app assembles the Aura backend: store, recognition pipeline,
// summarizer, agent factory, and the client-facing WebSocket server.
//
// Construction order is store → recognition worker → broadcast bus →
// per-client coordinators (created by the server on connect). There are no
// cycles; the bus is the only seam between the vision side and the
// conversation side.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/voxelware/aura/internal/agent"
	"github.com/voxelware/aura/internal/config"
	"github.com/voxelware/aura/internal/conversation"
	"github.com/voxelware/aura/internal/observe"
	"github.com/voxelware/aura/internal/server"
	"github.com/voxelware/aura/internal/store"
	"github.com/voxelware/aura/internal/summary"
	"github.com/voxelware/aura/internal/vision"
	"github.com/voxelware/aura/pkg/provider/embeddings"
	"github.com/voxelware/aura/pkg/provider/faceembed"
	"github.com/voxelware/aura/pkg/provider/llm"
	"github.com/voxelware/aura/pkg/provider/stt"
)

// Providers bundles the instantiated external providers. LLM, STT, and
// FaceEmbed are required; Embeddings may be nil, which disables semantic
// memory search.
type Providers struct {
	LLM        llm.Provider
	STT        stt.Provider
	Embeddings embeddings.Provider
	FaceEmbed  faceembed.Provider
}

// App owns the long-running components and their shared resources.
type App struct {
	cfg *config.Config
	log *slog.Logger

	st     *store.Store
	bus    *vision.Broadcaster
	queue  *vision.FrameQueue
	worker *vision.Worker
	ingest *vision.Ingest
	srv    *server.Server

	shutdownMetrics func(context.Context) error
}

// New wires all components. The store is migrated as part of construction.
func New(ctx context.Context, cfg *config.Config, providers Providers, log *slog.Logger) (*App, error) {
	if providers.LLM == nil || providers.STT == nil || providers.FaceEmbed == nil {
		return nil, errors.New("app: LLM, STT, and FaceEmbed providers are required")
	}

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "aura"})
	if err != nil {
		return nil, fmt.Errorf("app: init metrics: %w", err)
	}

	st, err := store.New(ctx, cfg.Database.PostgresDSN, cfg.Database.EmbeddingDimensions)
	if err != nil {
		shutdownMetrics(ctx)
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	bus := vision.NewBroadcaster()
	queue := vision.NewFrameQueue(vision.DefaultQueueCapacity)
	worker := vision.NewWorker(queue, providers.FaceEmbed, st, bus, log, nil, vision.WorkerConfig{
		MatchThreshold: cfg.Recognition.MatchThreshold,
		DetScoreFloor:  float32(cfg.Recognition.DetScoreFloor),
	})
	ingest := vision.NewIngest(cfg.Ingest.ListenAddr, queue, log, nil)

	var sumOpts []summary.Option
	if providers.Embeddings != nil {
		sumOpts = append(sumOpts, summary.WithEmbedder(providers.Embeddings))
	}
	summarizer := summary.NewLLMSummarizer(providers.LLM, st, log, sumOpts...)

	systemPrompt, err := loadSystemPrompt(cfg.Agent.SystemPromptPath)
	if err != nil {
		st.Close()
		shutdownMetrics(ctx)
		return nil, err
	}

	tools := buildToolRegistry(cfg, st, providers.Embeddings)
	newAgent := func(notify func(title, message string)) (conversation.Agent, error) {
		return agent.New(agent.Config{
			LLM:          providers.LLM,
			Tools:        tools,
			SystemPrompt: systemPrompt,
			Temperature:  cfg.Agent.Temperature,
			Notify:       notify,
			Log:          log,
		})
	}

	srv, err := server.New(server.Config{
		Addr:     cfg.Server.ListenAddr,
		Greeting: cfg.Server.Greeting,
	}, server.Deps{
		Bus:        bus,
		STT:        providers.STT,
		Summarizer: summarizer,
		NewAgent:   newAgent,
		Directory:  st,
		Log:        log,
	})
	if err != nil {
		st.Close()
		shutdownMetrics(ctx)
		return nil, fmt.Errorf("app: build server: %w", err)
	}

	return &App{
		cfg:             cfg,
		log:             log,
		st:              st,
		bus:             bus,
		queue:           queue,
		worker:          worker,
		ingest:          ingest,
		srv:             srv,
		shutdownMetrics: shutdownMetrics,
	}, nil
}

// ServerAddr returns the WebSocket server's bound address once running.
func (a *App) ServerAddr() string { return a.srv.Addr() }

// IngestAddr returns the frame ingest's bound address once running.
func (a *App) IngestAddr() string { return a.ingest.Addr() }

// Run starts all long-running loops and blocks until ctx is cancelled or the
// WebSocket server fails. A dead recognition loop is logged but does not
// stop the server; switch events simply stop arriving.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.ingest.Run(gctx); err != nil && gctx.Err() == nil {
			a.log.Error("frame ingest terminated", "err", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.worker.Run(gctx); err != nil && gctx.Err() == nil {
			a.log.Error("recognition worker terminated", "err", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.srv.Run(gctx)
	})

	return g.Wait()
}

// Shutdown releases shared resources. Call after Run has returned.
func (a *App) Shutdown(ctx context.Context) error {
	a.bus.Close()

	var errs []error
	if err := a.shutdownMetrics(ctx); err != nil {
		errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
	}
	a.st.Close()
	return errors.Join(errs...)
}

// loadSystemPrompt reads the prompt file, or returns "" for the built-in
// default when no path is configured.
func loadSystemPrompt(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("app: read system prompt: %w", err)
	}
	return string(b), nil
}

// buildToolRegistry assembles the agent capability set. Tools are stateless;
// one registry is shared by every client's agent.
func buildToolRegistry(cfg *config.Config, st *store.Store, embedder embeddings.Provider) *agent.Registry {
	tools := []agent.Tool{
		agent.NotificationTool{},
		agent.TodoTool{Store: st},
		agent.CalendarTool{Store: st},
		agent.UpdateNameTool{Directory: st},
		agent.RememberTool{Store: st, Embedder: embedder},
	}
	if cfg.Agent.WebSearchAPIKey != "" {
		tools = append(tools, &agent.WebSearchTool{APIKey: cfg.Agent.WebSearchAPIKey})
	}
	return agent.NewRegistry(tools...)
}
