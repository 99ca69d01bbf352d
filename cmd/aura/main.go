// Command aura is the main entry point for the Aura smart-glasses backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voxelware/aura/internal/app"
	"github.com/voxelware/aura/internal/config"
	"github.com/voxelware/aura/pkg/provider/embeddings"
	oaembed "github.com/voxelware/aura/pkg/provider/embeddings/openai"
	"github.com/voxelware/aura/pkg/provider/faceembed"
	"github.com/voxelware/aura/pkg/provider/faceembed/insight"
	"github.com/voxelware/aura/pkg/provider/llm"
	"github.com/voxelware/aura/pkg/provider/llm/anyllm"
	"github.com/voxelware/aura/pkg/provider/stt"
	"github.com/voxelware/aura/pkg/provider/stt/deepgram"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "aura: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "aura: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("aura starting",
		"config", *configPath,
		"server_addr", cfg.Server.ListenAddr,
		"ingest_addr", cfg.Ingest.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers, logger)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newLogger builds the process-wide structured logger.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// openai, anthropic, gemini, deepseek, mistral, groq, llamacpp, and
	// llamafile share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterFaceEmbed("insight", func(entry config.ProviderEntry) (faceembed.Provider, error) {
		return insight.New(entry.BaseURL)
	})
}

// buildProviders instantiates the providers selected in cfg. Embeddings are
// optional; everything else is required by config validation.
func buildProviders(cfg *config.Config, reg *config.Registry) (app.Providers, error) {
	var (
		p   app.Providers
		err error
	)
	if p.LLM, err = reg.CreateLLM(cfg.Providers.LLM); err != nil {
		return app.Providers{}, err
	}
	if p.STT, err = reg.CreateSTT(cfg.Providers.STT); err != nil {
		return app.Providers{}, err
	}
	if p.FaceEmbed, err = reg.CreateFaceEmbed(cfg.Providers.FaceEmbed); err != nil {
		return app.Providers{}, err
	}
	if cfg.Providers.Embeddings.Name != "" {
		if p.Embeddings, err = reg.CreateEmbeddings(cfg.Providers.Embeddings); err != nil {
			return app.Providers{}, err
		}
	}
	return p, nil
}

// optString reads a string value from a provider options map.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	if v, ok := opts[key].(string); ok {
		return v
	}
	return ""
}
