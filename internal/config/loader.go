package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Validate when fields are unset.
const (
	DefaultServerAddr          = ":8080"
	DefaultIngestAddr          = ":5050"
	DefaultEmbeddingDimensions = 1536
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"deepgram"},
	"embeddings": {"openai"},
	"faceembed":  {"insight"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults for unset fields. It returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultServerAddr
	}
	if cfg.Ingest.ListenAddr == "" {
		cfg.Ingest.ListenAddr = DefaultIngestAddr
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Recognition.MatchThreshold < -1 || cfg.Recognition.MatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("recognition.match_threshold %.2f is out of range [-1, 1]", cfg.Recognition.MatchThreshold))
	}
	if cfg.Recognition.DetScoreFloor < 0 || cfg.Recognition.DetScoreFloor > 1 {
		errs = append(errs, fmt.Errorf("recognition.det_score_floor %.2f is out of range [0, 1]", cfg.Recognition.DetScoreFloor))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("faceembed", cfg.Providers.FaceEmbed.Name)

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required; the agent and summarizer cannot run without a model"))
	}
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required; clients stream audio for transcription"))
	}
	if cfg.Providers.FaceEmbed.Name == "" {
		errs = append(errs, errors.New("providers.faceembed.name is required; frame recognition cannot run without it"))
	}
	if cfg.Providers.FaceEmbed.Name != "" && cfg.Providers.FaceEmbed.BaseURL == "" {
		errs = append(errs, errors.New("providers.faceembed.base_url is required"))
	}

	if cfg.Database.PostgresDSN == "" {
		errs = append(errs, errors.New("database.postgres_dsn is required"))
	}
	if cfg.Database.EmbeddingDimensions <= 0 {
		if cfg.Providers.Embeddings.Name != "" {
			slog.Warn("providers.embeddings is configured but database.embedding_dimensions is not set",
				"default", DefaultEmbeddingDimensions)
		}
		cfg.Database.EmbeddingDimensions = DefaultEmbeddingDimensions
	}

	if cfg.Agent.Temperature < 0 || cfg.Agent.Temperature > 2 {
		errs = append(errs, fmt.Errorf("agent.temperature %.2f is out of range [0.0, 2.0]", cfg.Agent.Temperature))
	}
	if cfg.Agent.SystemPromptPath != "" {
		if _, err := os.Stat(cfg.Agent.SystemPromptPath); err != nil {
			errs = append(errs, fmt.Errorf("agent.system_prompt_path: %w", err))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
