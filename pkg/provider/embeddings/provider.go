// Package embeddings defines the Provider interface for text-embedding backends.
//
// An embeddings provider wraps a service that maps text strings to dense
// float32 vectors (e.g., OpenAI text-embedding-3 or a local sentence
// transformer). These vectors back the person-memory semantic index.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All embedding vectors returned by a single Provider instance must share the
// same dimensionality (returned by Dimensions). Callers must not mix vectors
// from different Provider instances in the same similarity computation unless
// they have verified that both use the same model and space.
type Provider interface {
	// Embed computes the embedding vector for a single text string. Returns a
	// float32 slice of length Dimensions() or an error if the request fails or
	// ctx is cancelled.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed length of every embedding vector produced
	// by this provider. The value is determined by the underlying model and is
	// constant for the lifetime of the Provider instance.
	Dimensions() int

	// ModelID returns the provider-specific model identifier used for
	// embeddings (e.g., "text-embedding-3-small"). Useful for logging and for
	// ensuring consistent model usage across deployments.
	ModelID() string
}
