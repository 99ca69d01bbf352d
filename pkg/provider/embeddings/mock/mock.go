// Package mock provides a test double for the embeddings.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxelware/aura/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider.
//
// EmbedFn, when set, computes the returned vector per call; otherwise
// EmbedResponse and EmbedErr are returned verbatim.
type Provider struct {
	mu sync.Mutex

	// EmbedResponse is returned by Embed when EmbedFn is nil.
	EmbedResponse []float32

	// EmbedErr, if non-nil, is returned as the error from Embed.
	EmbedErr error

	// EmbedFn, if non-nil, overrides EmbedResponse/EmbedErr.
	EmbedFn func(ctx context.Context, text string) ([]float32, error)

	// Dims is returned by Dimensions. Defaults to len(EmbedResponse) when zero.
	Dims int

	// Model is returned by ModelID.
	Model string

	// EmbedCalls records the text of every Embed invocation in order.
	EmbedCalls []string
}

// Embed records the call and returns the configured vector.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	fn := p.EmbedFn
	resp, err := p.EmbedResponse, p.EmbedErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return resp, err
}

// Dimensions returns Dims, or the length of EmbedResponse when Dims is zero.
func (p *Provider) Dimensions() int {
	if p.Dims > 0 {
		return p.Dims
	}
	return len(p.EmbedResponse)
}

// ModelID returns Model.
func (p *Provider) ModelID() string {
	if p.Model == "" {
		return "mock-embeddings"
	}
	return p.Model
}

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)
