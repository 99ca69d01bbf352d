// Package mock provides a test double for the faceembed.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxelware/aura/pkg/provider/faceembed"
)

// Provider is a scriptable faceembed.Provider.
//
// When Detections is non-empty its elements are returned one per Detect call;
// afterwards Detection/DetectErr are returned verbatim. DetectFn, when set,
// overrides everything.
type Provider struct {
	mu sync.Mutex

	// Detection is returned by Detect when no script applies.
	Detection faceembed.Detection

	// Detections are consumed one per call before falling back to Detection.
	Detections []faceembed.Detection

	// DetectErr, if non-nil, is returned as the error from Detect.
	DetectErr error

	// DetectFn, if non-nil, overrides all response fields.
	DetectFn func(ctx context.Context, jpeg []byte) (faceembed.Detection, error)

	// DetectCalls counts Detect invocations.
	DetectCalls int
}

// Detect records the call and returns the configured detection.
func (p *Provider) Detect(ctx context.Context, jpeg []byte) (faceembed.Detection, error) {
	p.mu.Lock()
	p.DetectCalls++
	fn := p.DetectFn
	var scripted *faceembed.Detection
	if len(p.Detections) > 0 {
		d := p.Detections[0]
		p.Detections = p.Detections[1:]
		scripted = &d
	}
	det, err := p.Detection, p.DetectErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, jpeg)
	}
	if scripted != nil {
		return *scripted, nil
	}
	return det, err
}

// Ensure Provider implements faceembed.Provider at compile time.
var _ faceembed.Provider = (*Provider)(nil)
