// Package insight provides a face-embedding provider backed by an InsightFace
// HTTP sidecar. The sidecar accepts a multipart-encoded image and responds
// with the best face's embedding and detection score as JSON.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/voxelware/aura/pkg/provider/faceembed"
)

// defaultTimeout bounds a single sidecar round-trip.
const defaultTimeout = 10 * time.Second

// Client implements faceembed.Provider against an InsightFace sidecar.
type Client struct {
	baseURL string
	client  *http.Client
}

var _ faceembed.Provider = (*Client)(nil)

// Option is a functional option for Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// New creates a Client for the sidecar at baseURL (e.g., "http://localhost:7003").
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("insight: baseURL must not be empty")
	}
	c := &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// detectResponse is the sidecar's JSON response shape.
type detectResponse struct {
	FaceFound bool      `json:"face_found"`
	Score     float32   `json:"det_score"`
	Embedding []float32 `json:"embedding"`
	Dim       int       `json:"dim"`
}

// Detect implements faceembed.Provider. It posts the JPEG bytes as a multipart
// form to the sidecar's /detect endpoint.
func (c *Client) Detect(ctx context.Context, jpeg []byte) (faceembed.Detection, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", "frame.jpg")
	if err != nil {
		return faceembed.Detection{}, fmt.Errorf("insight: create form file: %w", err)
	}
	if _, err := part.Write(jpeg); err != nil {
		return faceembed.Detection{}, fmt.Errorf("insight: write image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return faceembed.Detection{}, fmt.Errorf("insight: close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", &body)
	if err != nil {
		return faceembed.Detection{}, fmt.Errorf("insight: create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return faceembed.Detection{}, fmt.Errorf("insight: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return faceembed.Detection{}, fmt.Errorf("insight: unexpected status %d: %s", resp.StatusCode, msg)
	}

	var dr detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return faceembed.Detection{}, fmt.Errorf("insight: decode response: %w", err)
	}

	if !dr.FaceFound {
		return faceembed.Detection{}, nil
	}
	if dr.Dim > 0 && dr.Dim != len(dr.Embedding) {
		return faceembed.Detection{}, fmt.Errorf("insight: dim mismatch: declared %d, got %d", dr.Dim, len(dr.Embedding))
	}

	return faceembed.Detection{
		FaceFound: true,
		Score:     dr.Score,
		Embedding: dr.Embedding,
	}, nil
}
