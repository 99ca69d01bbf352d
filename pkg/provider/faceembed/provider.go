// Package faceembed defines the Provider interface for face-embedding backends.
//
// A face-embedding provider maps a JPEG image to at most one face embedding
// with a detection confidence score. The model internals (detector, aligner,
// recogniser) are behind the interface; the pipeline only consumes the
// resulting vector.
//
// Implementations must be safe for concurrent use.
package faceembed

import "context"

// Detection is the result of running face detection and embedding on one image.
type Detection struct {
	// FaceFound reports whether any face passed the provider's detection
	// confidence floor.
	FaceFound bool

	// Score is the detection confidence of the best face, in [0, 1]. Zero when
	// FaceFound is false.
	Score float32

	// Embedding is the face embedding of the best face. Nil when FaceFound is
	// false. Length is model-defined and constant per provider instance.
	Embedding []float32
}

// Provider is the abstraction over any face-embedding backend.
type Provider interface {
	// Detect runs face detection on a JPEG image and returns the best face's
	// embedding. A frame without a qualifying face returns a Detection with
	// FaceFound == false and a nil error; errors are reserved for transport or
	// decode failures.
	Detect(ctx context.Context, jpeg []byte) (Detection, error)
}
