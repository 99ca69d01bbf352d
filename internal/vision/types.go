// Package vision implements the frame-to-identity pipeline: TCP frame ingest,
// the bounded recognition queue, the recognition worker with its gallery
// cache and running averages, and the FPS-adaptive switch detector whose
// events are broadcast to every connected client.
package vision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PersonID identifies a person for the life of the store. The zero value
// (NoPerson) means no person is present.
type PersonID string

// NoPerson is the absent-person marker.
const NoPerson PersonID = ""

// NewUnnamedID generates a fresh identifier for a face that matched nothing
// in the gallery. The form is "Unnamed_<hex8>".
func NewUnnamedID() PersonID {
	id := uuid.New()
	return PersonID(fmt.Sprintf("Unnamed_%x", id[:4]))
}

// Frame is one JPEG image received from the camera stream.
type Frame struct {
	// JPEG is the raw image payload.
	JPEG []byte

	// At is the receive timestamp.
	At time.Time
}

// Observation is the per-frame recognition outcome. Transient; only the
// switch detector retains a window of these.
type Observation struct {
	// Person is the matched identity, or NoPerson when no face passed the
	// detection floor or the frame failed to decode.
	Person PersonID

	// Similarity is the cosine similarity against the matched gallery entry.
	// 1.0 for a freshly created identity, 0 when Person is NoPerson.
	Similarity float64

	// At is the frame timestamp.
	At time.Time
}

// SwitchEvent records a committed transition of the currently present person.
// From and To are never equal; either may be NoPerson.
type SwitchEvent struct {
	From PersonID
	To   PersonID
	At   time.Time
}

// GalleryEntry is a persisted face centroid and the number of observations
// folded into it. Count is at least 1 and Embedding is never zero-norm.
type GalleryEntry struct {
	ID        PersonID
	Embedding []float32
	Count     int
}

// FaceStore is the slice of the persistent store the recognition worker
// depends on.
type FaceStore interface {
	// ListGallery returns every known face centroid.
	ListGallery(ctx context.Context) ([]GalleryEntry, error)

	// CreateFace persists a newly seen face with count 1.
	CreateFace(ctx context.Context, entry GalleryEntry) error

	// UpdateCentroid replaces the canonical embedding and count for id.
	UpdateCentroid(ctx context.Context, id PersonID, embedding []float32, count int) error
}
