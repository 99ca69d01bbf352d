package vision

import (
	"bytes"
	"context"
	"image/jpeg"
	"log/slog"
	"slices"
	"time"

	"github.com/voxelware/aura/internal/observe"
	"github.com/voxelware/aura/pkg/provider/faceembed"
)

// Worker defaults. MatchThreshold is the lower of the two values found in
// production traffic; treat it as a tunable, not a constant of nature.
const (
	DefaultMatchThreshold = 0.2
	DefaultDetScoreFloor  = 0.5
	DefaultGalleryTTL     = 5 * time.Second
)

// WorkerConfig tunes the recognition worker. Zero values select the defaults
// above.
type WorkerConfig struct {
	// MatchThreshold is the minimum cosine similarity for a gallery match.
	MatchThreshold float64

	// DetScoreFloor is the minimum detection confidence for a face to count.
	DetScoreFloor float32

	// GalleryTTL is how long the in-memory gallery cache is trusted before
	// being re-read from the store.
	GalleryTTL time.Duration
}

// runningAverage is an in-session face centroid. It survives store outages;
// the persisted copy is written only when the person departs.
type runningAverage struct {
	vec   []float32
	count int
}

// fold merges e into the average: avg = (avg*count + e) / (count+1).
func (r *runningAverage) fold(e []float32) {
	for i := range r.vec {
		r.vec[i] = (r.vec[i]*float32(r.count) + e[i]) / float32(r.count+1)
	}
	r.count++
}

// Worker is the single recognition worker. It owns the gallery cache, the
// in-session running averages, and the switch detector; no other component
// touches that state. Frames arrive through the queue, switch events leave
// through the broadcaster.
type Worker struct {
	queue    *FrameQueue
	provider faceembed.Provider
	store    FaceStore
	detector *Detector
	bus      *Broadcaster
	log      *slog.Logger
	metrics  *observe.Metrics
	cfg      WorkerConfig

	gallery   []GalleryEntry
	galleryAt time.Time
	averages  map[PersonID]*runningAverage

	// pending holds identities enrolled while the store was unreachable.
	// Their inserts are retried on every gallery refresh until one lands.
	pending map[PersonID]struct{}
}

// NewWorker wires a recognition worker. metrics may be nil, in which case the
// process-wide default instruments are used.
func NewWorker(queue *FrameQueue, provider faceembed.Provider, store FaceStore, bus *Broadcaster, log *slog.Logger, metrics *observe.Metrics, cfg WorkerConfig) *Worker {
	if cfg.MatchThreshold == 0 {
		cfg.MatchThreshold = DefaultMatchThreshold
	}
	if cfg.DetScoreFloor == 0 {
		cfg.DetScoreFloor = DefaultDetScoreFloor
	}
	if cfg.GalleryTTL == 0 {
		cfg.GalleryTTL = DefaultGalleryTTL
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Worker{
		queue:    queue,
		provider: provider,
		store:    store,
		detector: NewDetector(),
		bus:      bus,
		log:      log,
		metrics:  metrics,
		cfg:      cfg,
		averages: make(map[PersonID]*runningAverage),
		pending:  make(map[PersonID]struct{}),
	}
}

// Run consumes the frame queue until ctx is cancelled. Per-frame faults are
// logged and skipped; only cancellation ends the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("recognition worker started",
		"match_threshold", w.cfg.MatchThreshold,
		"gallery_ttl", w.cfg.GalleryTTL)
	for {
		frame, ok := w.queue.Pop(ctx)
		if !ok {
			w.log.Info("recognition worker stopped")
			return ctx.Err()
		}
		w.Process(ctx, frame)
	}
}

// Process runs one frame through recognition and the switch detector. The
// departing person's final centroid is persisted before the event is handed
// to the broadcaster.
func (w *Worker) Process(ctx context.Context, frame Frame) {
	start := time.Now()
	obs := w.recognise(ctx, frame)
	w.metrics.RecognitionDuration.Record(ctx, time.Since(start).Seconds())

	ev, ok := w.detector.Observe(obs)
	if !ok {
		return
	}

	if ev.From != NoPerson {
		w.persistCentroid(ctx, ev.From)
	}
	w.metrics.Switches.Add(ctx, 1)
	w.log.Info("person switch", "from", string(ev.From), "to", string(ev.To))
	w.bus.Publish(ev)
}

// recognise maps one frame to an observation. All failure paths collapse to a
// NoPerson observation; the frame is never retried.
func (w *Worker) recognise(ctx context.Context, frame Frame) Observation {
	none := Observation{Person: NoPerson, At: frame.At}

	if _, err := jpeg.DecodeConfig(bytes.NewReader(frame.JPEG)); err != nil {
		w.log.Debug("frame decode failed", "err", err)
		return none
	}

	det, err := w.provider.Detect(ctx, frame.JPEG)
	if err != nil {
		w.log.Warn("face detection failed", "err", err)
		return none
	}
	if !det.FaceFound || det.Score < w.cfg.DetScoreFloor {
		return none
	}

	entry, sim, matched := w.match(ctx, det.Embedding)
	if !matched {
		return w.enrol(ctx, det.Embedding, frame.At)
	}

	avg, ok := w.averages[entry.ID]
	if !ok {
		avg = &runningAverage{vec: slices.Clone(entry.Embedding), count: entry.Count}
		w.averages[entry.ID] = avg
	}
	avg.fold(det.Embedding)

	return Observation{Person: entry.ID, Similarity: sim, At: frame.At}
}

// match finds the best gallery entry at or above the similarity threshold.
// Ties break toward the lexicographically smaller PersonID.
func (w *Worker) match(ctx context.Context, e []float32) (GalleryEntry, float64, bool) {
	w.refreshGallery(ctx)

	var (
		best    GalleryEntry
		bestSim = -1.0
		found   bool
	)
	for _, entry := range w.gallery {
		sim := Cosine(e, entry.Embedding)
		if sim < w.cfg.MatchThreshold {
			continue
		}
		if !found || sim > bestSim || (sim == bestSim && entry.ID < best.ID) {
			best, bestSim, found = entry, sim, true
		}
	}
	return best, bestSim, found
}

// refreshGallery re-reads the gallery once the TTL expires. A failed read
// keeps the cached copy and backs off a full TTL.
func (w *Worker) refreshGallery(ctx context.Context) {
	if !w.galleryAt.IsZero() && time.Since(w.galleryAt) < w.cfg.GalleryTTL {
		return
	}

	entries, err := w.store.ListGallery(ctx)
	if err != nil {
		w.log.Warn("gallery refresh failed, keeping cached copy", "err", err)
		w.galleryAt = time.Now()
		return
	}
	w.gallery = entries
	w.galleryAt = time.Now()
	w.retryPending(ctx)
}

// retryPending re-inserts identities enrolled during a store outage. Until an
// insert lands, the cached entry is re-appended after each refresh so the
// identity keeps matching and is never re-enrolled under a second id.
func (w *Worker) retryPending(ctx context.Context) {
	for id := range w.pending {
		avg, ok := w.averages[id]
		if !ok {
			delete(w.pending, id)
			continue
		}
		entry := GalleryEntry{ID: id, Embedding: slices.Clone(avg.vec), Count: avg.count}
		if err := w.store.CreateFace(ctx, entry); err != nil {
			w.log.Warn("deferred face insert failed, keeping identity cached",
				"person_id", string(id), "err", err)
		} else {
			w.log.Info("deferred face insert landed", "person_id", string(id))
			delete(w.pending, id)
		}
		w.gallery = append(w.gallery, entry)
	}
}

// enrol registers a never-before-seen face. The store write is best-effort;
// the in-memory gallery entry keeps the identity matchable either way.
func (w *Worker) enrol(ctx context.Context, e []float32, at time.Time) Observation {
	id := NewUnnamedID()
	entry := GalleryEntry{ID: id, Embedding: slices.Clone(e), Count: 1}

	if err := w.store.CreateFace(ctx, entry); err != nil {
		w.log.Error("persist new face failed", "person_id", string(id), "err", err)
		w.pending[id] = struct{}{}
	} else {
		// Force a reload so the insert is visible on the next match.
		w.galleryAt = time.Time{}
	}

	w.gallery = append(w.gallery, entry)
	w.averages[id] = &runningAverage{vec: slices.Clone(e), count: 1}

	w.log.Info("new person enrolled", "person_id", string(id))
	return Observation{Person: id, Similarity: 1.0, At: at}
}

// persistCentroid writes the final in-session centroid for a departing
// person. At most one write happens per departure; failures are logged and
// the in-memory average survives for the next visit.
func (w *Worker) persistCentroid(ctx context.Context, id PersonID) {
	avg, ok := w.averages[id]
	if !ok {
		return
	}
	if _, deferred := w.pending[id]; deferred {
		// The enrolment insert never landed; the final fold is a create.
		entry := GalleryEntry{ID: id, Embedding: slices.Clone(avg.vec), Count: avg.count}
		if err := w.store.CreateFace(ctx, entry); err != nil {
			w.log.Error("final centroid write failed", "person_id", string(id), "err", err)
			return
		}
		delete(w.pending, id)
		return
	}
	if err := w.store.UpdateCentroid(ctx, id, avg.vec, avg.count); err != nil {
		w.log.Error("final centroid write failed", "person_id", string(id), "err", err)
	}
}
