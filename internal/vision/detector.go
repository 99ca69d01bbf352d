package vision

import (
	"time"
)

// fpsSamples is the maximum number of frame timestamps used for FPS estimation.
const fpsSamples = 30

// defaultFPS is assumed until two timestamps have been observed.
const defaultFPS = 10.0

// Detector smooths noisy per-frame observations into a stable committed
// person via an FPS-adaptive sliding-window vote. It is not safe for
// concurrent use; the recognition worker is its only caller.
//
// The window size and both vote thresholds track the estimated frame rate so
// that the wall-clock response time stays roughly constant: committing a new
// person targets ~0.5 s, committing absence targets ~0.7 s. Declaring absence
// is deliberately harder than declaring presence — spurious absence is more
// disruptive than a slightly delayed return.
type Detector struct {
	window  []PersonID
	current PersonID
	stamps  []time.Time
}

// NewDetector returns a detector with no committed person.
func NewDetector() *Detector {
	return &Detector{}
}

// Current returns the committed person, or NoPerson.
func (d *Detector) Current() PersonID { return d.current }

// Observe folds one observation into the window and reports whether it
// committed a transition. Hysteresis comes from the rolling window; no state
// is reset on emit.
func (d *Detector) Observe(obs Observation) (SwitchEvent, bool) {
	d.stamps = append(d.stamps, obs.At)
	if len(d.stamps) > fpsSamples {
		d.stamps = d.stamps[1:]
	}

	f := d.estimateFPS()
	n := clampInt(int(f), 5, fpsSamples)
	toPerson := clampInt(int(5*f/10), 3, n-1)
	toAbsent := clampInt(int(7*f/10), 5, n-1)

	d.window = append(d.window, obs.Person)
	for len(d.window) > n {
		d.window = d.window[1:]
	}

	newest := obs.Person
	switch {
	case d.current != NoPerson && newest == NoPerson:
		if d.votes(NoPerson) >= toAbsent {
			return d.commit(NoPerson, obs.At), true
		}
	case newest != NoPerson && newest != d.current:
		if d.votes(newest) >= toPerson {
			return d.commit(newest, obs.At), true
		}
	}
	return SwitchEvent{}, false
}

// estimateFPS derives the frame rate from the timestamp ring.
func (d *Detector) estimateFPS() float64 {
	if len(d.stamps) < 2 {
		return defaultFPS
	}
	span := d.stamps[len(d.stamps)-1].Sub(d.stamps[0])
	if span <= 0 {
		return defaultFPS
	}
	return float64(len(d.stamps)-1) / span.Seconds()
}

// votes counts occurrences of id in the window.
func (d *Detector) votes(id PersonID) int {
	n := 0
	for _, p := range d.window {
		if p == id {
			n++
		}
	}
	return n
}

// commit updates the committed person and builds the event.
func (d *Detector) commit(to PersonID, at time.Time) SwitchEvent {
	ev := SwitchEvent{From: d.current, To: to, At: at}
	d.current = to
	return ev
}

// clampInt bounds v to [lo, hi], with hi taking precedence when lo > hi.
func clampInt(v, lo, hi int) int {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}
