package transcript

import "github.com/signstream-labs/signstream/internal/protocol"

// Builder turns the observation stream into transcript entries. Its only
// state is the immediately preceding accepted label: a repeated gesture is
// collapsed into one entry, but the same sign separated by a different one is
// accepted again.
type Builder struct {
	threshold int
	last      string
}

func NewBuilder(threshold int) *Builder {
	return &Builder{threshold: threshold}
}

// Accept reports whether the observation should be appended to the
// transcript: not the sentinel, confidence strictly above the threshold, and
// different from the last accepted label.
func (b *Builder) Accept(obs protocol.Observation) bool {
	if obs.Sentinel() {
		return false
	}
	if obs.Confidence <= b.threshold {
		return false
	}
	if obs.Label == b.last {
		return false
	}
	b.last = obs.Label
	return true
}

// Reset clears the debounce state for a new session.
func (b *Builder) Reset() {
	b.last = ""
}
