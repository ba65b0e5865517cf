package speech

import (
	"context"
	"fmt"

	"github.com/signstream-labs/signstream/internal/config"
)

// SynthRequest contains parameters to synthesize one utterance.
type SynthRequest struct {
	SessionID string
	Text      string
	Voice     string
}

// Chunk contains PCM data produced by a backend.
type Chunk struct {
	SessionID  string
	Sequence   int
	SampleRate int
	Channels   int
	PCM        []byte
	Final      bool
}

// Synthesizer is the contract for producing audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (<-chan Chunk, <-chan error)
}

// NewSynth builds the configured backend.
func NewSynth(cfg config.SpeechConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
	default:
		return nil, fmt.Errorf("unsupported speech mode %q", cfg.Mode)
	}
}
