package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/signstream-labs/signstream/internal/config"
	"github.com/signstream-labs/signstream/internal/protocol"
)

// Classifier sends one still frame to a model backend and returns the
// recognized sign with a 0-100 confidence score.
type Classifier interface {
	Classify(ctx context.Context, frame protocol.Frame) (protocol.Observation, error)
}

// New builds the configured vision backend.
func New(cfg config.VisionConfig) (Classifier, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockClassifier(), nil
	case "ollama":
		return NewOllamaClassifier(cfg), nil
	case "exec":
		return NewExecClassifier(cfg)
	default:
		return nil, fmt.Errorf("unsupported vision mode %q", cfg.Mode)
	}
}

// Recognize applies the swallow-and-sentinel policy around a backend call:
// any transport, parse, or service error collapses into the fixed "unclear"
// observation so callers never distinguish failure from an unsure model.
func Recognize(ctx context.Context, c Classifier, frame protocol.Frame) protocol.Observation {
	obs, err := c.Classify(ctx, frame)
	if err != nil || strings.TrimSpace(obs.Label) == "" {
		return protocol.SentinelObservation(frame.SessionID, frame.Sequence, time.Now().UTC())
	}
	if obs.Confidence < 0 {
		obs.Confidence = 0
	}
	if obs.Confidence > 100 {
		obs.Confidence = 100
	}
	obs.SessionID = frame.SessionID
	obs.Sequence = frame.Sequence
	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now().UTC()
	}
	return obs
}
