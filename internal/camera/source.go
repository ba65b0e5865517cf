package camera

import (
	"context"
	"fmt"

	"github.com/signstream-labs/signstream/internal/config"
	"github.com/signstream-labs/signstream/internal/protocol"
)

// Source acquires a still frame from the live video source on demand.
type Source interface {
	Capture(ctx context.Context, sessionID string, sequence int) (protocol.Frame, error)
}

// New builds the configured capture backend.
func New(cfg config.CameraConfig) (Source, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSource(cfg.Width, cfg.Height), nil
	case "exec":
		return NewExecSource(cfg)
	case "http":
		return NewHTTPSource(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported camera mode %q", cfg.Mode)
	}
}
