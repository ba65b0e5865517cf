package camera

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/signstream-labs/signstream/internal/config"
	"github.com/signstream-labs/signstream/internal/protocol"
)

// execSource shells out to a snapshot command (ffmpeg, libcamera-still,
// fswebcam) that writes a single JPEG to stdout.
type execSource struct {
	cmd    []string
	width  int
	height int
	mu     sync.Mutex
}

func NewExecSource(cfg config.CameraConfig) (Source, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse camera command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("camera command is empty")
	}
	return &execSource{cmd: args, width: cfg.Width, height: cfg.Height}, nil
}

func (e *execSource) Capture(ctx context.Context, sessionID string, sequence int) (protocol.Frame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	command := exec.CommandContext(ctx, base, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return protocol.Frame{}, fmt.Errorf("camera command failed: %w: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return protocol.Frame{}, fmt.Errorf("camera command produced no image data")
	}

	return protocol.Frame{
		SessionID:  sessionID,
		Sequence:   sequence,
		Width:      e.width,
		Height:     e.height,
		JPEG:       stdout.Bytes(),
		CapturedAt: time.Now().UTC(),
	}, nil
}
