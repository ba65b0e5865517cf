package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/signstream-labs/signstream/internal/config"
	"github.com/signstream-labs/signstream/internal/protocol"
)

// maxSnapshotBytes bounds how much image data a misbehaving endpoint can
// hand us per capture.
const maxSnapshotBytes = 8 << 20

// httpSource polls an IP-camera style snapshot endpoint.
type httpSource struct {
	url    string
	width  int
	height int
	client *http.Client
}

func NewHTTPSource(cfg config.CameraConfig) Source {
	return &httpSource{
		url:    cfg.SnapshotURL,
		width:  cfg.Width,
		height: cfg.Height,
		client: http.DefaultClient,
	}
}

func (h *httpSource) Capture(ctx context.Context, sessionID string, sequence int) (protocol.Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return protocol.Frame{}, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return protocol.Frame{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return protocol.Frame{}, fmt.Errorf("snapshot endpoint returned status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return protocol.Frame{}, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return protocol.Frame{}, fmt.Errorf("snapshot endpoint returned empty body")
	}

	return protocol.Frame{
		SessionID:  sessionID,
		Sequence:   sequence,
		Width:      h.width,
		Height:     h.height,
		JPEG:       data,
		CapturedAt: time.Now().UTC(),
	}, nil
}
