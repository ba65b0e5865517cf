package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	"github.com/signstream-labs/signstream/internal/protocol"
)

type mockSource struct {
	width  int
	height int
	jpeg   []byte
}

// NewMockSource produces a fixed synthetic frame for development and tests.
func NewMockSource(width, height int) Source {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(255 * x / width),
				G: uint8(255 * y / height),
				B: 128,
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80})
	return &mockSource{width: width, height: height, jpeg: buf.Bytes()}
}

func (m *mockSource) Capture(ctx context.Context, sessionID string, sequence int) (protocol.Frame, error) {
	select {
	case <-ctx.Done():
		return protocol.Frame{}, ctx.Err()
	default:
	}
	return protocol.Frame{
		SessionID:  sessionID,
		Sequence:   sequence,
		Width:      m.width,
		Height:     m.height,
		JPEG:       append([]byte(nil), m.jpeg...),
		CapturedAt: time.Now().UTC(),
	}, nil
}
