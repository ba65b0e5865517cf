package camera

import (
	"bytes"
	"context"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/signstream-labs/signstream/internal/config"
)

func TestMockSourceCapture(t *testing.T) {
	src := NewMockSource(64, 48)
	frame, err := src.Capture(context.Background(), "session-1", 3)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if frame.SessionID != "session-1" || frame.Sequence != 3 {
		t.Fatalf("unexpected frame identity: %+v", frame)
	}
	img, err := jpeg.Decode(bytes.NewReader(frame.JPEG))
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 48 {
		t.Fatalf("unexpected dimensions: %v", img.Bounds())
	}
}

func TestHTTPSourceCapture(t *testing.T) {
	payload := []byte("not-really-a-jpeg")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	src := NewHTTPSource(config.CameraConfig{SnapshotURL: server.URL, Width: 640, Height: 480})
	frame, err := src.Capture(context.Background(), "session-1", 0)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !bytes.Equal(frame.JPEG, payload) {
		t.Fatalf("unexpected payload: %q", frame.JPEG)
	}
}

func TestHTTPSourceErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	src := NewHTTPSource(config.CameraConfig{SnapshotURL: server.URL, Width: 640, Height: 480})
	if _, err := src.Capture(context.Background(), "session-1", 0); err == nil {
		t.Fatal("expected error for forbidden status")
	}
}
