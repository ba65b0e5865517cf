package ui

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/signstream-labs/signstream/internal/protocol"
	"github.com/signstream-labs/signstream/internal/transcript"
)

type fakeControl struct {
	active    bool
	cameraErr error
	sessionID string
}

func (f *fakeControl) Activate() (string, error) {
	if f.cameraErr != nil {
		return "", f.cameraErr
	}
	f.active = true
	return f.sessionID, nil
}

func (f *fakeControl) Deactivate()      { f.active = false }
func (f *fakeControl) Active() bool     { return f.active }
func (f *fakeControl) CameraErr() error { return f.cameraErr }

type fakeMuter struct {
	muted bool
}

func (f *fakeMuter) SetMuted(muted bool) { f.muted = muted }
func (f *fakeMuter) Muted() bool         { return f.muted }

type fakeTranscript struct {
	sessionID string
	sentence  string
}

func (f *fakeTranscript) SessionID() string { return f.sessionID }
func (f *fakeTranscript) Sentence() string  { return f.sentence }
func (f *fakeTranscript) Entries() []protocol.TranscriptEntry {
	return nil
}
func (f *fakeTranscript) History() []transcript.Point {
	return []transcript.Point{{Label: "Hello", Confidence: 92}}
}

type nopConn struct{}

func (nopConn) Subscribe(string, nats.MsgHandler) (*nats.Subscription, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(control *fakeControl, muter *fakeMuter, tr *fakeTranscript) *Service {
	return NewService(nopConn{}, control, muter, tr, nil, testLogger())
}

func TestSessionStartReturnsSessionID(t *testing.T) {
	control := &fakeControl{sessionID: "session-1"}
	svc := newTestService(control, &fakeMuter{}, &fakeTranscript{})

	req := httptest.NewRequest("POST", "/session/start", nil)
	rec := httptest.NewRecorder()
	svc.handleSessionStart(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["session_id"] != "session-1" {
		t.Fatalf("unexpected session_id: %v", payload["session_id"])
	}
	if !control.active {
		t.Fatal("expected session to be active")
	}
}

func TestSessionStartWithBrokenCamera(t *testing.T) {
	control := &fakeControl{cameraErr: errors.New("camera unavailable")}
	svc := newTestService(control, &fakeMuter{}, &fakeTranscript{})

	req := httptest.NewRequest("POST", "/session/start", nil)
	rec := httptest.NewRecorder()
	svc.handleSessionStart(rec, req)

	if rec.Code != 503 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestSessionStartRejectsGet(t *testing.T) {
	svc := newTestService(&fakeControl{}, &fakeMuter{}, &fakeTranscript{})

	req := httptest.NewRequest("GET", "/session/start", nil)
	rec := httptest.NewRecorder()
	svc.handleSessionStart(rec, req)

	if rec.Code != 405 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestSessionStopDeactivates(t *testing.T) {
	control := &fakeControl{active: true}
	svc := newTestService(control, &fakeMuter{}, &fakeTranscript{})

	req := httptest.NewRequest("POST", "/session/stop", nil)
	rec := httptest.NewRecorder()
	svc.handleSessionStop(rec, req)

	if rec.Code != 204 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if control.active {
		t.Fatal("expected session to be inactive")
	}
}

func TestMuteToggle(t *testing.T) {
	muter := &fakeMuter{}
	svc := newTestService(&fakeControl{}, muter, &fakeTranscript{})

	req := httptest.NewRequest("POST", "/speech/mute", strings.NewReader(`{"muted": true}`))
	rec := httptest.NewRecorder()
	svc.handleMute(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !muter.muted {
		t.Fatal("expected muted")
	}

	req = httptest.NewRequest("POST", "/speech/mute", strings.NewReader(`{"muted": false}`))
	rec = httptest.NewRecorder()
	svc.handleMute(rec, req)
	if muter.muted {
		t.Fatal("expected unmuted")
	}
}

func TestStatusReportsState(t *testing.T) {
	control := &fakeControl{active: true}
	svc := newTestService(control, &fakeMuter{muted: true}, &fakeTranscript{sessionID: "session-9", sentence: "Hello World"})

	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	svc.handleStatus(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["sentence"] != "Hello World" {
		t.Fatalf("unexpected sentence: %v", payload["sentence"])
	}
	if payload["active"] != true {
		t.Fatalf("unexpected active flag: %v", payload["active"])
	}
	if payload["muted"] != true {
		t.Fatalf("unexpected muted flag: %v", payload["muted"])
	}
	if payload["ws_clients"].(float64) != 0 {
		t.Fatalf("unexpected ws_clients: %v", payload["ws_clients"])
	}
}
