package sampler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/signstream-labs/signstream/internal/config"
	"github.com/signstream-labs/signstream/internal/protocol"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []publishedMsg
}

type publishedMsg struct {
	subject string
	data    []byte
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, publishedMsg{subject: subject, data: append([]byte(nil), data...)})
	return nil
}

func (p *recordingPublisher) observations(t *testing.T) []protocol.Observation {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []protocol.Observation
	for _, m := range p.messages {
		if m.subject != protocol.SubjectObservation {
			continue
		}
		var obs protocol.Observation
		if err := json.Unmarshal(m.data, &obs); err != nil {
			t.Fatalf("decode observation: %v", err)
		}
		out = append(out, obs)
	}
	return out
}

type stubSource struct {
	err error
}

func (s stubSource) Capture(_ context.Context, sessionID string, sequence int) (protocol.Frame, error) {
	if s.err != nil {
		return protocol.Frame{}, s.err
	}
	return protocol.Frame{SessionID: sessionID, Sequence: sequence, JPEG: []byte{0xff, 0xd8}}, nil
}

// blockingClassifier holds every Classify call until released.
type blockingClassifier struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func newBlockingClassifier() *blockingClassifier {
	return &blockingClassifier{release: make(chan struct{})}
}

func (b *blockingClassifier) Classify(ctx context.Context, frame protocol.Frame) (protocol.Observation, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	select {
	case <-b.release:
	case <-ctx.Done():
		return protocol.Observation{}, ctx.Err()
	}
	return protocol.Observation{
		SessionID:  frame.SessionID,
		Sequence:   frame.Sequence,
		Label:      "Hello",
		Confidence: 90,
	}, nil
}

func (b *blockingClassifier) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(t *testing.T, source stubSource, classifier *blockingClassifier, pub *recordingPublisher) *Service {
	t.Helper()
	cfg := config.SamplerConfig{IntervalMS: 1500}
	svc := NewService(context.Background(), cfg, source, classifier, pub, newLogger())
	t.Cleanup(svc.Close)
	return svc
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (s *Service) isBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func TestBusyTickIsDropped(t *testing.T) {
	classifier := newBlockingClassifier()
	pub := &recordingPublisher{}
	svc := newTestService(t, stubSource{}, classifier, pub)

	if _, err := svc.Activate(); err != nil {
		t.Fatalf("activate: %v", err)
	}

	svc.tick()
	waitFor(t, "first request in flight", func() bool { return classifier.callCount() == 1 })

	// Second tick while busy must be dropped entirely, not queued.
	svc.tick()
	svc.tick()
	time.Sleep(20 * time.Millisecond)
	if got := classifier.callCount(); got != 1 {
		t.Fatalf("expected 1 outstanding request, got %d", got)
	}

	close(classifier.release)
	waitFor(t, "observation published", func() bool { return len(pub.observations(t)) == 1 })
	waitFor(t, "busy flag cleared", func() bool { return !svc.isBusy() })

	// A tick after completion issues a new request.
	svc.tick()
	waitFor(t, "second request issued", func() bool { return classifier.callCount() == 2 })
}

func TestInactiveTickDoesNothing(t *testing.T) {
	classifier := newBlockingClassifier()
	pub := &recordingPublisher{}
	svc := newTestService(t, stubSource{}, classifier, pub)

	svc.tick()
	time.Sleep(20 * time.Millisecond)
	if classifier.callCount() != 0 {
		t.Fatal("expected no request while inactive")
	}
}

func TestInFlightResultProcessedAfterDeactivate(t *testing.T) {
	classifier := newBlockingClassifier()
	pub := &recordingPublisher{}
	svc := newTestService(t, stubSource{}, classifier, pub)

	if _, err := svc.Activate(); err != nil {
		t.Fatalf("activate: %v", err)
	}
	svc.tick()
	waitFor(t, "request in flight", func() bool { return classifier.callCount() == 1 })

	svc.Deactivate()
	close(classifier.release)

	waitFor(t, "in-flight result still published", func() bool { return len(pub.observations(t)) == 1 })
	waitFor(t, "busy flag cleared", func() bool { return !svc.isBusy() })
}

func TestCaptureFailurePublishesSentinel(t *testing.T) {
	classifier := newBlockingClassifier()
	close(classifier.release)
	pub := &recordingPublisher{}
	svc := newTestService(t, stubSource{err: errors.New("device busy")}, classifier, pub)

	if _, err := svc.Activate(); err != nil {
		t.Fatalf("activate: %v", err)
	}
	svc.tick()

	waitFor(t, "sentinel published", func() bool { return len(pub.observations(t)) == 1 })
	obs := pub.observations(t)[0]
	if !obs.Sentinel() || obs.Confidence != 0 {
		t.Fatalf("expected sentinel observation, got %+v", obs)
	}
}

func TestActivateResetsSequenceAndPublishesState(t *testing.T) {
	classifier := newBlockingClassifier()
	close(classifier.release)
	pub := &recordingPublisher{}
	svc := newTestService(t, stubSource{}, classifier, pub)

	id, err := svc.Activate()
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if id == "" {
		t.Fatal("expected a session id")
	}

	pub.mu.Lock()
	var state protocol.SessionState
	found := false
	for _, m := range pub.messages {
		if m.subject == protocol.SubjectSessionState {
			if err := json.Unmarshal(m.data, &state); err != nil {
				pub.mu.Unlock()
				t.Fatalf("decode state: %v", err)
			}
			found = true
		}
	}
	pub.mu.Unlock()
	if !found || !state.Active || state.SessionID != id {
		t.Fatalf("expected active session state for %s, got %+v", id, state)
	}

	// Re-activating an active session keeps the same id.
	again, err := svc.Activate()
	if err != nil {
		t.Fatalf("re-activate: %v", err)
	}
	if again != id {
		t.Fatalf("expected same session id, got %s vs %s", again, id)
	}
}
