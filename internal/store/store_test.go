package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/signstream-labs/signstream/internal/config"
	"github.com/signstream-labs/signstream/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.StoreConfig{RetentionMode: "ephemeral"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	// Writes are silently dropped.
	if err := s.AppendObservation(context.Background(), protocol.Observation{SessionID: "x", Label: "Hello"}, true); err != nil {
		t.Fatalf("append observation: %v", err)
	}
	records, err := s.ListSessionObservations(context.Background(), "x", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if records != nil {
		t.Fatalf("expected no records in ephemeral mode, got %v", records)
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.StoreConfig{Path: filepath.Join(tmp, "signstream.db"), RetentionMode: "session"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	sessionID := "session-123"
	if err := s.AppendSession(context.Background(), sessionID, time.Now()); err != nil {
		t.Fatalf("append session: %v", err)
	}
	obs := protocol.Observation{
		SessionID:  sessionID,
		Sequence:   4,
		Label:      "Hello",
		Confidence: 85,
		Timestamp:  time.Now(),
	}
	if err := s.AppendObservation(context.Background(), obs, true); err != nil {
		t.Fatalf("append observation: %v", err)
	}
	if err := s.AppendObservation(context.Background(), protocol.SentinelObservation(sessionID, 5, time.Now()), false); err != nil {
		t.Fatalf("append sentinel: %v", err)
	}

	records, err := s.ListSessionObservations(context.Background(), sessionID, 10)
	if err != nil {
		t.Fatalf("list observations: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Label != "Hello" || !records[0].Accepted || records[0].Confidence != 85 {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[1].Label != protocol.SentinelLabel || records[1].Accepted {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
}

func TestSessionModeKeepsOnlyCurrentSession(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.StoreConfig{Path: filepath.Join(tmp, "signstream.db"), RetentionMode: "session"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.AppendSession(context.Background(), "first", time.Now()); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := s.AppendObservation(context.Background(), protocol.Observation{SessionID: "first", Label: "Hello", Confidence: 90}, true); err != nil {
		t.Fatalf("append observation: %v", err)
	}
	if err := s.AppendSession(context.Background(), "second", time.Now()); err != nil {
		t.Fatalf("append second session: %v", err)
	}

	records, err := s.ListSessionObservations(context.Background(), "first", 10)
	if err != nil {
		t.Fatalf("list observations: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected first session dropped, got %v", records)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.StoreConfig{Path: filepath.Join(tmp, "signstream.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return old }
	if err := s.AppendSession(context.Background(), "old-session", old); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := s.AppendObservation(context.Background(), protocol.Observation{SessionID: "old-session", Label: "Hi", Timestamp: old}, true); err != nil {
		t.Fatalf("append observation: %v", err)
	}

	now := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return now }
	if err := s.AppendSession(context.Background(), "new-session", now); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	records, err := s.ListSessionObservations(context.Background(), "old-session", 10)
	if err != nil {
		t.Fatalf("list observations: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected old session pruned, got %v", records)
	}
}
