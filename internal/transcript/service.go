package transcript

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/signstream-labs/signstream/internal/config"
	"github.com/signstream-labs/signstream/internal/protocol"
)

// Conn is the slice of the bus connection the service needs.
type Conn interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subject string, data []byte) error
}

// Recorder persists sessions and observations; the SQLite store implements
// it. A nil recorder disables persistence.
type Recorder interface {
	AppendSession(ctx context.Context, sessionID string, startedAt time.Time) error
	AppendObservation(ctx context.Context, obs protocol.Observation, accepted bool) error
}

// Service consumes observations from the bus, feeds the confidence window
// with every reading, debounces accepted labels into the transcript, and
// requests speech output for each accepted entry.
type Service struct {
	cfg      config.TranscriptConfig
	conn     Conn
	recorder Recorder
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	subs     []*nats.Subscription

	mu        sync.Mutex
	builder   *Builder
	window    *Window
	entries   []protocol.TranscriptEntry
	sessionID string
}

func NewService(parent context.Context, cfg config.TranscriptConfig, conn Conn, recorder Recorder, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:      cfg,
		conn:     conn,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "transcript")),
		ctx:      ctx,
		cancel:   cancel,
		builder:  NewBuilder(cfg.ConfidenceThreshold),
		window:   NewWindow(cfg.HistorySize),
	}
}

func (s *Service) Start() error {
	obsSub, err := s.conn.Subscribe(protocol.SubjectObservation, s.handleObservation)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, obsSub)

	stateSub, err := s.conn.Subscribe(protocol.SubjectSessionState, s.handleSessionState)
	if err != nil {
		for _, sub := range s.subs {
			_ = sub.Drain()
		}
		return err
	}
	s.subs = append(s.subs, stateSub)
	return nil
}

func (s *Service) Close() {
	s.cancel()
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
}

func (s *Service) Healthy() bool {
	return len(s.subs) == 2
}

func (s *Service) handleObservation(msg *nats.Msg) {
	var obs protocol.Observation
	if err := json.Unmarshal(msg.Data, &obs); err != nil {
		s.logger.Warn("failed to decode observation", slogError(err))
		return
	}

	s.mu.Lock()
	// Every reading lands in the chart window, accepted or not.
	s.window.Append(Point{Label: obs.Label, Confidence: obs.Confidence})
	accepted := s.builder.Accept(obs)
	var entry protocol.TranscriptEntry
	if accepted {
		entry = protocol.TranscriptEntry{
			SessionID:  obs.SessionID,
			Position:   len(s.entries),
			Label:      obs.Label,
			Confidence: obs.Confidence,
			Timestamp:  obs.Timestamp,
		}
		s.entries = append(s.entries, entry)
	}
	s.mu.Unlock()

	s.record(obs, accepted)
	if accepted {
		s.publishAccepted(entry)
		s.requestSpeech(entry)
	}
}

func (s *Service) handleSessionState(msg *nats.Msg) {
	var state protocol.SessionState
	if err := json.Unmarshal(msg.Data, &state); err != nil {
		s.logger.Warn("failed to decode session state", slogError(err))
		return
	}
	if !state.Active {
		return
	}

	s.mu.Lock()
	s.builder.Reset()
	s.window.Reset()
	s.entries = nil
	s.sessionID = state.SessionID
	s.mu.Unlock()

	s.logger.Info("transcript reset for new session", slog.String("session_id", state.SessionID))

	if s.recorder != nil {
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		defer cancel()
		if err := s.recorder.AppendSession(ctx, state.SessionID, state.Timestamp); err != nil {
			s.logger.Warn("failed to record session", slogError(err))
		}
	}
}

func (s *Service) record(obs protocol.Observation, accepted bool) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := s.recorder.AppendObservation(ctx, obs, accepted); err != nil {
		s.logger.Warn("failed to record observation", slogError(err))
	}
}

func (s *Service) publishAccepted(entry protocol.TranscriptEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn("failed to marshal transcript entry", slogError(err))
		return
	}
	if err := s.conn.Publish(protocol.SubjectAccepted, data); err != nil {
		s.logger.Warn("failed to publish transcript entry", slogError(err))
	}
}

func (s *Service) requestSpeech(entry protocol.TranscriptEntry) {
	req := protocol.SpeechRequest{
		SessionID: entry.SessionID,
		Text:      entry.Label,
		Voice:     s.cfg.Voice,
	}
	data, err := json.Marshal(req)
	if err != nil {
		s.logger.Warn("failed to marshal speech request", slogError(err))
		return
	}
	if err := s.conn.Publish(protocol.SubjectSpeechRequest, data); err != nil {
		s.logger.Warn("failed to publish speech request", slogError(err))
	}
}

// Entries returns a copy of the transcript in insertion order.
func (s *Service) Entries() []protocol.TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.TranscriptEntry(nil), s.entries...)
}

// Sentence joins the transcript labels into the running sentence.
func (s *Service) Sentence() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	labels := make([]string, len(s.entries))
	for i, e := range s.entries {
		labels[i] = e.Label
	}
	return strings.Join(labels, " ")
}

// History returns a copy of the rolling confidence window.
func (s *Service) History() []Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Points()
}

// SessionID returns the session the transcript currently belongs to.
func (s *Service) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
