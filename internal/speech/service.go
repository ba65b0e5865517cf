package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/nats-io/nats.go"

	"github.com/signstream-labs/signstream/internal/config"
	"github.com/signstream-labs/signstream/internal/protocol"
)

// utteranceTimeout bounds one synthesize-and-play round trip.
const utteranceTimeout = 45 * time.Second

// Conn is the slice of the bus connection the service needs.
type Conn interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subject string, data []byte) error
}

// Service voices accepted transcript entries. A new request cancels the
// in-flight utterance before speaking; muting gates synthesis without
// touching transcript or history state.
type Service struct {
	cfg    config.SpeechConfig
	conn   Conn
	synth  Synthesizer
	player []string
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sub    *nats.Subscription

	muted atomic.Bool

	mu      sync.Mutex
	current context.CancelFunc
}

func NewService(parent context.Context, cfg config.SpeechConfig, conn Conn, synth Synthesizer, logger *slog.Logger) (*Service, error) {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:    cfg,
		conn:   conn,
		synth:  synth,
		logger: logger.With(slog.String("component", "speech")),
		ctx:    ctx,
		cancel: cancel,
	}
	s.muted.Store(cfg.Muted)

	if cfg.PlayerCommand != "" {
		parser := shellwords.NewParser()
		args, err := parser.Parse(cfg.PlayerCommand)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("parse player command: %w", err)
		}
		s.player = args
	}
	return s, nil
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	if s.cfg.SpoolDir != "" {
		if err := os.MkdirAll(s.cfg.SpoolDir, 0o755); err != nil {
			return fmt.Errorf("create speech spool dir: %w", err)
		}
	}
	sub, err := s.conn.Subscribe(protocol.SubjectSpeechRequest, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.sub != nil }

// SetMuted toggles the output gate. Muting drops requests before synthesis;
// it has no effect on anything upstream.
func (s *Service) SetMuted(muted bool) {
	s.muted.Store(muted)
}

func (s *Service) Muted() bool {
	return s.muted.Load()
}

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.SpeechRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode speech request", slogError(err))
		return
	}
	if s.muted.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, utteranceTimeout)

	s.mu.Lock()
	if s.current != nil {
		// Cancel-previous: a fresh label preempts whatever is still being
		// spoken.
		s.current()
	}
	s.current = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.speak(ctx, req)
	}()
}

func (s *Service) speak(ctx context.Context, req protocol.SpeechRequest) {
	chunks, errs := s.synth.Synthesize(ctx, SynthRequest{SessionID: req.SessionID, Text: req.Text, Voice: req.Voice})

	var pcm []byte
	sampleRate := s.cfg.SampleRate
	channels := s.cfg.Channels
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if chunk.SampleRate > 0 {
				sampleRate = chunk.SampleRate
			}
			if chunk.Channels > 0 {
				channels = chunk.Channels
			}
			pcm = append(pcm, chunk.PCM...)
		case err, ok := <-errs:
			if ok && err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("speech synthesis error", slogError(err))
				return
			}
			errs = nil
		case <-ctx.Done():
			return
		}
		if chunks == nil && errs == nil {
			break
		}
	}
	if len(pcm) == 0 || ctx.Err() != nil {
		return
	}

	path := filepath.Join(s.cfg.SpoolDir, fmt.Sprintf("utterance_%d.wav", time.Now().UnixNano()))
	if err := writeWAV(path, pcm, sampleRate, channels); err != nil {
		s.logger.Warn("failed to spool utterance", slogError(err))
		return
	}
	defer os.Remove(path)

	if len(s.player) > 0 {
		base := s.player[0]
		args := append(append([]string{}, s.player[1:]...), path)
		if err := exec.CommandContext(ctx, base, args...).Run(); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("player command failed", slogError(err))
			return
		}
	}

	s.publishStatus(req)
}

func (s *Service) publishStatus(req protocol.SpeechRequest) {
	status := protocol.SpeechStatus{
		SessionID: req.SessionID,
		Text:      req.Text,
		Spoken:    true,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(status)
	if err != nil {
		s.logger.Warn("failed to marshal speech status", slogError(err))
		return
	}
	if err := s.conn.Publish(protocol.SubjectSpeechStatus, data); err != nil {
		s.logger.Warn("failed to publish speech status", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
