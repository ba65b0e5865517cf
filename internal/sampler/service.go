package sampler

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/signstream-labs/signstream/internal/camera"
	"github.com/signstream-labs/signstream/internal/config"
	"github.com/signstream-labs/signstream/internal/protocol"
	"github.com/signstream-labs/signstream/internal/vision"
)

// requestTimeout bounds one capture-and-classify round trip.
const requestTimeout = 45 * time.Second

// probeTimeout bounds the startup camera probe.
const probeTimeout = 10 * time.Second

// Publisher is the slice of the bus connection the sampler needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Service drives the fixed-period capture loop. While a session is active it
// samples one frame per tick and classifies it; a tick that finds a request
// still in flight is dropped outright, never queued, so at most one inference
// request is outstanding at any time.
type Service struct {
	cfg        config.SamplerConfig
	pub        Publisher
	source     camera.Source
	classifier vision.Classifier
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	mu        sync.Mutex
	busy      bool
	active    bool
	sessionID string
	sequence  int
	cameraErr error

	tracer      trace.Tracer
	tickCounter metric.Int64Counter
	skipCounter metric.Int64Counter
}

func NewService(parent context.Context, cfg config.SamplerConfig, source camera.Source, classifier vision.Classifier, pub Publisher, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:        cfg,
		pub:        pub,
		source:     source,
		classifier: classifier,
		logger:     logger.With(slog.String("component", "sampler")),
		ctx:        ctx,
		cancel:     cancel,
		tracer:     otel.Tracer("github.com/signstream-labs/signstream/sampler"),
	}
	if err := s.initMetrics(); err != nil {
		s.logger.Warn("failed to initialize metrics", slogError(err))
	}
	return s
}

func (s *Service) initMetrics() error {
	meter := otel.Meter("github.com/signstream-labs/signstream/sampler")
	ticks, err := meter.Int64Counter("signstream.sampler.ticks",
		metric.WithDescription("Ticks that issued a capture-and-classify request"))
	if err != nil {
		return err
	}
	skipped, err := meter.Int64Counter("signstream.sampler.skipped_busy",
		metric.WithDescription("Ticks dropped because a request was still in flight"))
	if err != nil {
		return err
	}
	s.tickCounter = ticks
	s.skipCounter = skipped
	return nil
}

// Start probes the camera once and, on success, launches the capture loop.
// A failed probe leaves the service in a persistent degraded state: the loop
// never starts and the error is reported through CameraErr and Healthy.
func (s *Service) Start() error {
	probeCtx, cancel := context.WithTimeout(s.ctx, probeTimeout)
	defer cancel()
	if _, err := s.source.Capture(probeCtx, "probe", 0); err != nil {
		s.mu.Lock()
		s.cameraErr = err
		s.mu.Unlock()
		s.logger.Error("camera unavailable, capture disabled", slogError(err))
		return nil
	}

	if s.cfg.Autostart {
		if _, err := s.Activate(); err != nil {
			s.logger.Warn("autostart activation failed", slogError(err))
		}
	}

	s.wg.Add(1)
	go s.run()
	return nil
}

func (s *Service) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Duration(s.cfg.IntervalMS) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick issues one capture-and-classify round trip unless the session is
// inactive or the previous request is still outstanding. The busy flag is the
// only concurrency control in the pipeline; it bounds in-flight requests to
// one by dropping ticks, trading latency for cost control.
func (s *Service) tick() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	if s.busy {
		s.mu.Unlock()
		if s.skipCounter != nil {
			s.skipCounter.Add(s.ctx, 1)
		}
		return
	}
	s.busy = true
	sessionID := s.sessionID
	sequence := s.sequence
	s.sequence++
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// The flag must clear on every path, success or failure.
		defer func() {
			s.mu.Lock()
			s.busy = false
			s.mu.Unlock()
		}()
		s.sample(sessionID, sequence)
	}()
}

func (s *Service) sample(sessionID string, sequence int) {
	ctx, cancel := context.WithTimeout(s.ctx, requestTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "sampler.sample",
		trace.WithAttributes(attribute.String("session.id", sessionID), attribute.Int("frame.sequence", sequence)))
	defer span.End()
	if s.tickCounter != nil {
		s.tickCounter.Add(ctx, 1)
	}

	frame, err := s.source.Capture(ctx, sessionID, sequence)
	var obs protocol.Observation
	if err != nil {
		s.logger.Warn("frame capture failed", slogError(err))
		obs = protocol.SentinelObservation(sessionID, sequence, time.Now().UTC())
	} else {
		obs = vision.Recognize(ctx, s.classifier, frame)
	}
	s.publishObservation(obs)
}

func (s *Service) publishObservation(obs protocol.Observation) {
	data, err := json.Marshal(obs)
	if err != nil {
		s.logger.Warn("failed to marshal observation", slogError(err))
		return
	}
	if err := s.pub.Publish(protocol.SubjectObservation, data); err != nil {
		s.logger.Warn("failed to publish observation", slogError(err))
	}
}

// Activate starts a fresh session. The inactive-to-active transition issues a
// new session ID and broadcasts a reset so transcript and history state start
// empty.
func (s *Service) Activate() (string, error) {
	s.mu.Lock()
	if s.cameraErr != nil {
		err := s.cameraErr
		s.mu.Unlock()
		return "", err
	}
	if s.active {
		id := s.sessionID
		s.mu.Unlock()
		return id, nil
	}
	id := uuid.NewString()
	s.sessionID = id
	s.sequence = 0
	s.active = true
	s.mu.Unlock()

	s.logger.Info("session activated", slog.String("session_id", id))
	s.publishState(id, true)
	return id, nil
}

// Deactivate stops sampling. An in-flight request is not cancelled; its
// result is still processed and the busy flag clears normally.
func (s *Service) Deactivate() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	id := s.sessionID
	s.mu.Unlock()

	s.logger.Info("session deactivated", slog.String("session_id", id))
	s.publishState(id, false)
}

func (s *Service) publishState(sessionID string, active bool) {
	state := protocol.SessionState{
		SessionID: sessionID,
		Active:    active,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(state)
	if err != nil {
		s.logger.Warn("failed to marshal session state", slogError(err))
		return
	}
	if err := s.pub.Publish(protocol.SubjectSessionState, data); err != nil {
		s.logger.Warn("failed to publish session state", slogError(err))
	}
}

func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// CameraErr reports the persistent camera failure recorded at startup, if any.
func (s *Service) CameraErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cameraErr
}

func (s *Service) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cameraErr == nil
}

func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
