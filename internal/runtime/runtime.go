package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signstream-labs/signstream/internal/bus"
	"github.com/signstream-labs/signstream/internal/camera"
	"github.com/signstream-labs/signstream/internal/config"
	"github.com/signstream-labs/signstream/internal/natsserver"
	"github.com/signstream-labs/signstream/internal/presence"
	"github.com/signstream-labs/signstream/internal/sampler"
	"github.com/signstream-labs/signstream/internal/speech"
	"github.com/signstream-labs/signstream/internal/store"
	"github.com/signstream-labs/signstream/internal/transcript"
	"github.com/signstream-labs/signstream/internal/ui"
	"github.com/signstream-labs/signstream/internal/vision"
)

// Runtime owns the capture pipeline: embedded bus, camera sampler, sign
// recognition, transcript assembly, speech output, and the HTTP surface.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings every service up in dependency order and blocks until ctx is
// cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	var embedded *natsserver.EmbeddedServer
	if r.cfg.Bus.Embedded {
		embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		defer embedded.Shutdown()
	}

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()

	timeline, err := store.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer timeline.Close()

	registry, err := presence.NewRegistry(ctx, r.cfg.Presence, busClient.Conn(), r.logger)
	if err != nil {
		return fmt.Errorf("failed to start presence registry: %w", err)
	}
	defer registry.Close()

	source, err := camera.New(r.cfg.Camera)
	if err != nil {
		return fmt.Errorf("failed to build camera source: %w", err)
	}

	classifier, err := vision.New(r.cfg.Vision)
	if err != nil {
		return fmt.Errorf("failed to build vision classifier: %w", err)
	}

	samplerSvc := sampler.NewService(ctx, r.cfg.Sampler, source, classifier, busClient.Conn(), r.logger)
	if err := samplerSvc.Start(); err != nil {
		return fmt.Errorf("failed to start sampler: %w", err)
	}
	defer samplerSvc.Close()

	transcriptSvc := transcript.NewService(ctx, r.cfg.Transcript, busClient.Conn(), timeline, r.logger)
	if err := transcriptSvc.Start(); err != nil {
		return fmt.Errorf("failed to start transcript service: %w", err)
	}
	defer transcriptSvc.Close()

	var speechSvc *speech.Service
	if r.cfg.Speech.Enabled {
		synth, err := speech.NewSynth(r.cfg.Speech)
		if err != nil {
			return fmt.Errorf("failed to build speech backend: %w", err)
		}
		speechSvc, err = speech.NewService(ctx, r.cfg.Speech, busClient.Conn(), synth, r.logger)
		if err != nil {
			return fmt.Errorf("failed to build speech service: %w", err)
		}
		if err := speechSvc.Start(); err != nil {
			return fmt.Errorf("failed to start speech service: %w", err)
		}
		defer speechSvc.Close()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	if r.cfg.UI.Enabled {
		var muter ui.Muter = noopMuter{}
		if speechSvc != nil {
			muter = speechSvc
		}
		uiSvc := ui.NewService(busClient.Conn(), samplerSvc, muter, transcriptSvc, registry, r.logger)
		if err := uiSvc.Start(); err != nil {
			return fmt.Errorf("failed to start ui service: %w", err)
		}
		defer uiSvc.Close()
		uiSvc.Register(mux)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("camera_mode", r.cfg.Camera.Mode),
		slog.String("vision_mode", r.cfg.Vision.Mode),
		slog.Bool("speech", r.cfg.Speech.Enabled),
	)
	if err := samplerSvc.CameraErr(); err != nil {
		r.logger.Warn("camera unavailable, capture disabled", slog.String("error", err.Error()))
	}

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

// noopMuter stands in when speech output is disabled.
type noopMuter struct{}

func (noopMuter) SetMuted(bool) {}
func (noopMuter) Muted() bool   { return true }
