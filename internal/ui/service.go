package ui

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"github.com/signstream-labs/signstream/internal/presence"
	"github.com/signstream-labs/signstream/internal/protocol"
	"github.com/signstream-labs/signstream/internal/transcript"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

// Control drives the capture session.
type Control interface {
	Activate() (string, error)
	Deactivate()
	Active() bool
	CameraErr() error
}

// Muter gates speech output.
type Muter interface {
	SetMuted(muted bool)
	Muted() bool
}

// Transcript exposes the current sentence and recognition history.
type Transcript interface {
	SessionID() string
	Sentence() string
	Entries() []protocol.TranscriptEntry
	History() []transcript.Point
}

// Conn is the slice of the bus connection the UI needs.
type Conn interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Service relays bus traffic to websocket clients and exposes the control
// endpoints the display front end calls.
type Service struct {
	logger     *slog.Logger
	conn       Conn
	control    Control
	muter      Muter
	transcript Transcript
	registry   *presence.Registry

	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*websocket.Conn]*sync.Mutex
	subs     []*nats.Subscription
}

func NewService(conn Conn, control Control, muter Muter, tr Transcript, registry *presence.Registry, logger *slog.Logger) *Service {
	return &Service{
		logger:     logger.With(slog.String("component", "ui")),
		conn:       conn,
		control:    control,
		muter:      muter,
		transcript: tr,
		registry:   registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// Start subscribes to the bus subjects the front end renders.
func (s *Service) Start() error {
	for _, subject := range []string{
		protocol.SubjectObservation,
		protocol.SubjectAccepted,
		protocol.SubjectSessionState,
		protocol.SubjectSpeechStatus,
	} {
		sub, err := s.conn.Subscribe(subject, s.relay)
		if err != nil {
			return err
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

func (s *Service) Close() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]*sync.Mutex)
	s.mu.Unlock()
}

// Register mounts the UI routes on the runtime mux.
func (s *Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/session/start", s.handleSessionStart)
	mux.HandleFunc("/session/stop", s.handleSessionStop)
	mux.HandleFunc("/speech/mute", s.handleMute)
	mux.HandleFunc("/status", s.handleStatus)
}

func (s *Service) relay(msg *nats.Msg) {
	envelope := map[string]any{
		"type": msg.Subject,
		"data": json.RawMessage(msg.Data),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return
	}

	var stale []*websocket.Conn
	s.mu.Lock()
	for conn, writeMu := range s.clients {
		if err := s.writeMessage(conn, writeMu, websocket.TextMessage, payload); err != nil {
			stale = append(stale, conn)
		}
	}
	s.mu.Unlock()
	for _, conn := range stale {
		s.removeClient(conn)
	}
}

func (s *Service) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	writeMu := &sync.Mutex{}
	s.mu.Lock()
	s.clients[conn] = writeMu
	s.mu.Unlock()

	// New clients get the full state up front so they can render without
	// waiting for the next tick.
	snapshot := map[string]any{
		"type": "snapshot",
		"data": s.snapshot(),
	}
	if payload, err := json.Marshal(snapshot); err == nil {
		_ = s.writeMessage(conn, writeMu, websocket.TextMessage, payload)
	}

	go s.readLoop(conn, writeMu)
}

func (s *Service) readLoop(conn *websocket.Conn, writeMu *sync.Mutex) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := s.writeMessage(conn, writeMu, websocket.PingMessage, nil); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()
	defer close(done)
	defer s.removeClient(conn)

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var request map[string]any
		if err := json.Unmarshal(payload, &request); err != nil {
			continue
		}
		if request["type"] == "snapshot_request" {
			envelope := map[string]any{
				"type": "snapshot",
				"data": s.snapshot(),
			}
			if data, err := json.Marshal(envelope); err == nil {
				_ = s.writeMessage(conn, writeMu, websocket.TextMessage, data)
			}
		}
	}
}

func (s *Service) snapshot() map[string]any {
	return map[string]any{
		"session_id": s.transcript.SessionID(),
		"active":     s.control.Active(),
		"sentence":   s.transcript.Sentence(),
		"entries":    s.transcript.Entries(),
		"history":    s.transcript.History(),
		"muted":      s.muter.Muted(),
	}
}

func (s *Service) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessionID, err := s.control.Activate()
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"session_id": sessionID})
}

func (s *Service) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.control.Deactivate()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleMute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Muted bool `json:"muted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.muter.SetMuted(body.Muted)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"muted": s.muter.Muted()})
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"session_id": s.transcript.SessionID(),
		"active":     s.control.Active(),
		"sentence":   s.transcript.Sentence(),
		"history":    s.transcript.History(),
		"muted":      s.muter.Muted(),
		"ws_clients": s.clientCount(),
	}
	if err := s.control.CameraErr(); err != nil {
		payload["camera_error"] = err.Error()
	}
	if s.registry != nil {
		payload["nodes"] = s.registry.Snapshot()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Service) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Service) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Service) writeMessage(conn *websocket.Conn, writeMu *sync.Mutex, messageType int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}
