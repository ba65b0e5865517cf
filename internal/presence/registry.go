package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/signstream-labs/signstream/internal/config"
)

// NodeInfo describes one runtime or sensor process seen on the bus.
type NodeInfo struct {
	ID       string    `json:"id"`
	Role     string    `json:"role"`
	LastSeen time.Time `json:"last_seen"`
	Healthy  bool      `json:"healthy"`
}

type announceMessage struct {
	NodeID    string    `json:"node_id"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

type heartbeatMessage struct {
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Conn is the slice of the bus connection the registry needs.
type Conn interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subject string, data []byte) error
}

// Registry announces this process on the bus, heartbeats on an interval, and
// tracks liveness of every node it hears from. An external camera or display
// process can join the bus and show up in Snapshot without any extra wiring.
type Registry struct {
	cfg       config.PresenceConfig
	log       *slog.Logger
	conn      Conn
	mu        sync.RWMutex
	nodes     map[string]*NodeInfo
	heartbeat *time.Ticker
	cancel    context.CancelFunc
	subs      []*nats.Subscription
	meter     metric.Meter
}

func NewRegistry(ctx context.Context, cfg config.PresenceConfig, conn Conn, log *slog.Logger) (*Registry, error) {
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		cfg:    cfg,
		log:    log.With(slog.String("component", "presence")),
		conn:   conn,
		nodes:  make(map[string]*NodeInfo),
		meter:  otel.Meter("github.com/signstream-labs/signstream/runtime"),
		cancel: cancel,
	}

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	if err := r.subscribe(); err != nil {
		r.cancel()
		return nil, err
	}

	r.heartbeat = time.NewTicker(time.Duration(cfg.HeartbeatInterval) * time.Millisecond)
	go r.runHeartbeat(ctx)
	go r.monitorHealth(ctx)

	if err := r.announce(); err != nil {
		r.log.Warn("failed to announce node", slog.String("error", err.Error()))
	}

	return r, nil
}

func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.heartbeat != nil {
		r.heartbeat.Stop()
	}
	for _, sub := range r.subs {
		_ = sub.Drain()
	}
}

func (r *Registry) subscribe() error {
	announceSub, err := r.conn.Subscribe("ctrl.node.announce", r.handleAnnounce)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	r.subs = append(r.subs, announceSub)

	heartbeatSub, err := r.conn.Subscribe("ctrl.node.heartbeat.*", r.handleHeartbeat)
	if err != nil {
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	r.subs = append(r.subs, heartbeatSub)

	return nil
}

func (r *Registry) runHeartbeat(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.heartbeat.C:
			if err := r.publishHeartbeat(); err != nil {
				r.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Registry) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evaluateHealth()
		}
	}
}

func (r *Registry) announce() error {
	msg := announceMessage{
		NodeID:    r.cfg.ID,
		Role:      r.cfg.Role,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := r.conn.Publish("ctrl.node.announce", payload); err != nil {
		return err
	}
	r.updateNode(msg.NodeID, msg.Role, msg.Timestamp)
	return nil
}

func (r *Registry) publishHeartbeat() error {
	msg := heartbeatMessage{
		NodeID:    r.cfg.ID,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("ctrl.node.heartbeat.%s", r.cfg.ID)
	return r.conn.Publish(subject, payload)
}

func (r *Registry) handleAnnounce(msg *nats.Msg) {
	var announcement announceMessage
	if err := json.Unmarshal(msg.Data, &announcement); err != nil {
		r.log.Warn("invalid announce message", slog.String("error", err.Error()))
		return
	}
	if announcement.Timestamp.IsZero() {
		announcement.Timestamp = time.Now().UTC()
	}
	r.updateNode(announcement.NodeID, announcement.Role, announcement.Timestamp)
}

func (r *Registry) handleHeartbeat(msg *nats.Msg) {
	var hb heartbeatMessage
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		r.log.Warn("invalid heartbeat message", slog.String("error", err.Error()))
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now().UTC()
	}
	r.updateNode(hb.NodeID, "", hb.Timestamp)
}

func (r *Registry) updateNode(nodeID, role string, timestamp time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[nodeID]
	if !ok {
		node = &NodeInfo{ID: nodeID}
		r.nodes[nodeID] = node
	}
	if role != "" {
		node.Role = role
	}
	node.LastSeen = timestamp
	node.Healthy = true
}

func (r *Registry) evaluateHealth() {
	r.mu.Lock()
	defer r.mu.Unlock()

	timeout := time.Duration(r.cfg.HeartbeatTimeout) * time.Millisecond
	now := time.Now()
	for _, node := range r.nodes {
		if now.Sub(node.LastSeen) > timeout {
			node.Healthy = false
		}
	}
}

func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, ok := r.nodes[r.cfg.ID]
	if !ok {
		return false
	}
	return node.Healthy
}

// Snapshot returns a copy of every known node, for the status endpoint.
func (r *Registry) Snapshot() []NodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]NodeInfo, 0, len(r.nodes))
	for _, node := range r.nodes {
		results = append(results, *node)
	}
	return results
}

func (r *Registry) initMetrics() error {
	if r.meter == nil {
		return nil
	}
	nodeGauge, err := r.meter.Int64ObservableGauge("signstream.presence.nodes", metric.WithDescription("Number of known nodes"))
	if err != nil {
		return err
	}
	healthyGauge, err := r.meter.Int64ObservableGauge("signstream.presence.healthy", metric.WithDescription("Number of healthy nodes"))
	if err != nil {
		return err
	}
	_, err = r.meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		nodes, healthy := r.snapshotCounts()
		obs.ObserveInt64(nodeGauge, nodes)
		obs.ObserveInt64(healthyGauge, healthy)
		return nil
	}, nodeGauge, healthyGauge)
	return err
}

func (r *Registry) snapshotCounts() (int64, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var nodes int64
	var healthy int64
	for _, node := range r.nodes {
		nodes++
		if node.Healthy {
			healthy++
		}
	}
	return nodes, healthy
}
