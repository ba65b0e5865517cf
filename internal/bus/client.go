package bus

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/signstream-labs/signstream/internal/config"
)

// Client wraps the NATS connection shared by all pipeline services.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

func Connect(ctx context.Context, cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("signstream-runtime"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}

	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))

	return &Client{
		conn: conn,
		log:  log,
	}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

func (c *Client) Conn() *nats.Conn {
	return c.conn
}

func (c *Client) Logger() *slog.Logger {
	return c.log
}
