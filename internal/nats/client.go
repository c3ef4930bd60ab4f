package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/aiox-platform/agentmemory/internal/config"
)

// duplicateWindow is how long the stream remembers message ids.
const duplicateWindow = 2 * time.Minute

// Client owns the NATS connection used for memory events.
type Client struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *zap.Logger
}

// NewClient connects to NATS and creates or updates the AGENTMEMORY_EVENTS
// stream. The connection keeps retrying in the background, so a NATS outage
// after startup only costs events, never memory writes.
func NewClient(ctx context.Context, cfg config.NATSConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "nats"))

	nc, err := nats.Connect(cfg.URL,
		nats.Name("agentmemory"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("server", c.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Debug("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	c := &Client{conn: nc, js: js, logger: logger}
	if err := c.ensureStream(ctx, streamConfig(cfg)); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info("connected to nats", zap.String("url", cfg.URL))
	return c, nil
}

func streamConfig(cfg config.NATSConfig) jetstream.StreamConfig {
	maxAge := cfg.StreamMaxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	return jetstream.StreamConfig{
		Name:        StreamMemoryEvents,
		Description: "Memory store, delete and clear events",
		Subjects:    []string{SubjectMemoryAll},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      maxAge,
		Duplicates:  duplicateWindow,
	}
}

func (c *Client) ensureStream(ctx context.Context, cfg jetstream.StreamConfig) error {
	if _, err := c.js.CreateOrUpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("ensuring stream %s: %w", cfg.Name, err)
	}
	c.logger.Debug("stream ready", zap.String("stream", cfg.Name), zap.Duration("max_age", cfg.MaxAge))
	return nil
}

func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Healthy reports whether the connection is currently up.
func (c *Client) Healthy() bool {
	return c.conn.IsConnected()
}

// Close drains pending publishes and closes the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("draining nats connection", zap.Error(err))
	}
}
