// Package watch keeps cached wallet activity coherent with live node
// activity. It holds a WebSocket subscription to the node's account
// activity feed and invalidates the affected wallet's cache entries
// whenever an event arrives, so the next analysis refetches.
package watch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Invalidator is the subset of the aggregator the watcher needs.
type Invalidator interface {
	InvalidateWallet(ctx context.Context, address string) int
}

// activityMessage is one feed message from the node.
type activityMessage struct {
	Address   string `json:"address"`
	TokenType string `json:"tokenType"`
	TxRef     string `json:"txRef"`
}

// Config holds watcher tunables.
type Config struct {
	WSURL             string
	ReconnectInterval time.Duration
	ReadTimeout       time.Duration
	PingInterval      time.Duration
}

// Watcher maintains the feed connection and applies invalidations.
type Watcher struct {
	cfg    Config
	target Invalidator
	logger zerolog.Logger
}

// New creates a Watcher. Run must be called to start it.
func New(cfg Config, target Invalidator, logger zerolog.Logger) *Watcher {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = cfg.ReadTimeout * 9 / 10
	}
	return &Watcher{cfg: cfg, target: target, logger: logger}
}

// Run connects and processes the feed until ctx is canceled,
// reconnecting after connection loss.
func (w *Watcher) Run(ctx context.Context) {
	for {
		if err := w.runOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn().Err(err).Msg("activity feed disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.ReconnectInterval):
		}
	}
}

// runOnce holds one connection until it fails or ctx is canceled.
func (w *Watcher) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.cfg.WSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	w.logger.Info().Str("url", w.cfg.WSURL).Msg("activity feed connected")

	conn.SetReadDeadline(time.Now().Add(w.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(w.cfg.ReadTimeout))
		return nil
	})

	// Close the connection when ctx is canceled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go w.pingLoop(ctx, conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(w.cfg.ReadTimeout))
		w.handleMessage(ctx, data)
	}
}

func (w *Watcher) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (w *Watcher) handleMessage(ctx context.Context, data []byte) {
	var msg activityMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		w.logger.Debug().Err(err).Msg("unparseable feed message dropped")
		return
	}
	if msg.Address == "" {
		return
	}

	removed := w.target.InvalidateWallet(ctx, msg.Address)
	w.logger.Debug().
		Str("address", msg.Address).
		Str("txRef", msg.TxRef).
		Int("removed", removed).
		Msg("cache invalidated from activity feed")
}
