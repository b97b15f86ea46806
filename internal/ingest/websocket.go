package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/polyinsider/scorer/internal/store"
)

// Reconnection constants
const (
	InitialBackoff = 1 * time.Second
	MaxBackoff     = 60 * time.Second
	BackoffFactor  = 2.0
	JitterPercent  = 0.2

	// Heartbeat constants
	HeartbeatTimeout = 60 * time.Second
	PongTimeout      = 10 * time.Second

	// Write timeout
	WriteTimeout = 10 * time.Second
)

// Subscription selects a topic/type pair on the activity feed.
type Subscription struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
}

// SubscriptionMessage represents a subscription request.
type SubscriptionMessage struct {
	Action        string         `json:"action"`
	Subscriptions []Subscription `json:"subscriptions"`
}

// NewSubscriptionMessage creates the subscription for live trades.
func NewSubscriptionMessage() *SubscriptionMessage {
	return &SubscriptionMessage{
		Action: "subscribe",
		Subscriptions: []Subscription{
			{Topic: "activity", Type: "trades"},
		},
	}
}

// ActivityListener streams live trades from the Polymarket activity feed.
type ActivityListener struct {
	url       string
	tradeChan chan<- store.Trade
	recorder  FeedRecorder
	conn      *websocket.Conn
	connMu    sync.Mutex
	backoff   time.Duration
	lastMsg   time.Time
	lastMsgMu sync.RWMutex
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewActivityListener creates a new WebSocket listener.
func NewActivityListener(url string, tradeChan chan<- store.Trade) *ActivityListener {
	return &ActivityListener{
		url:       url,
		tradeChan: tradeChan,
		backoff:   InitialBackoff,
		stopChan:  make(chan struct{}),
	}
}

// SetRecorder sets an optional feed counter.
func (l *ActivityListener) SetRecorder(r FeedRecorder) {
	l.recorder = r
}

// Start begins the WebSocket listener with automatic reconnection.
func (l *ActivityListener) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.runLoop(ctx)

	l.wg.Add(1)
	go l.heartbeatMonitor(ctx)
}

// Stop gracefully shuts down the listener.
func (l *ActivityListener) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.closeConnection()
	l.wg.Wait()
}

// runLoop handles connection, reading, and reconnection.
func (l *ActivityListener) runLoop(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ws_loop_stopping", "reason", "context cancelled")
			return
		case <-l.stopChan:
			slog.Info("ws_loop_stopping", "reason", "stop signal")
			return
		default:
		}

		if err := l.connect(ctx); err != nil {
			slog.Error("ws_connect_failed", "error", err, "backoff", l.backoff)
			l.waitBackoff(ctx)
			continue
		}

		if err := l.readLoop(ctx); err != nil {
			slog.Warn("ws_read_error", "error", err)
		}

		l.closeConnection()

		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		default:
			l.waitBackoff(ctx)
		}
	}
}

// connect establishes the WebSocket connection and subscribes to trades.
func (l *ActivityListener) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", "https://polymarket.com")

	conn, resp, err := dialer.DialContext(ctx, l.url, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()

	// Reset backoff on successful connection
	l.backoff = InitialBackoff

	slog.Info("ws_connected", "endpoint", l.url)

	if err := l.subscribe(); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	l.updateLastMsg()
	return nil
}

// subscribe sends the subscription message for live trades.
func (l *ActivityListener) subscribe() error {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	l.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := l.conn.WriteJSON(NewSubscriptionMessage()); err != nil {
		return fmt.Errorf("failed to send subscribe message: %w", err)
	}

	slog.Info("ws_subscribed", "topic", "activity", "type", "trades")
	return nil
}

// readLoop reads messages from the WebSocket.
func (l *ActivityListener) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopChan:
			return nil
		default:
		}

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()

		if conn == nil {
			return fmt.Errorf("connection is nil")
		}

		conn.SetReadDeadline(time.Now().Add(HeartbeatTimeout + PongTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		l.updateLastMsg()
		l.handleMessage(message)
	}
}

// handleMessage parses a message and dispatches trades.
func (l *ActivityListener) handleMessage(data []byte) {
	trades, msgType, err := ParseActivityMessage(data)
	if err != nil {
		slog.Debug("ws_parse_error", "error", err, "raw", truncate(string(data), 256))
		return
	}

	if len(trades) == 0 {
		if msgType != "" {
			slog.Debug("ws_message", "type", msgType)
		}
		return
	}

	for _, trade := range trades {
		select {
		case l.tradeChan <- trade:
			if l.recorder != nil {
				l.recorder.RecordFeedTrade("websocket")
			}
			slog.Debug("trade_received",
				"market", truncate(trade.MarketID, 16),
				"wallet", truncate(trade.Wallet, 10),
				"size", trade.Size,
				"price", trade.Price,
				"notional", trade.Notional(),
			)
		default:
			slog.Warn("trade_channel_full", "dropped_trade", trade.ID)
		}
	}
}

// heartbeatMonitor checks for connection health.
func (l *ActivityListener) heartbeatMonitor(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.checkHeartbeat()
		}
	}
}

// checkHeartbeat pings the server when the feed has gone quiet.
func (l *ActivityListener) checkHeartbeat() {
	l.lastMsgMu.RLock()
	lastMsg := l.lastMsg
	l.lastMsgMu.RUnlock()

	if lastMsg.IsZero() {
		return
	}

	elapsed := time.Since(lastMsg)
	if elapsed <= HeartbeatTimeout {
		return
	}

	slog.Warn("ws_heartbeat_timeout", "elapsed", elapsed)

	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn == nil {
		return
	}

	l.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		slog.Warn("ws_ping_failed", "error", err)
		l.conn.Close()
		l.conn = nil
	}
}

// updateLastMsg updates the last message timestamp.
func (l *ActivityListener) updateLastMsg() {
	l.lastMsgMu.Lock()
	l.lastMsg = time.Now()
	l.lastMsgMu.Unlock()
}

// closeConnection safely closes the WebSocket connection.
func (l *ActivityListener) closeConnection() {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
		slog.Info("ws_disconnected")
	}
}

// waitBackoff waits for the backoff duration with jitter.
func (l *ActivityListener) waitBackoff(ctx context.Context) {
	jitter := time.Duration(float64(l.backoff) * JitterPercent * (rand.Float64()*2 - 1))
	wait := l.backoff + jitter

	slog.Debug("ws_waiting_backoff", "duration", wait)

	select {
	case <-ctx.Done():
	case <-l.stopChan:
	case <-time.After(wait):
	}

	l.backoff = time.Duration(float64(l.backoff) * BackoffFactor)
	if l.backoff > MaxBackoff {
		l.backoff = MaxBackoff
	}
}
