package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inkpress/coord/pkg/logger"
	"github.com/inkpress/coord/pkg/notifications"
)

// State of a Client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
)

// Handler receives every well-formed event.
type Handler func(ev notifications.Event)

// TokenSource returns a fresh connection token.
type TokenSource func(ctx context.Context) (string, error)

// Config tunes a Client. Zero values take the defaults.
type Config struct {
	URL                  string
	PingInterval         time.Duration // 30s
	ReconnectDelay       time.Duration // 2s
	MaxReconnectAttempts int           // 5
	HandshakeTimeout     time.Duration // 10s
}

// Client keeps one WebSocket connection to the realtime endpoint.
//
// After a drop it retries every ReconnectDelay. When MaxReconnectAttempts
// retries in a row fail it stays disconnected until Connect is called
// again. While hidden it neither connects nor pings.
type Client struct {
	cfg        Config
	tokens     TokenSource
	handler    Handler
	visibility Visibility
	dialer     *websocket.Dialer
	logger     *slog.Logger
	onState    func(State)

	mu       sync.Mutex
	state    State
	attempts int
	manual   bool // Disconnect was called
	pending  bool // waiting to become visible
	gen      uint64
	conn     *websocket.Conn
	stopPing chan struct{}
	timer    *time.Timer
	ctx      context.Context
	cancel   context.CancelFunc
	unwatch  func()
}

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithVisibility(v Visibility) Option {
	return func(c *Client) {
		if v != nil {
			c.visibility = v
		}
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithStateListener calls fn on every state transition. fn must not call
// back into the client.
func WithStateListener(fn func(State)) Option {
	return func(c *Client) { c.onState = fn }
}

// New creates a disconnected client delivering events to handler.
func New(cfg Config, tokens TokenSource, handler Handler, opts ...Option) *Client {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		tokens:     tokens,
		handler:    handler,
		visibility: AlwaysVisible{},
		logger:     slog.Default(),
		state:      StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
	}
	c.logger = c.logger.With(logger.Component("realtime_client"))
	c.unwatch = c.visibility.OnChange(c.visibilityChanged)

	return c
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts connecting. It is a no-op while connected or connecting.
// ctx bounds the whole session; cancelling it is equivalent to Disconnect.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}

	c.manual = false
	c.attempts = 0
	c.stopTimerLocked()
	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	go c.watch(c.ctx)

	c.startLocked()
	c.mu.Unlock()
}

// watch disconnects when the session context ends, unless a later Connect
// replaced it.
func (c *Client) watch(ctx context.Context) {
	<-ctx.Done()

	c.mu.Lock()
	current := ctx == c.ctx
	c.mu.Unlock()

	if current {
		c.Disconnect()
	}
}

// Disconnect closes the connection and stops reconnecting.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.manual = true
	c.pending = false
	c.gen++
	c.stopTimerLocked()
	c.closeConnLocked()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.setStateLocked(StateDisconnected)
}

// Close disconnects and stops watching visibility.
func (c *Client) Close() {
	c.Disconnect()
	if c.unwatch != nil {
		c.unwatch()
	}
}

// must be called with c.mu held
func (c *Client) startLocked() {
	if !c.visibility.Visible() {
		c.pending = true
		return
	}
	c.pending = false

	if c.state != StateReconnecting {
		c.setStateLocked(StateConnecting)
	}
	c.gen++
	go c.dial(c.ctx, c.gen)
}

func (c *Client) dial(ctx context.Context, gen uint64) {
	conn, err := c.open(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.manual {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.failLocked(ctx, err)
		return
	}

	c.conn = conn
	c.attempts = 0
	c.stopPing = make(chan struct{})
	c.setStateLocked(StateConnected)

	go c.readLoop(ctx, conn, gen)
	go c.pingLoop(conn, c.stopPing)
}

func (c *Client) open(ctx context.Context) (*websocket.Conn, error) {
	token, err := c.tokens(ctx)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// must be called with c.mu held
func (c *Client) failLocked(ctx context.Context, err error) {
	c.closeConnLocked()
	c.setStateLocked(StateError)
	c.logger.LogAttrs(ctx, slog.LevelWarn, "realtime connection failed",
		logger.Attempt(c.attempts),
		logger.Error(err),
	)

	if c.manual || ctx.Err() != nil {
		c.setStateLocked(StateDisconnected)
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "realtime reconnect attempts exhausted",
			logger.Attempt(c.attempts),
		)
		c.setStateLocked(StateDisconnected)
		return
	}

	c.attempts++
	c.setStateLocked(StateReconnecting)
	gen := c.gen
	c.timer = time.AfterFunc(c.cfg.ReconnectDelay, func() { c.retry(gen) })
}

func (c *Client) retry(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.manual {
		return
	}
	c.timer = nil
	c.startLocked()
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if gen == c.gen && !c.manual {
				c.failLocked(ctx, err)
			}
			c.mu.Unlock()
			return
		}

		var ev notifications.Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.UserID == "" {
			if err == nil {
				err = errors.New("event without user")
			}
			c.logger.LogAttrs(ctx, slog.LevelWarn, "dropping malformed realtime message", logger.Error(err))
			continue
		}
		if c.handler != nil {
			c.handler(ev)
		}
	}
}

// pingLoop sends keep-alive pings, skipping ticks while hidden.
func (c *Client) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	t := time.NewTicker(c.cfg.PingInterval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if !c.visibility.Visible() {
				continue
			}
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.PingInterval))
		}
	}
}

func (c *Client) visibilityChanged(visible bool) {
	if !visible {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending && !c.manual {
		c.startLocked()
	}
}

// must be called with c.mu held
func (c *Client) closeConnLocked() {
	if c.stopPing != nil {
		close(c.stopPing)
		c.stopPing = nil
	}
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
		c.conn = nil
	}
}

// must be called with c.mu held
func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// must be called with c.mu held
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.onState != nil {
		c.onState(s)
	}
}
