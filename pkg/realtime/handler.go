package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inkpress/coord/pkg/logger"
)

// ErrorBody is the JSON body of a refused connection.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeRejection(w http.ResponseWriter, err error) {
	body := ErrorBody{Code: err.Error(), Message: "Connection token is invalid."}
	switch err {
	case ErrMissingToken:
		body.Message = "Connection token is required."
	case ErrTokenExpired:
		body.Message = "Connection token expired, request a new one."
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(body)
}

// Server upgrades authenticated requests to WebSocket connections and
// streams the user's events as JSON text frames.
type Server struct {
	hub          *Hub
	tokens       *Tokens
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *slog.Logger
}

type ServerOption func(*Server)

func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a WebSocket endpoint. An empty cfg.AllowedOrigins
// keeps the same-host origin check of the upgrader.
func NewServer(cfg Config, hub *Hub, tokens *Tokens, opts ...ServerOption) *Server {
	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}

	s := &Server{
		hub:          hub,
		tokens:       tokens,
		writeTimeout: cfg.WriteTimeout,
		pingInterval: cfg.PingInterval,
		logger:       slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	if len(cfg.AllowedOrigins) > 0 {
		origins := cfg.AllowedOrigins
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			return slices.Contains(origins, r.Header.Get("Origin"))
		}
	}

	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("realtime"))

	return s
}

// Handler returns the endpoint. Token checks run before the upgrade, so a
// refused client sees a plain 401 response.
func (s *Server) Handler() http.Handler {
	return s.tokens.Middleware(http.HandlerFunc(s.serveWS))
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeRejection(w, ErrInvalidToken)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.LogAttrs(r.Context(), slog.LevelDebug, "websocket upgrade failed", logger.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := s.hub.Subscribe(ctx, userID)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(s.writeTimeout))
		_ = conn.Close()
		return
	}
	defer sub.Close()

	go s.readLoop(conn, cancel)
	s.writeLoop(ctx, conn, sub)
}

// readLoop discards data frames and keeps the read deadline fresh on
// ping and pong. A read error means the client went away.
func (s *Server) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
	})
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(s.writeTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, sub *Subscription) {
	ping := time.NewTicker(s.pingInterval)
	defer func() {
		ping.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.writeTimeout))
			return

		case msg, ok := <-sub.Events():
			if !ok {
				// Dropped for falling behind or evicted; the client reconnects.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "stream closed"),
					time.Now().Add(s.writeTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteJSON(msg.Data); err != nil {
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout)); err != nil {
				return
			}
		}
	}
}

// TokenHandler issues a connection token for the user returned by userID.
func TokenHandler(tokens *Tokens, userID func(*http.Request) (string, bool)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := userID(r)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(ErrorBody{Code: ErrNoUser.Error(), Message: "Authentication required."})
			return
		}

		token, err := tokens.Issue(id)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(token)
	})
}
