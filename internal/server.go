package internal

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"eventchat/internal/storage"
)

var errUnauthorized = errors.New("unauthorized")

// Server holds the hub, the store, and the ambient pieces every handler needs.
type Server struct {
	store       *storage.Store
	hub         *Hub
	metrics     *Metrics
	presence    *PresenceTracker
	authLimiter *RateLimiter
	tokenTTL    time.Duration
}

func NewServer(store *storage.Store) *Server {
	return &Server{
		store:       store,
		hub:         NewHub(),
		metrics:     NewMetrics(),
		presence:    NewPresenceTracker(),
		authLimiter: NewRateLimiter(10, time.Minute),
		tokenTTL:    30 * 24 * time.Hour,
	}
}

// MetricsHandler exposes the JSON counters endpoint.
func (s *Server) MetricsHandler() http.Handler {
	return s.metrics
}

type authContext struct {
	UserID   int64
	Username string
	Token    string
}

// authenticateRequest resolves a Bearer token from the Authorization header.
func (s *Server) authenticateRequest(r *http.Request) (*authContext, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, errUnauthorized
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return s.authenticateToken(r.Context(), token)
}

func (s *Server) authenticateToken(ctx context.Context, token string) (*authContext, error) {
	if token == "" {
		return nil, errUnauthorized
	}
	session, err := s.store.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errUnauthorized
	}
	if time.Now().After(session.ExpiresAt) {
		_ = s.store.DeleteSession(ctx, token)
		return nil, errUnauthorized
	}
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errUnauthorized
	}
	return &authContext{UserID: user.ID, Username: user.Username, Token: token}, nil
}

func (s *Server) clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS authenticates the session token from the query string, upgrades the
// request, and starts the connection pumps. The group join happens later, when
// the client's join_event frame arrives.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	authCtx, err := s.authenticateToken(r.Context(), token)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errUnauthorized) {
			status = http.StatusUnauthorized
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade error: %v", err)
		return
	}

	member := newWSConn(s, conn, authCtx.UserID, authCtx.Username, authCtx.Token)
	s.metrics.IncConn()

	go member.writePump()
	go member.readPump()
}
