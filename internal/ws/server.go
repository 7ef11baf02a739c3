package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studenttracker/internal/auth"
	"studenttracker/internal/config"
	"studenttracker/internal/hub"
	"studenttracker/internal/live"
	"studenttracker/internal/model"
	"studenttracker/internal/tracking"
)

const writeTimeout = 10 * time.Second

// Server is the websocket transport gateway. Students report samples over
// their socket; parents receive pushes on theirs. The HTTP surface is only
// the upgrade endpoint plus health, metrics and ticket minting.
type Server struct {
	cfg      config.Config
	hub      *hub.Hub
	relay    *tracking.Relay
	live     *live.Cache
	upgrader websocket.Upgrader
}

func NewServer(cfg config.Config, h *hub.Hub, relay *tracking.Relay, liveCache *live.Cache) *Server {
	return &Server{
		cfg:   cfg,
		hub:   h,
		relay: relay,
		live:  liveCache,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.authMiddleware).Post("/ws/ticket", s.handleIssueTicket)
	r.Get("/ws", s.handleConnect)
	return r
}

// Auth

type identityKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		who, err := s.identityFromToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, who)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFromContext(ctx context.Context) (model.Identity, bool) {
	who, ok := ctx.Value(identityKey{}).(model.Identity)
	return who, ok
}

func (s *Server) identityFromToken(token string) (model.Identity, error) {
	claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
	if err != nil {
		return model.Identity{}, err
	}
	return claims.Identity()
}

// handleIssueTicket mints a one-time connect ticket so browser clients can
// open the socket without putting the bearer token in the URL.
func (s *Server) handleIssueTicket(w http.ResponseWriter, r *http.Request) {
	who, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	ticket, err := s.live.IssueTicket(r.Context(), who)
	if err != nil {
		if err == live.ErrDisabled {
			writeError(w, http.StatusServiceUnavailable, "tickets_unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":           ticket,
		"expiresInSeconds": int(s.cfg.ConnectTicketTTL.Seconds()),
	})
}

// conn wraps one websocket connection. gorilla allows a single concurrent
// writer, so every push goes through the mutex.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

type frame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func (c *conn) Push(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(frame{Event: event, Payload: payload})
}

type inboundFrame struct {
	Type      string  `json:"type"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	StudentID string  `json:"studentId"`
}

type errorPayload struct {
	Code string `json:"code"`
}

// handleConnect upgrades the socket and serves it until the client goes
// away. Identity comes from a one-time ticket or a bearer token; anonymous
// sockets stay open but cannot report and receive no pushes.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	who, identified, err := s.resolveIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	socket, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	c := &conn{ws: socket}

	if identified {
		s.hub.Register(who.UserID, c)
		defer s.hub.Unregister(who.UserID, c)
		log.Printf("ws: connected user=%s role=%s", who.UserID, who.Role)
	} else {
		log.Printf("ws: anonymous connection from %s", r.RemoteAddr)
	}
	defer socket.Close()

	// Disconnects never end the tracking session: flaky mobile networks
	// reconnect into the same session, and only an explicit stop closes it.
	for {
		var in inboundFrame
		if err := socket.ReadJSON(&in); err != nil {
			return
		}
		s.dispatch(r.Context(), c, who, identified, in)
	}
}

// resolveIdentity checks, in order, the one-time ticket, the Authorization
// header and the token query parameter.
func (s *Server) resolveIdentity(r *http.Request) (model.Identity, bool, error) {
	if ticket := r.URL.Query().Get("ticket"); ticket != "" {
		who, ok, err := s.live.RedeemTicket(r.Context(), ticket)
		if err != nil && err != live.ErrDisabled {
			return model.Identity{}, false, err
		}
		if ok {
			return who, true, nil
		}
		return model.Identity{}, false, errInvalidTicket
	}
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return model.Identity{}, false, nil
	}
	who, err := s.identityFromToken(token)
	if err != nil {
		return model.Identity{}, false, err
	}
	return who, true, nil
}

var errInvalidTicket = &tracking.Error{Code: "invalid_ticket"}

func (s *Server) dispatch(ctx context.Context, c *conn, who model.Identity, identified bool, in inboundFrame) {
	if !identified {
		s.pushError(c, "not_authenticated")
		return
	}

	switch in.Type {
	case "location":
		if who.Role != model.RoleStudent {
			s.pushError(c, "forbidden_role")
			return
		}
		if _, err := s.relay.SubmitLocation(ctx, who.UserID, in.Latitude, in.Longitude); err != nil {
			s.pushError(c, errorCode(err))
		}
	case "start":
		if who.Role != model.RoleStudent {
			s.pushError(c, "forbidden_role")
			return
		}
		if _, _, err := s.relay.StartTracking(ctx, who.UserID); err != nil {
			s.pushError(c, errorCode(err))
		}
	case "stop":
		if who.Role != model.RoleStudent {
			s.pushError(c, "forbidden_role")
			return
		}
		if err := s.relay.StopTracking(ctx, who.UserID); err != nil {
			s.pushError(c, errorCode(err))
		}
	case "latest":
		if who.Role != model.RoleParent {
			s.pushError(c, "forbidden_role")
			return
		}
		event, found, err := s.relay.Latest(ctx, who.UserID, in.StudentID)
		if err != nil {
			s.pushError(c, errorCode(err))
			return
		}
		payload := map[string]any{"found": found}
		if found {
			payload["location"] = event
		}
		_ = c.Push("latest", payload)
	case "history":
		if who.Role != model.RoleParent {
			s.pushError(c, "forbidden_role")
			return
		}
		history, err := s.relay.History(ctx, who.UserID, in.StudentID)
		if err != nil {
			s.pushError(c, errorCode(err))
			return
		}
		_ = c.Push("history", history)
	default:
		s.pushError(c, "unknown_event")
	}
}

func (s *Server) pushError(c *conn, code string) {
	if err := c.Push("error", errorPayload{Code: code}); err != nil {
		log.Printf("ws: error push failed: %v", err)
	}
}

func errorCode(err error) string {
	var opErr *tracking.Error
	if errors.As(err, &opErr) {
		return opErr.Code
	}
	return "server_error"
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
