// Package server exposes chats over HTTP: a JSON/SSE chat API, an MCP
// endpoint offering the real-estate tools to external agents, and request
// metrics.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	metricsprom "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"

	"horizon/auth"
	"horizon/conversation"
	"horizon/dispatch"
	"horizon/storage"
)

// httpMetrics is shared by every Server so the recorder's collectors are
// registered with prometheus once.
var httpMetrics = middleware.New(middleware.Config{
	Recorder: metricsprom.NewRecorder(metricsprom.Config{Prefix: "horizon"}),
})

// Options wires a Server to the rest of the application.
type Options struct {
	Listen string
	// Store must resolve sessions with auth.ContextProvider so that the
	// authentication middleware decides who is persisted.
	Store      *conversation.Store
	Persist    storage.ChatStore
	Dispatcher *dispatch.Dispatcher
	Tokens     *auth.TokenAuthenticator
}

type Server struct {
	opts       Options
	mcp        *MCPServer
	httpServer *http.Server
}

func New(opts Options) *Server {
	s := &Server{opts: opts}
	s.httpServer = &http.Server{
		Addr:              opts.Listen,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mcp = NewMCPServer(s.httpServer)
	s.httpServer.Handler = s.Handler()
	return s
}

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, id string, h http.HandlerFunc) {
		mux.Handle(pattern, std.Handler(id, httpMetrics, s.authenticate(h)))
	}

	route("POST /api/chats/{id}/messages", "/api/chats/:id/messages", s.postMessage)
	route("POST /api/chats/{id}/inquiries", "/api/chats/:id/inquiries", s.postInquiry)
	route("GET /api/chats/{id}", "/api/chats/:id", s.getChat)
	route("DELETE /api/chats/{id}", "/api/chats/:id", s.deleteChat)
	route("GET /api/chats", "/api/chats", s.listChats)
	route("GET /api/search", "/api/search", s.search)
	route("GET /api/health", "/api/health", s.health)

	if s.mcp != nil {
		mux.Handle("/mcp", std.Handler("/mcp", httpMetrics, s.mcp.Handler()))
	}
	return mux
}

// Serve blocks until the server stops. It returns nil after Shutdown.
func (s *Server) Serve() error {
	log.WithField("listen", s.opts.Listen).Info("serving chat API")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// authenticate attaches the session of a valid bearer token. Requests without
// a token continue anonymously; a token that matches nobody is rejected.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if s.opts.Tokens == nil {
			failureResponse(w, http.StatusUnauthorized, "token authentication is not configured")
			return
		}
		session, err := s.opts.Tokens.Authenticate(token)
		if err != nil {
			log.WithField("remote", r.RemoteAddr).Warn("rejected bearer token")
			failureResponse(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	return strings.TrimSpace(token), ok
}

// requireSession writes 401 and returns false for anonymous requests.
func requireSession(w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	session, ok := auth.FromContext(r.Context())
	if !ok {
		failureResponse(w, http.StatusUnauthorized, "User authentication required")
	}
	return session, ok
}
