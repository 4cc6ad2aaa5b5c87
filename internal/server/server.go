package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"

	"github.com/jpalmerr/provisionwatch"
	"github.com/jpalmerr/provisionwatch/internal/digitalocean"
	"github.com/jpalmerr/provisionwatch/internal/install"
	"github.com/jpalmerr/provisionwatch/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE or
	// WebSocket write. Must be <= shutdown timeout.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	progressTemplate = "assets/progress.html"
)

// Server handles HTTP requests for the installer.
type Server struct {
	store      store.Store
	runner     *install.Runner
	oauth      *oauth2.Config
	host       string
	port       int
	assets     fs.FS
	logger     *slog.Logger
	httpServer *http.Server
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	ctx     context.Context
	addr    net.Addr
	started map[string]bool
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store holding install records
//   - runner: Runner that performs installs
//   - oauth: DigitalOcean OAuth client config; nil selects simulated mode
//   - host, port: Address to listen on
//   - assets: Filesystem containing assets/progress.html (may be nil)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, runner *install.Runner, oauth *oauth2.Config, host string, port int, assets fs.FS, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:  st,
		runner: runner,
		oauth:  oauth,
		host:   host,
		port:   port,
		assets: assets,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx:     context.Background(),
		started: make(map[string]bool),
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /progress", s.handleProgress)
	mux.HandleFunc("GET /status/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/installs", s.handleInstalls)
	mux.HandleFunc("GET /api/sse/{id}", s.handleSSE)
	mux.HandleFunc("GET /ws/{id}", s.handleWS)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. When ctx is cancelled the server shuts down gracefully with a
// 5-second timeout. Installs started by the server run under ctx.
//
// Returns an error if the server fails to bind to the configured address.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	// create listener first to verify port availability synchronously
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts end with ctx so long-lived streams exit on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.logger.Info("installer listening", "addr", ln.Addr().String(), "simulated", s.oauth == nil)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Addr returns the address the server is listening on, or "" before
// [Server.Start] succeeds.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

// handleIndex registers a new install and redirects to authorization.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	if err := s.runner.Register(id); err != nil {
		s.logger.Error("failed to register install", "error", err)
		http.Error(w, "Could not start install", http.StatusInternalServerError)
		return
	}
	s.logger.Info("install registered", "install_id", id)

	target := "/progress?state=" + id
	if s.oauth != nil {
		target = s.oauth.AuthCodeURL(id)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// handleProgress is the OAuth redirect target. It starts the install named
// by the state parameter and renders the progress page.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("state")

	inst, ok := s.store.Get(id)
	if !ok {
		http.Error(w, "Unknown install", http.StatusNotFound)
		return
	}
	if reason := q.Get("error"); reason != "" {
		http.Error(w, "Authorization denied: "+reason, http.StatusBadRequest)
		return
	}

	if inst.Status == provisionwatch.StatusPendingAuth.String() && s.claim(id) {
		var accessToken string
		if s.oauth != nil {
			tok, err := digitalocean.Exchange(r.Context(), s.oauth, q.Get("code"))
			if err != nil {
				s.release(id)
				s.logger.Warn("oauth exchange failed", "install_id", id, "error", err.Error())
				http.Error(w, "Authorization failed", http.StatusBadRequest)
				return
			}
			accessToken = tok.AccessToken
		}
		s.runner.Go(s.installContext(), id, accessToken)
		s.logger.Info("install started", "install_id", id)
	}

	s.renderProgress(w, id)
}

// claim marks id as started. It returns false if it already was.
func (s *Server) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started[id] {
		return false
	}
	s.started[id] = true
	return true
}

func (s *Server) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.started, id)
}

func (s *Server) installContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Server) renderProgress(w http.ResponseWriter, id string) {
	if s.assets == nil {
		http.Error(w, "Progress page not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.assets, progressTemplate)
	if err != nil {
		http.Error(w, "Progress page not found", http.StatusInternalServerError)
		return
	}
	tmpl, err := template.New("progress").Parse(string(content))
	if err != nil {
		s.logger.Error("failed to parse progress page", "error", err)
		http.Error(w, "Progress page not found", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ InstallID string }{id}); err != nil {
		s.logger.Error("failed to render progress page", "error", err)
		http.Error(w, "Progress page not found", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Error("failed to write progress response", "error", err)
	}
}

// handleStatus returns the status of one install.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "install not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse(inst))
}

// handleInstalls returns every install record.
func (s *Server) handleInstalls(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.GetAll())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// statusResponse converts a record to its wire form. The client token and
// address are only reported once the install is done.
func statusResponse(inst store.Install) provisionwatch.StatusResponse {
	resp := provisionwatch.StatusResponse{
		Status: provisionwatch.Status(inst.Status),
		Error:  inst.Error,
	}
	if resp.Status == provisionwatch.StatusDone {
		resp.ClientToken = inst.ClientToken
		resp.IPAddress = inst.IPAddress
	}
	return resp
}

func isTerminal(inst store.Install) bool {
	return provisionwatch.Status(inst.Status).IsTerminal()
}
