package api

import (
	"bufio"
	"bytes"
	"context"
	"crypto/subtle"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/khanhnv2901/secheckup/internal/api/middleware"
	checkupapp "github.com/khanhnv2901/secheckup/internal/application/checkup"
	"github.com/khanhnv2901/secheckup/internal/checker"
	"github.com/khanhnv2901/secheckup/internal/report"
	consts "github.com/khanhnv2901/secheckup/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/secheckup/internal/shared/errors"
)

const (
	defaultListLimit = 25
	streamKeepAlive  = 15 * time.Second
	socketWriteWait  = 10 * time.Second
	limiterIdleTTL   = 5 * time.Minute
)

//go:embed web/index.html
var indexHTML string

var pageTemplate = template.Must(template.New("index").Parse(indexHTML))

// CheckupService starts checkups and exposes their state.
type CheckupService interface {
	Start(ctx context.Context, req checkupapp.Request) (*checkupapp.View, error)
	Get(ctx context.Context, id string) (*checkupapp.View, error)
	List(ctx context.Context, limit int) ([]checkupapp.View, error)
	Delete(ctx context.Context, id string) error
	Cancel(id string) bool
	Document(ctx context.Context, id string) (report.Document, error)
	Describe(mode string) ([]checker.ProbeDescriptor, error)
	Subscribe(checkupID string) (<-chan checkupapp.Event, func())
}

type HealthService interface {
	Check(ctx context.Context) error
	Ready(ctx context.Context) error
}

type Config struct {
	Checkups    CheckupService
	Health      HealthService
	AuthToken   string
	Logger      *zap.Logger
	CORSOrigins []string // Allowed CORS origins (empty = allow all)
	RateLimit   int      // Requests per second per IP (0 = disabled)
	RateBurst   int      // Burst size for rate limiter
	TrustProxy  bool     // Take the client address from X-Forwarded-For
}

type Server struct {
	cfg      Config
	mux      *http.ServeMux
	limiters *rateLimiterMap
	upgrader websocket.Upgrader
	handler  http.Handler
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		limiters: newRateLimiterMap(),
	}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     srv.checkOrigin,
	}
	srv.routes()
	// RequestID -> ClientIP -> Logging -> RateLimit -> CORS -> Auth -> Handler
	srv.handler = middleware.RequestID(
		middleware.ClientIP(cfg.TrustProxy)(
			srv.withLogging(srv.withRateLimit(srv.withCORS(srv.mux))),
		),
	)
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handlePage)
	s.mux.HandleFunc("/static/collector.js", s.handleCollectorScript)

	s.mux.Handle("/api/v1/health", s.withAuth(http.HandlerFunc(s.handleHealth)))
	s.mux.Handle("/api/v1/ready", s.withAuth(http.HandlerFunc(s.handleReady)))
	s.mux.Handle("/api/v1/probes", s.withAuth(http.HandlerFunc(s.handleProbes)))
	s.mux.Handle("/api/v1/checkups", s.withAuth(http.HandlerFunc(s.handleCheckups)))
	s.mux.Handle("/api/v1/checkups/", s.withAuth(http.HandlerFunc(s.handleCheckupByID)))
	s.mux.Handle("/api/v1/events", s.withAuth(http.HandlerFunc(s.handleEventStream)))
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, r, http.StatusNotFound, errors.New("not found"))
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.methodNotAllowed(w, r)
		return
	}
	probes, err := s.cfg.Checkups.Describe("live")
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, struct{ Probes []checker.ProbeDescriptor }{probes}); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	s.writeBody(w, buf.Bytes())
}

func (s *Server) handleCollectorScript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.methodNotAllowed(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	s.writeBody(w, []byte(checker.CollectorScript))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Health != nil {
		if err := s.cfg.Health.Check(r.Context()); err != nil {
			s.writeError(w, r, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Health != nil {
		if err := s.cfg.Health.Ready(r.Context()); err != nil {
			s.writeError(w, r, http.StatusServiceUnavailable, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleProbes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	probes, err := s.cfg.Checkups.Describe(r.URL.Query().Get("mode"))
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, probes)
}

func (s *Server) handleCheckups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := defaultListLimit
		if q := r.URL.Query().Get("limit"); q != "" {
			if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		views, err := s.cfg.Checkups.List(r.Context(), limit)
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, consts.ClientReportLimit)
		var req checkupapp.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
		req.ObservedIP = middleware.GetClientIP(r.Context())
		view, err := s.cfg.Checkups.Start(r.Context(), req)
		if err != nil {
			s.writeError(w, r, statusForError(err), err)
			return
		}
		w.Header().Set("Location", "/api/v1/checkups/"+view.ID)
		writeJSON(w, http.StatusAccepted, view)
	default:
		s.methodNotAllowed(w, r)
	}
}

func (s *Server) handleCheckupByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/checkups/"), "/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, r, http.StatusNotFound, errors.New("checkup ID required"))
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			view, err := s.cfg.Checkups.Get(r.Context(), id)
			if err != nil {
				s.writeError(w, r, statusForError(err), err)
				return
			}
			writeJSON(w, http.StatusOK, view)
		case http.MethodDelete:
			if err := s.cfg.Checkups.Delete(r.Context(), id); err != nil {
				s.writeError(w, r, statusForError(err), err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			s.methodNotAllowed(w, r)
		}
	case "cancel":
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w, r)
			return
		}
		s.handleCancel(w, r, id)
	case "report":
		if r.Method != http.MethodGet {
			s.methodNotAllowed(w, r)
			return
		}
		s.handleReport(w, r, id)
	case "ws":
		if r.Method != http.MethodGet {
			s.methodNotAllowed(w, r)
			return
		}
		s.handleCheckupSocket(w, r, id)
	default:
		s.writeError(w, r, http.StatusNotFound, errors.New("not found"))
	}
}

// handleCancel stops a running checkup. It ends failed once the run
// notices, so the response only acknowledges the request.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, id string) {
	if s.cfg.Checkups.Cancel(id) {
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
		return
	}
	if _, err := s.cfg.Checkups.Get(r.Context(), id); err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}
	s.writeError(w, r, http.StatusConflict, sharedErrors.ErrCheckupNotRunning)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, id string) {
	name := r.URL.Query().Get("format")
	if name == "" {
		name = string(report.FormatJSON)
	}
	format, err := report.ParseFormat(name)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	doc, err := s.cfg.Checkups.Document(r.Context(), id)
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, format, doc); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("inline; filename=%q", "secheckup-"+id+format.Extension()))
	w.WriteHeader(http.StatusOK)
	s.writeBody(w, buf.Bytes())
}

// handleEventStream streams checkup events as server-sent events. The
// optional checkup query parameter restricts the stream to one checkup.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	updates, unsubscribe := s.cfg.Checkups.Subscribe(r.URL.Query().Get("checkup"))
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case event, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				s.requestLogger(r).Error("failed to marshal event", zap.Error(err))
				continue
			}
			if !s.writeStreamChunk(w, []byte("event: "+string(event.Kind)+"\n")) {
				return
			}
			if !s.writeStreamChunk(w, []byte("data: ")) {
				return
			}
			if !s.writeStreamChunk(w, payload) {
				return
			}
			if !s.writeStreamChunk(w, []byte("\n\n")) {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if !s.writeStreamChunk(w, []byte(": keep-alive\n\n")) {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// handleCheckupSocket sends the current state of one checkup over a
// WebSocket, then every event until the checkup finishes.
func (s *Server) handleCheckupSocket(w http.ResponseWriter, r *http.Request, id string) {
	// Subscribe first so no event falls between the snapshot and the stream.
	updates, unsubscribe := s.cfg.Checkups.Subscribe(id)
	defer unsubscribe()

	view, err := s.cfg.Checkups.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.requestLogger(r).Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(e checkupapp.Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
		if err := conn.WriteJSON(e); err != nil {
			s.requestLogger(r).Debug("websocket write failed", zap.Error(err))
			return false
		}
		return true
	}
	finish := func() {
		_ = conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "checkup finished"))
	}

	if !send(checkupapp.Event{Kind: checkupapp.EventCheckup, CheckupID: view.ID, Checkup: view}) {
		return
	}
	if view.Finished() {
		finish()
		return
	}

	for {
		select {
		case event, ok := <-updates:
			if !ok {
				finish()
				return
			}
			if !send(event) {
				return
			}
			if event.Kind == checkupapp.EventCheckup && event.Checkup != nil && event.Checkup.Finished() {
				finish()
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(s.cfg.CORSOrigins) == 0 {
		return strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://") == r.Host
	}
	for _, allowed := range s.cfg.CORSOrigins {
		if allowed == origin || allowed == "*" {
			return true
		}
	}
	return false
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.RateLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := middleware.GetClientIP(r.Context())
		if clientIP == "" {
			clientIP = middleware.ObservedIP(r, s.cfg.TrustProxy)
		}
		limiter := s.limiters.getLimiter(clientIP, s.cfg.RateLimit, s.cfg.RateBurst)
		if !limiter.Allow() {
			s.requestLogger(r).Warn("rate_limit_exceeded", zap.String("client_ip", clientIP))
			s.writeError(w, r, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowOrigin := "*"
		if len(s.cfg.CORSOrigins) > 0 {
			allowed := false
			for _, allowedOrigin := range s.cfg.CORSOrigins {
				if allowedOrigin == origin {
					allowed = true
					allowOrigin = origin
					break
				}
			}
			if !allowed {
				allowOrigin = ""
			}
		}

		if allowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Auth-Token, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(lrw, r)

		if s.cfg.Logger != nil {
			s.cfg.Logger.Info("http_request",
				zap.String("request_id", middleware.GetRequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("client_ip", middleware.GetClientIP(r.Context())),
				zap.Int("status", lrw.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.Int64("bytes", lrw.bytesWritten),
			)
		}
	})
}

// withAuth requires the configured token in X-Auth-Token. Browsers cannot
// set headers on EventSource or WebSocket requests, so a token query
// parameter is accepted too.
func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.cfg.AuthToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			s.writeError(w, r, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, sharedErrors.ErrCheckupNotFound),
		errors.Is(err, sharedErrors.ErrInvalidCheckupID):
		return http.StatusNotFound
	case errors.Is(err, sharedErrors.ErrInvalidCheckupMode),
		errors.Is(err, sharedErrors.ErrInvalidTarget),
		errors.Is(err, sharedErrors.ErrEmptyTarget),
		errors.Is(err, sharedErrors.ErrPrivateTarget),
		errors.Is(err, sharedErrors.ErrBrowserDisabled),
		errors.Is(err, sharedErrors.ErrUnknownProbe),
		errors.Is(err, sharedErrors.ErrInvalidClientReport),
		errors.Is(err, sharedErrors.ErrUnsupportedType),
		errors.Is(err, sharedErrors.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// loggingResponseWriter wraps http.ResponseWriter to capture status code and bytes written
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytesWritten += int64(n)
	return n, err
}

func (lrw *loggingResponseWriter) Flush() {
	if f, ok := lrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()

	// For 5xx errors, return generic message and log details server-side
	if status >= 500 {
		s.requestLogger(r).Error("internal_server_error",
			zap.Error(err),
			zap.Int("status", status),
		)
		msg = "internal server error"
	}

	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeBody(w http.ResponseWriter, data []byte) {
	if _, err := w.Write(data); err != nil && s.cfg.Logger != nil {
		s.cfg.Logger.Error("failed to write response", zap.Error(err))
	}
}

// requestLogger creates a logger with request context (request ID, method, path)
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if s.cfg.Logger == nil {
		return zap.NewNop()
	}
	return s.cfg.Logger.With(
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func (s *Server) writeStreamChunk(w http.ResponseWriter, data []byte) bool {
	if _, err := w.Write(data); err != nil {
		if s.cfg.Logger != nil {
			s.cfg.Logger.Error("failed to write stream chunk", zap.Error(err))
		}
		return false
	}
	return true
}

// rateLimiterMap manages per-IP rate limiters. Idle entries are dropped on
// access rather than by a background goroutine.
type rateLimiterMap struct {
	mu        sync.Mutex
	limiters  map[string]*ipLimiter
	lastSweep time.Time
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiterMap() *rateLimiterMap {
	return &rateLimiterMap{
		limiters:  make(map[string]*ipLimiter),
		lastSweep: time.Now(),
	}
}

func (m *rateLimiterMap) getLimiter(ip string, rps, burst int) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if now.Sub(m.lastSweep) > time.Minute {
		m.sweepLocked(now)
	}

	if burst <= 0 {
		burst = rps
	}
	limiter, exists := m.limiters[ip]
	if !exists {
		limiter = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
		m.limiters[ip] = limiter
	}
	limiter.lastSeen = now
	return limiter.limiter
}

// sweepLocked removes limiters that haven't been used in limiterIdleTTL
func (m *rateLimiterMap) sweepLocked(now time.Time) {
	for ip, limiter := range m.limiters {
		if now.Sub(limiter.lastSeen) > limiterIdleTTL {
			delete(m.limiters, ip)
		}
	}
	m.lastSweep = now
}
