// Package web serves the Setsuna HTTP surface: health and readiness probes,
// Prometheus metrics, HTML session reports, and a websocket stream of live
// engine events.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/setsuna-project/setsuna/internal/engine"
	"github.com/setsuna-project/setsuna/internal/health"
	"github.com/setsuna-project/setsuna/internal/observe"
	"github.com/setsuna-project/setsuna/internal/report"
	"github.com/setsuna-project/setsuna/pkg/provider/tts"
)

const shutdownTimeout = 5 * time.Second

// Config configures the web [Server].
type Config struct {
	// Addr is the listen address (e.g. ":8080").
	Addr string

	// DataDir is the engine data directory holding session files.
	DataDir string
}

// Server is the HTTP front-end. Create with [NewServer], then call [Server.Run].
type Server struct {
	cfg     Config
	hub     *hub
	srv     *http.Server
	health  *health.Handler
	synth   tts.Provider
	metrics *observe.Metrics
}

// NewServer assembles the HTTP server. events may be nil; the /events
// endpoint then delivers nothing. healthHandler may be nil for a probe
// surface with no dependency checks; synth may be nil to disable /speak.
func NewServer(cfg Config, events <-chan engine.Event, healthHandler *health.Handler, metrics *observe.Metrics, synth tts.Provider) *Server {
	if healthHandler == nil {
		healthHandler = health.New()
	}
	s := &Server{
		cfg:     cfg,
		hub:     newHub(events),
		health:  healthHandler,
		synth:   synth,
		metrics: metrics,
	}

	mux := http.NewServeMux()
	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /sessions", s.handleSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleSession)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("POST /speak", s.handleSpeak)

	var handler http.Handler = mux
	if metrics != nil {
		handler = observe.Middleware(metrics)(mux)
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the assembled handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run starts the event fan-out and serves HTTP until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.run(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("web server listening", "addr", s.cfg.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	return ctx.Err()
}

// handleSessions renders the session index page from the persisted session
// files.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := engine.ListSessionFiles(s.cfg.DataDir)
	if err != nil {
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}
	sts := make([]engine.Status, 0, len(ids))
	for _, id := range ids {
		st, err := engine.ReadSessionFile(s.cfg.DataDir, id)
		if err != nil {
			slog.Warn("web: skipping unreadable session file", "session_id", id, "err", err)
			continue
		}
		sts = append(sts, st)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.HTMLList(w, sts); err != nil {
		slog.Warn("web: render session index failed", "err", err)
	}
}

// handleSession renders one session's report page.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := engine.ReadSessionFile(s.cfg.DataDir, id)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.HTML(w, st); err != nil {
		slog.Warn("web: render session report failed", "session_id", id, "err", err)
	}
}

// speakRequest is the JSON body for the /speak endpoint.
type speakRequest struct {
	Text string `json:"text"`
}

// handleSpeak synthesises the request text with the configured TTS provider
// and returns the WAV clip.
func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	if s.synth == nil {
		http.Error(w, "speech synthesis is not configured", http.StatusNotImplemented)
		return
	}

	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	wav, err := s.synth.Synthesize(r.Context(), req.Text)
	if err != nil {
		s.metrics.RecordTTS(r.Context(), s.synth.Name(), "error", time.Since(start).Seconds())
		s.metrics.RecordProviderError(r.Context(), s.synth.Name(), "synthesis")
		slog.Warn("web: synthesis failed", "provider", s.synth.Name(), "err", err)
		http.Error(w, "synthesis failed", http.StatusBadGateway)
		return
	}
	s.metrics.RecordTTS(r.Context(), s.synth.Name(), "ok", time.Since(start).Seconds())
	w.Header().Set("Content-Type", "audio/wav")
	_, _ = w.Write(wav)
}

// handleEvents upgrades to a websocket and streams engine events as JSON
// text messages until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("web: websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	sub := s.hub.subscribe()
	defer s.hub.unsubscribe(sub)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub:
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Warn("web: marshal event failed", "err", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}
