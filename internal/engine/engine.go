// Package engine is an in-process HTTP mock engine that speaks the WireMock
// admin API subset the rest of tunnelmock relies on.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultJournalLimit = 1000
	maxBodyBytes        = 4 << 20
)

// Options configure an Engine.
type Options struct {
	// Templating renders every response body as a template, not only
	// mappings that ask for the response-template transformer.
	Templating   bool
	JournalLimit int
	Logger       *slog.Logger
}

// Engine holds stub mappings and the request journal.
type Engine struct {
	mu       sync.RWMutex
	mappings []*Mapping // newest first

	journal    *journal
	templating bool
	logger     *slog.Logger
	now        func() time.Time
}

// New creates an empty engine.
func New(opts Options) *Engine {
	limit := opts.JournalLimit
	if limit <= 0 {
		limit = defaultJournalLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		journal:    newJournal(limit),
		templating: opts.Templating,
		logger:     logger,
		now:        time.Now,
	}
}

// Handler returns the engine's HTTP handler: /__admin routes plus stub serving.
func (e *Engine) Handler() http.Handler {
	r := chi.NewRouter()

	r.Route("/__admin", func(r chi.Router) {
		r.Post("/mappings", e.handleCreateMapping)
		r.Get("/mappings", e.handleListMappings)
		r.Delete("/mappings", e.handleDeleteMappings)
		r.Get("/requests", e.handleListRequests)
		r.Delete("/requests", e.handleClearRequests)
		r.Post("/reset", e.handleReset)
	})

	r.HandleFunc("/*", e.serve)
	return r
}

// AddMapping validates and installs m, assigning an id when missing.
func (e *Engine) AddMapping(m Mapping) (Mapping, error) {
	if err := m.compile(); err != nil {
		return Mapping{}, fmt.Errorf("invalid mapping: %w", err)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	e.mu.Lock()
	e.mappings = append([]*Mapping{&m}, e.mappings...)
	e.mu.Unlock()

	return m, nil
}

// Mappings returns the installed mappings, newest first.
func (e *Engine) Mappings() []Mapping {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Mapping, 0, len(e.mappings))
	for _, m := range e.mappings {
		out = append(out, *m)
	}
	return out
}

// Requests returns the journal, newest first.
func (e *Engine) Requests() []ServeEvent {
	return e.journal.list()
}

// Reset drops all mappings and journal entries.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.mappings = nil
	e.mu.Unlock()
	e.journal.clear()
}

func (e *Engine) handleCreateMapping(w http.ResponseWriter, r *http.Request) {
	var m Mapping
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decoding mapping: %v", err))
		return
	}

	created, err := e.AddMapping(m)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	e.logger.Debug("mapping created", "id", created.ID, "method", created.Request.Method)
	writeJSON(w, http.StatusCreated, created)
}

func (e *Engine) handleListMappings(w http.ResponseWriter, _ *http.Request) {
	mappings := e.Mappings()
	writeJSON(w, http.StatusOK, map[string]any{
		"mappings": mappings,
		"meta":     map[string]int{"total": len(mappings)},
	})
}

func (e *Engine) handleDeleteMappings(w http.ResponseWriter, _ *http.Request) {
	e.mu.Lock()
	e.mappings = nil
	e.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (e *Engine) handleListRequests(w http.ResponseWriter, _ *http.Request) {
	events := e.journal.list()
	writeJSON(w, http.StatusOK, map[string]any{
		"requests": events,
		"meta":     map[string]int{"total": len(events)},
	})
}

func (e *Engine) handleClearRequests(w http.ResponseWriter, _ *http.Request) {
	e.journal.clear()
	w.WriteHeader(http.StatusOK)
}

func (e *Engine) handleReset(w http.ResponseWriter, _ *http.Request) {
	e.Reset()
	w.WriteHeader(http.StatusOK)
}

// serve answers a non-admin request from the first matching mapping.
func (e *Engine) serve(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("reading body: %v", err))
		return
	}
	body := string(raw)

	m := e.match(r, body)

	mappingID := ""
	if m != nil {
		mappingID = m.ID
	}
	e.journal.record(r, body, mappingID, e.now())

	if m == nil {
		e.logger.Debug("request not matched", "method", r.Method, "url", r.URL.RequestURI())
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":  "no stub mapping matched the request",
			"method": r.Method,
			"url":    r.URL.RequestURI(),
		})
		return
	}

	e.logger.Debug("request matched", "method", r.Method, "url", r.URL.RequestURI(), "mapping_id", m.ID)
	e.respond(w, r, body, m)
}

func (e *Engine) match(r *http.Request, body string) *Mapping {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, m := range e.mappings {
		if m.matches(r, body) {
			return m
		}
	}
	return nil
}

func (e *Engine) respond(w http.ResponseWriter, r *http.Request, reqBody string, m *Mapping) {
	resp := m.Response

	out := resp.Body
	isJSON := len(resp.JSONBody) > 0
	if isJSON {
		out = string(resp.JSONBody)
	}

	if m.templated(e.templating) && out != "" {
		rendered, err := render(out, r, reqBody)
		if err != nil {
			e.logger.Warn("response template failed", "mapping_id", m.ID, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = rendered
	}

	for name, value := range resp.Headers {
		w.Header().Set(name, value)
	}
	if isJSON && w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}

	w.WriteHeader(resp.Status)
	_, _ = io.WriteString(w, out)
}

// Server is an engine bound to a TCP listener.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
	done   chan struct{}
}

// Listen binds addr and serves the engine in the background. Bind failures
// are returned immediately.
func (e *Engine) Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           e.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		ln:     ln,
		logger: e.logger,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("mock engine stopped", "addr", ln.Addr().String(), "error", err)
		}
	}()

	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
