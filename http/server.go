package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fwojciec/harvest"
)

// Query parameter defaults and bounds.
const (
	DefaultTopK        = 5
	MaxTopK            = 100
	DefaultRecentLimit = 20
)

// ShutdownTimeout is how long Close waits for in-flight requests.
const ShutdownTimeout = 5 * time.Second

// Server serves read-only JSON queries over a DocumentStore.
type Server struct {
	ln     net.Listener
	server *http.Server
	mux    *http.ServeMux

	// Bind address for the server's listener.
	Addr string

	Store    harvest.DocumentStore
	Embedder harvest.Embedder
	Logger   *slog.Logger

	// Returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewServer returns a new instance of Server with its routes registered.
func NewServer() *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		Logger: slog.New(slog.DiscardHandler),
		Now:    time.Now,
	}
	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.mux.HandleFunc("GET /search", s.handleSearch)
	s.mux.HandleFunc("GET /recent", s.handleRecent)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	return s
}

// Open begins listening on Addr and serves requests in the background.
func (s *Server) Open() (err error) {
	if s.ln, err = net.Listen("tcp", s.Addr); err != nil {
		return err
	}
	go func() {
		if err := s.server.Serve(s.ln); err != nil && err != http.ErrServerClosed {
			s.Logger.Error("query server stopped", "err", err)
		}
	}()
	return nil
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// URL returns the base URL of the running server.
func (s *Server) URL() string {
	if s.ln == nil {
		return ""
	}
	return "http://" + s.ln.Addr().String()
}

// ServeHTTP adds CORS headers and dispatches to the registered routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}

type searchResponse struct {
	Query   string                   `json:"query"`
	Results []harvest.DocumentResult `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		s.error(w, r, harvest.Errorf(harvest.EINVALID, "query parameter q required"))
		return
	}

	opts := harvest.SearchOptions{TopK: DefaultTopK}
	var err error
	if opts.TopK, err = intParam(q.Get("top_k"), DefaultTopK, 1, MaxTopK); err != nil {
		s.error(w, r, err)
		return
	}
	if opts.DateRange, err = harvest.ParseDateRange(q.Get("start_date"), q.Get("end_date")); err != nil {
		s.error(w, r, err)
		return
	}
	if v := q.Get("min_score"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			s.error(w, r, harvest.Errorf(harvest.EINVALID, "invalid min_score %q", v))
			return
		}
		opts.MinScore = float32(f)
	}

	results, err := s.Store.Search(r.Context(), query, s.Embedder, opts)
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, searchResponse{Query: query, Results: results})
}

type recentResponse struct {
	Range     harvest.DateRange   `json:"range"`
	Documents []*harvest.Document `json:"documents"`
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var rng harvest.DateRange
	if v := q.Get("days"); v != "" {
		days, err := intParam(v, 0, 0, 36500)
		if err != nil {
			s.error(w, r, err)
			return
		}
		rng = harvest.LastDays(s.Now(), days)
	}
	limit, err := intParam(q.Get("limit"), DefaultRecentLimit, 1, 1000)
	if err != nil {
		s.error(w, r, err)
		return
	}

	docs, err := s.Store.FindByDate(r.Context(), rng, limit)
	if err != nil {
		s.error(w, r, err)
		return
	}
	if docs == nil {
		docs = []*harvest.Document{}
	}
	s.json(w, recentResponse{Range: rng, Documents: docs})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Store.Statistics(r.Context())
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, stats)
}

func (s *Server) json(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("encode response", "err", err)
	}
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// error writes err as JSON with a status derived from its code.
// Internal errors are logged and hidden from the client.
func (s *Server) error(w http.ResponseWriter, r *http.Request, err error) {
	code := harvest.ErrorCode(err)
	status := ErrorStatusCode(code)
	if status == http.StatusInternalServerError {
		s.Logger.Error("query failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Code: code, Error: harvest.ErrorMessage(err)})
}

var codes = map[string]int{
	harvest.EINVALID:         http.StatusBadRequest,
	harvest.ENOTFOUND:        http.StatusNotFound,
	harvest.ECONFLICT:        http.StatusConflict,
	harvest.EDIMENSION:       http.StatusInternalServerError,
	harvest.EEMBEDDING:       http.StatusBadGateway,
	harvest.ECORRUPTINDEX:    http.StatusServiceUnavailable,
	harvest.ECORRUPTMETADATA: http.StatusServiceUnavailable,
	harvest.ESTORECORRUPT:    http.StatusServiceUnavailable,
	harvest.EINTERNAL:        http.StatusInternalServerError,
}

// ErrorStatusCode returns the HTTP status code for an application error code.
func ErrorStatusCode(code string) int {
	if v, ok := codes[code]; ok {
		return v
	}
	return http.StatusInternalServerError
}

func intParam(v string, def, lo, hi int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, harvest.Errorf(harvest.EINVALID, "expected integer in [%d, %d], got %q", lo, hi, v)
	}
	return n, nil
}
