package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/abramin/sqlbridge/internal/store"
)

// Server is the SQLBridge HTTP server.
type Server struct {
	store      *store.Store
	httpServer *http.Server
	port       int
	outputDir  string
}

// Config holds server configuration.
type Config struct {
	Port      int
	DBDir     string // directory holding .sqlbridge/index.db
	OutputDir string // rendered sources served under /generated/
}

// New creates a new server instance.
func New(cfg Config) (*Server, error) {
	st, err := store.Open(cfg.DBDir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	s := &Server{
		store:     st,
		port:      cfg.Port,
		outputDir: cfg.OutputDir,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/tables", s.corsMiddleware(s.handleTables))
	mux.HandleFunc("/api/tables/", s.corsMiddleware(s.handleTable))
	mux.HandleFunc("/api/views", s.corsMiddleware(s.handleViews))
	mux.HandleFunc("/api/views/", s.corsMiddleware(s.handleView))
	mux.HandleFunc("/api/packages", s.corsMiddleware(s.handlePackages))
	mux.HandleFunc("/api/packages/", s.corsMiddleware(s.handlePackage))
	mux.HandleFunc("/api/routines/", s.corsMiddleware(s.handleRoutine))
	mux.HandleFunc("/api/graph/", s.corsMiddleware(s.handleGraph))
	mux.HandleFunc("/api/search", s.corsMiddleware(s.handleSearch))
	mux.HandleFunc("/api/errors", s.corsMiddleware(s.handleErrors))
	mux.HandleFunc("/api/stats", s.corsMiddleware(s.handleStats))

	// Health check
	mux.HandleFunc("/api/health", s.corsMiddleware(s.handleHealth))

	// Generated sources and landing page
	if s.outputDir != "" {
		mux.Handle("/generated/", http.StripPrefix("/generated/", GeneratedHandler(s.outputDir)))
	}
	mux.HandleFunc("/", s.handleIndex)

	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server.start", "url", fmt.Sprintf("http://localhost:%d", s.port))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.store.Close()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("server.stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	if err := s.store.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}

	slog.Info("server.stopped")
	return nil
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// corsMiddleware adds CORS headers for local development.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "err", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeLookupError maps store lookup failures to 404 or 500.
func writeLookupError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	slog.Error("lookup failed", "what", what, "err", err)
	writeError(w, http.StatusInternalServerError, "failed to get "+what)
}

// allowGet rejects non-GET requests.
func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

// pathParts splits the path after prefix into its non-empty segments.
func pathParts(r *http.Request, prefix string) []string {
	var parts []string
	for _, p := range strings.Split(strings.TrimPrefix(r.URL.Path, prefix), "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats returns index statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	stats, err := s.store.GetStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleTables handles GET /api/tables
func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	tables, err := s.store.ListTables()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tables")
		return
	}

	writeJSON(w, http.StatusOK, tables)
}

// handleTable handles GET /api/tables/:name, including the routines using the table.
func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	parts := pathParts(r, "/api/tables/")
	if len(parts) != 1 {
		writeError(w, http.StatusBadRequest, "invalid table name")
		return
	}

	table, err := s.store.GetTable(parts[0])
	if err != nil {
		writeLookupError(w, err, "table")
		return
	}

	usage, err := s.store.GetTableUsage(table.Name)
	if err != nil {
		usage = []store.TableUsage{} // Don't fail if usage can't be fetched
	}

	response := struct {
		*store.TableDetail
		UsedBy []store.TableUsage `json:"used_by"`
	}{
		TableDetail: table,
		UsedBy:      usage,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleViews handles GET /api/views
func (s *Server) handleViews(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	views, err := s.store.ListViews()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list views")
		return
	}

	writeJSON(w, http.StatusOK, views)
}

// handleView handles GET /api/views/:name
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	parts := pathParts(r, "/api/views/")
	if len(parts) != 1 {
		writeError(w, http.StatusBadRequest, "invalid view name")
		return
	}

	body, err := s.store.GetView(parts[0])
	if err != nil {
		writeLookupError(w, err, "view")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"name": strings.ToUpper(parts[0]), "body": body})
}

// handlePackages handles GET /api/packages
func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	packages, err := s.store.ListPackages()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list packages")
		return
	}

	writeJSON(w, http.StatusOK, packages)
}

// handlePackage handles GET /api/packages/:name, listing its routines.
func (s *Server) handlePackage(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	parts := pathParts(r, "/api/packages/")
	if len(parts) != 1 {
		writeError(w, http.StatusBadRequest, "invalid package name")
		return
	}

	routines, err := s.store.ListRoutines(parts[0])
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list routines")
		return
	}
	if len(routines) == 0 {
		writeError(w, http.StatusNotFound, "package not found")
		return
	}

	response := struct {
		Name     string          `json:"name"`
		Routines []store.Routine `json:"routines"`
	}{
		Name:     strings.ToUpper(parts[0]),
		Routines: routines,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleRoutine handles GET /api/routines/:package/:name, including its callers.
func (s *Server) handleRoutine(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	parts := pathParts(r, "/api/routines/")
	if len(parts) != 2 {
		writeError(w, http.StatusBadRequest, "expected /api/routines/{package}/{name}")
		return
	}

	routine, err := s.store.GetRoutine(parts[0], parts[1])
	if err != nil {
		writeLookupError(w, err, "routine")
		return
	}

	callers, err := s.store.GetCallers(routine.Package, routine.Name)
	if err != nil {
		callers = []store.Routine{}
	}

	response := struct {
		*store.RoutineDetail
		Callers []store.Routine `json:"callers"`
	}{
		RoutineDetail: routine,
		Callers:       callers,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleGraph handles GET /api/graph/:package/:name
// Optional query parameters: callers=false, external=false.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	parts := pathParts(r, "/api/graph/")
	if len(parts) != 2 {
		writeError(w, http.StatusBadRequest, "expected /api/graph/{package}/{name}")
		return
	}

	filter := DefaultGraphFilter()
	q := r.URL.Query()
	if v, err := strconv.ParseBool(q.Get("callers")); err == nil {
		filter.IncludeCallers = v
	}
	if v, err := strconv.ParseBool(q.Get("external")); err == nil {
		filter.IncludeExternal = v
	}

	graph, err := NewGraphBuilder(s.store, filter).Build(parts[0], parts[1])
	if err != nil {
		writeLookupError(w, err, "routine")
		return
	}

	writeJSON(w, http.StatusOK, graph)
}

// handleSearch handles GET /api/search?query=xxx
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter required")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	results, err := s.store.Search(query, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	writeJSON(w, http.StatusOK, results)
}

// handleErrors handles GET /api/errors
func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	errs, err := s.store.ListBlockErrors()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list errors")
		return
	}

	writeJSON(w, http.StatusOK, errs)
}
