// Package server exposes the Ingest/Storage surface of SPEC_FULL.md §6 as a
// thin chi REST + WebSocket collaborator (spec.md treats the RPC/HTTP surface
// itself as out-of-scope plumbing). Replaces the teacher's grpc-gateway
// integration: the generated ragv1 package it proxied to is not present
// anywhere in the retrieved pack, and there is no gRPC service behind this
// repo to gateway to.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/knoguchi/ingestor/internal/auth"
	"github.com/knoguchi/ingestor/internal/batch"
	"github.com/knoguchi/ingestor/internal/crawl"
	"github.com/knoguchi/ingestor/internal/domain"
	"github.com/knoguchi/ingestor/internal/extraction"
	"github.com/knoguchi/ingestor/internal/ingerrors"
	"github.com/knoguchi/ingestor/internal/ingestion"
	"github.com/knoguchi/ingestor/internal/jobs"
	"github.com/knoguchi/ingestor/internal/search"
	"github.com/knoguchi/ingestor/internal/storage"
)

// storageEngine is the subset of *storage.Engine the server's read routes need.
type storageEngine interface {
	GetContent(ctx context.Context, id string) (*domain.Content, error)
	ListContent(ctx context.Context, filter storage.ContentFilter, limit, offset int) ([]*domain.Content, int, error)
	SearchContentFTS(ctx context.Context, query string, limit int) ([]domain.SearchHit, error)
	GetEntity(ctx context.Context, id string) (*domain.Entity, error)
	ListEntities(ctx context.Context, filter storage.EntityFilter, limit, offset int) ([]*domain.Entity, int, error)
	GetRelatedEntities(ctx context.Context, id string, relationshipType string) ([]*domain.Entity, error)
	GetEntityContent(ctx context.Context, id string) ([]string, error)
}

var _ storageEngine = (*storage.Engine)(nil)

// HTTPServer wraps the chi router mounting the ingest/storage surface.
type HTTPServer struct {
	server *http.Server
	router *chi.Mux
	logger *slog.Logger
	port   int

	storage     storageEngine
	processor   *ingestion.ContentProcessor
	registry    *extraction.Registry
	extractOpts extraction.Options
	jobRegistry *jobs.Registry
	fetcher     *crawl.Fetcher
	jwtManager  *auth.JWTManager

	mu      sync.Mutex
	handles map[string]*batch.Handle

	semantic *search.Searcher
}

// HTTPServerConfig holds configuration and wired collaborators for the
// HTTP server.
type HTTPServerConfig struct {
	Port           int
	Logger         *slog.Logger
	AllowedOrigins []string

	Storage     storageEngine
	Processor   *ingestion.ContentProcessor
	Registry    *extraction.Registry
	ExtractOpts extraction.Options
	JobRegistry *jobs.Registry
	Fetcher     *crawl.Fetcher
	JWTManager  *auth.JWTManager

	// Semantic is the optional semantic-search augmentation (SPEC_FULL.md
	// §8); nil when Config.EmbeddingModel is unset, in which case
	// /v1/search/semantic is not mounted.
	Semantic *search.Searcher
}

// NewHTTPServer creates a new HTTP server mounting the ingestor REST/WS surface.
func NewHTTPServer(cfg HTTPServerConfig) (*HTTPServer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLoggingMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOriginsOrWildcard(cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	router.Get("/healthz", healthCheckHandler())
	router.Get("/readyz", readinessCheckHandler())

	s := &HTTPServer{
		router:      router,
		logger:      logger,
		port:        cfg.Port,
		storage:     cfg.Storage,
		processor:   cfg.Processor,
		registry:    cfg.Registry,
		extractOpts: cfg.ExtractOpts,
		jobRegistry: cfg.JobRegistry,
		fetcher:     cfg.Fetcher,
		jwtManager:  cfg.JWTManager,
		handles:     make(map[string]*batch.Handle),
		semantic:    cfg.Semantic,
	}
	s.routes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

func allowedOriginsOrWildcard(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func (s *HTTPServer) routes() {
	s.router.Route("/v1", func(r chi.Router) {
		if s.jwtManager != nil {
			r.Use(auth.Middleware(s.jwtManager))
		}

		r.Post("/content", s.handleProcessContent)
		r.Get("/content/{id}", s.handleGetContent)
		r.Get("/content", s.handleListContent)
		r.Get("/search", s.handleSearchContentFTS)
		if s.semantic != nil {
			r.Get("/search/semantic", s.handleSearchSemantic)
		}

		r.Post("/extract", s.handleExtractEntities)

		r.Post("/batch", s.handleProcessBatch)
		r.Get("/batch/{jobID}", s.handleGetBatch)
		r.Post("/batch/{jobID}/cancel", s.handleCancelBatch)
		r.Get("/batch/{jobID}/events", s.handleBatchEvents)

		r.Get("/entities/{id}", s.handleGetEntity)
		r.Get("/entities", s.handleListEntities)
		r.Get("/entities/{id}/related", s.handleGetRelatedEntities)
		r.Get("/entities/{id}/content", s.handleGetEntityContent)
	})
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// GetRouter returns the underlying chi router for additional route registration
func (s *HTTPServer) GetRouter() *chi.Mux {
	return s.router
}

// ---- content / extraction handlers ----

type processContentRequest struct {
	Source      string `json:"source"`
	ContentType string `json:"contentType"`
	Text        string `json:"text"`
	FilePath    string `json:"filePath"`
	Title       string `json:"title"`
}

func (s *HTTPServer) handleProcessContent(w http.ResponseWriter, r *http.Request) {
	var req processContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ingerrors.Wrap(ingerrors.Validation, "decode request body", err))
		return
	}

	ownerID := auth.OwnerID(r.Context())
	result, err := s.processor.ProcessContent(r.Context(), req.Source, []byte(req.Text), req.FilePath, ownerID, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleGetContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	content, err := s.storage.GetContent(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (s *HTTPServer) handleListContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.ContentFilter{
		OwnerID:     q.Get("owner"),
		ContentType: q.Get("type"),
	}
	limit, offset := paginationParams(q)
	items, total, err := s.storage.ListContent(r.Context(), filter, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total, "limit": limit, "offset": offset})
}

func (s *HTTPServer) handleSearchContentFTS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, ingerrors.New(ingerrors.Validation, "missing query parameter q"))
		return
	}
	limit, _ := paginationParams(q)
	hits, err := s.storage.SearchContentFTS(r.Context(), query, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func (s *HTTPServer) handleSearchSemantic(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, ingerrors.New(ingerrors.Validation, "missing query parameter q"))
		return
	}
	ownerID := auth.OwnerID(r.Context())
	limit, _ := paginationParams(q)

	hits, err := s.semantic.Search(r.Context(), ownerID, query, search.Options{TopK: limit})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

type extractEntitiesRequest struct {
	Content     string   `json:"content"`
	ContentType string   `json:"contentType"`
	EntityTypes []string `json:"entityTypes"`
	Context     string   `json:"context"`
	Language    string   `json:"language"`
}

func (s *HTTPServer) handleExtractEntities(w http.ResponseWriter, r *http.Request) {
	var req extractEntitiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ingerrors.Wrap(ingerrors.Validation, "decode request body", err))
		return
	}

	opts := s.extractOpts
	if len(req.EntityTypes) > 0 {
		opts.EntityTypes = req.EntityTypes
	}
	if req.Context != "" {
		opts.Context = req.Context
	}
	if req.Language != "" {
		opts.Language = req.Language
	}

	extractor := s.registry.Lookup(req.ContentType)
	result := extractor.Extract(r.Context(), req.Content, req.ContentType, opts)
	writeJSON(w, http.StatusOK, result)
}

// ---- batch / job handlers ----

type batchItemRequest struct {
	Priority int    `json:"priority"`
	Payload  string `json:"payload"`
}

type processBatchRequest struct {
	Type    domain.JobType     `json:"type"`
	Items   []batchItemRequest `json:"items"`
	Options batch.Options      `json:"options"`
}

func (s *HTTPServer) handleProcessBatch(w http.ResponseWriter, r *http.Request) {
	var req processBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ingerrors.Wrap(ingerrors.Validation, "decode request body", err))
		return
	}
	if len(req.Items) == 0 {
		writeError(w, ingerrors.New(ingerrors.Validation, "batch must contain at least one item"))
		return
	}

	ownerID := auth.OwnerID(r.Context())
	inputRefs := make([]string, len(req.Items))
	for i, it := range req.Items {
		inputRefs[i] = it.Payload
	}

	job, jobItems, err := s.jobRegistry.Create(r.Context(), req.Type, ownerID, optionsToMap(req.Options), inputRefs)
	if err != nil {
		writeError(w, err)
		return
	}

	inner, err := s.processorFor(req.Type, ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	tracked := jobs.NewTrackedProcessor(s.jobRegistry, job.ID, inner)

	if err := s.jobRegistry.Start(r.Context(), job.ID); err != nil {
		writeError(w, err)
		return
	}

	items := make([]batch.Item, len(jobItems))
	for i, it := range jobItems {
		items[i] = batch.Item{ID: it.ID, Priority: req.Items[i].Priority, Payload: it.InputRef}
	}

	engine := batch.NewEngine(tracked)
	handle := engine.ProcessBatch(context.Background(), job.ID, items, req.Options)

	s.mu.Lock()
	s.handles[job.ID] = handle
	s.mu.Unlock()

	go s.awaitBatch(job.ID, handle)

	writeJSON(w, http.StatusAccepted, map[string]any{"jobId": job.ID, "batchId": handle.BatchID})
}

func (s *HTTPServer) awaitBatch(jobID string, handle *batch.Handle) {
	result := <-handle.Done
	status := domain.JobStatusCompleted
	if result.Failed > 0 && result.Successful == 0 {
		status = domain.JobStatusFailed
	}
	if err := s.jobRegistry.Finish(context.Background(), jobID, status); err != nil {
		s.logger.Error("failed to finish job", "job_id", jobID, "error", err)
	}
	s.mu.Lock()
	delete(s.handles, jobID)
	s.mu.Unlock()
}

func (s *HTTPServer) processorFor(jobType domain.JobType, ownerID string) (batch.Processor, error) {
	switch jobType {
	case domain.JobTypeFolderImport, domain.JobTypeReprocess:
		return ingestion.NewFileProcessor(s.processor, ownerID), nil
	case domain.JobTypeURLCrawl:
		return crawl.NewProcessor(s.fetcher, s.processor, ownerID), nil
	default:
		return nil, ingerrors.New(ingerrors.Validation, "unsupported job type: "+string(jobType))
	}
}

func optionsToMap(opts batch.Options) map[string]any {
	return map[string]any{
		"maxConcurrency":     opts.MaxConcurrency,
		"dynamicConcurrency": opts.DynamicConcurrency,
		"continueOnError":    opts.ContinueOnError,
		"itemTimeoutMs":      opts.ItemTimeout.Milliseconds(),
	}
}

func (s *HTTPServer) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, items, err := s.jobRegistry.Get(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job, "items": items})
}

func (s *HTTPServer) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.jobRegistry.Cancel(r.Context(), jobID); err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	handle, ok := s.handles[jobID]
	s.mu.Unlock()
	if ok {
		handle.Cancel()
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleBatchEvents streams a running batch's progress/resources events over
// a WebSocket connection until the batch finishes or the client disconnects
// (spec.md §5: "event subscribers that cannot keep up are dropped" — the
// underlying Events channels already drop on overflow, this just relays).
func (s *HTTPServer) handleBatchEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	s.mu.Lock()
	handle, ok := s.handles[jobID]
	s.mu.Unlock()
	if !ok {
		writeError(w, ingerrors.New(ingerrors.NotFound, "no running batch for job "+jobID))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		select {
		case ev, open := <-handle.Events.Progress:
			if !open {
				return
			}
			if err := conn.WriteJSON(map[string]any{"type": "progress", "data": ev}); err != nil {
				return
			}
		case ev, open := <-handle.Events.Resources:
			if !open {
				return
			}
			if err := conn.WriteJSON(map[string]any{"type": "resources", "data": ev}); err != nil {
				return
			}
		case <-handle.Done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// ---- entity handlers ----

func (s *HTTPServer) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entity, err := s.storage.GetEntity(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (s *HTTPServer) handleListEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.EntityFilter{Type: domain.EntityType(q.Get("type"))}
	limit, offset := paginationParams(q)
	items, total, err := s.storage.ListEntities(r.Context(), filter, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total, "limit": limit, "offset": offset})
}

func (s *HTTPServer) handleGetRelatedEntities(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	relType := r.URL.Query().Get("relationshipType")
	related, err := s.storage.GetRelatedEntities(r.Context(), id, relType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": related})
}

func (s *HTTPServer) handleGetEntityContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	contentIDs, err := s.storage.GetEntityContent(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contentIds": contentIDs})
}

// ---- shared helpers ----

func paginationParams(q map[string][]string) (limit, offset int) {
	limit = 50
	offset = 0
	if v := firstOf(q, "limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := firstOf(q, "offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func firstOf(q map[string][]string, key string) string {
	vs, ok := q[key]
	if !ok || len(vs) == 0 {
		return ""
	}
	return vs[0]
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch ingerrors.KindOf(err) {
	case ingerrors.Validation:
		status = http.StatusBadRequest
	case ingerrors.NotFound:
		status = http.StatusNotFound
	case ingerrors.Conflict:
		status = http.StatusConflict
	case ingerrors.Transient, ingerrors.Upstream:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// requestLoggingMiddleware logs HTTP requests
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			duration := time.Since(start)

			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", duration,
				"remote_addr", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// healthCheckHandler returns a handler for the /healthz endpoint
func healthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

// readinessCheckHandler returns a handler for the /readyz endpoint
func readinessCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
