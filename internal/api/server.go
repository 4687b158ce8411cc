package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/xaenox/linkstash/internal/backup"
	"github.com/xaenox/linkstash/internal/ingest"
	"github.com/xaenox/linkstash/internal/models"
	"github.com/xaenox/linkstash/internal/provider"
	"github.com/xaenox/linkstash/internal/search"
	"github.com/xaenox/linkstash/internal/storage"
	"go.uber.org/zap"
)

// ownerHeader carries the caller's identity. Session issuance and validation
// live in front of this service; an empty header is rejected.
const ownerHeader = "X-User-ID"

type Server struct {
	store    storage.Storage
	gateway  *ingest.Gateway
	engine   *search.Engine
	codec    *backup.Codec
	provider provider.AIProvider
	logger   *zap.Logger
	server   *http.Server
}

func NewServer(store storage.Storage, gateway *ingest.Gateway, engine *search.Engine, codec *backup.Codec, aiProvider provider.AIProvider, logger *zap.Logger) *Server {
	return &Server{
		store:    store,
		gateway:  gateway,
		engine:   engine,
		codec:    codec,
		provider: aiProvider,
		logger:   logger,
	}
}

func (s *Server) Router() http.Handler {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/", s.handleRoot).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	api.HandleFunc("/notes", s.handleCreateNote).Methods("POST")
	api.HandleFunc("/notes", s.handleListNotes).Methods("GET")
	api.HandleFunc("/notes/search", s.handleSearchNotes).Methods("POST")
	api.HandleFunc("/notes/{id}", s.handleGetNote).Methods("GET")
	api.HandleFunc("/notes/{id}", s.handleDeleteNote).Methods("DELETE")

	api.HandleFunc("/backup/export", s.handleExport).Methods("GET")
	api.HandleFunc("/backup/import", s.handleImport).Methods("POST")

	api.HandleFunc("/metadata/extract", s.handleExtractMetadata).Methods("POST")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           86400,
	})

	return c.Handler(s.logRequests(router))
}

func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting HTTP API server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, err error) {
	s.writeJSON(w, statusCode, map[string]string{"error": err.Error()})
}

// ownerID extracts the caller identity, writing a 401 when it is absent.
func (s *Server) ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := r.Header.Get(ownerHeader)
	if owner == "" {
		s.writeError(w, http.StatusUnauthorized, errors.New("not authenticated"))
		return "", false
	}
	return owner, true
}

// Handlers

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "LinkStash API"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerID(w, r)
	if !ok {
		return
	}

	var req ingest.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	note, err := s.gateway.Submit(r.Context(), owner, req)
	if err != nil {
		var verr *ingest.ValidationError
		if errors.As(err, &verr) {
			s.writeError(w, http.StatusBadRequest, verr)
			return
		}
		s.logger.Error("Failed to create note", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, errors.New("failed to create note"))
		return
	}

	s.writeJSON(w, http.StatusCreated, note)
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerID(w, r)
	if !ok {
		return
	}

	opts := storage.ListOptions{
		Tag:   r.URL.Query().Get("tag"),
		Page:  queryInt(r, "page", 1),
		Limit: queryInt(r, "limit", 50),
	}

	notes, total, err := s.store.ListNotes(r.Context(), owner, opts)
	if err != nil {
		s.logger.Error("Failed to list notes", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, errors.New("failed to list notes"))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"notes": notes,
		"total": total,
		"page":  opts.Page,
	})
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerID(w, r)
	if !ok {
		return
	}

	note, err := s.store.GetNote(r.Context(), owner, mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, storage.ErrNotFound)
			return
		}
		s.logger.Error("Failed to get note", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, errors.New("failed to get note"))
		return
	}

	s.writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerID(w, r)
	if !ok {
		return
	}

	// Safe mid-enrichment: the in-flight attempt finds the note gone at
	// commit time and discards its result.
	err := s.store.DeleteNote(r.Context(), owner, mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, storage.ErrNotFound)
			return
		}
		s.logger.Error("Failed to delete note", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, errors.New("failed to delete note"))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Note deleted"})
}

func (s *Server) handleSearchNotes(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerID(w, r)
	if !ok {
		return
	}

	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	notes, err := s.engine.Search(r.Context(), owner, req.Query)
	if err != nil {
		s.logger.Error("Search failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, errors.New("search failed"))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerID(w, r)
	if !ok {
		return
	}

	doc, err := s.codec.Export(r.Context(), owner)
	if err != nil {
		s.logger.Error("Export failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, errors.New("export failed"))
		return
	}

	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.ownerID(w, r)
	if !ok {
		return
	}

	var req struct {
		Notes []*models.Note `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	result, err := s.codec.Import(r.Context(), owner, req.Notes)
	if err != nil {
		s.logger.Error("Import failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, errors.New("import failed"))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"imported": result.Imported,
		"skipped":  result.Skipped,
		"errors":   result.Errors,
		"message":  fmt.Sprintf("Imported %d notes", result.Imported),
	})
}

// handleExtractMetadata previews link enrichment for a URL without creating
// a note.
func (s *Server) handleExtractMetadata(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.ownerID(w, r); !ok {
		return
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("url required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	meta, err := s.provider.ExtractLinkMetadata(ctx, req.URL)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Errorf("metadata extraction failed: %w", err))
		return
	}

	summary := ""
	tags := []string{}
	excerpt := fmt.Sprintf("Title: %s\nDescription: %s\nURL: %s", meta.Title, meta.Description, req.URL)
	if summary, err = s.provider.Summarize(ctx, excerpt); err != nil {
		s.logger.Warn("Preview summarization failed", zap.Error(err))
	} else if tags, err = s.provider.Tag(ctx, summary); err != nil {
		s.logger.Warn("Preview tagging failed", zap.Error(err))
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"title":           meta.Title,
		"description":     meta.Description,
		"thumbnail":       meta.Thumbnail,
		"summary":         summary,
		"tags":            tags,
		"source_platform": models.DetectPlatform(req.URL),
	})
}

func queryInt(r *http.Request, param string, fallback int) int {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
