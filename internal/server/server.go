// Package server exposes the extraction pipeline over HTTP. Routing goes
// through chi; every failure surfaces as {error: {kind, message}} with the
// status derived from the pipeline's error taxonomy.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/juristech/process-extract/internal/model"
	"github.com/juristech/process-extract/internal/pipeline"
	"github.com/juristech/process-extract/internal/task"
)

// Options configure the HTTP surface.
type Options struct {
	// Version is reported by GET /health.
	Version string
	// AllowedOrigins feeds the CORS middleware. Empty means allow all.
	AllowedOrigins []string
	// MaxUploadBytes caps the multipart request body on the upload routes.
	MaxUploadBytes int64
}

// Server routes HTTP requests into the extraction pipeline.
type Server struct {
	svc  *pipeline.Service
	opts Options
	log  *zap.Logger
}

// New builds a Server around a pipeline service.
func New(svc *pipeline.Service, opts Options) *Server {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		svc:  svc,
		opts: opts,
		log:  zap.L().Named("server"),
	}
}

// Handler assembles the chi router with the full route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/extract", s.handleExtract)
	r.Get("/extract/{caseID}", s.handleGetCase)
	r.Post("/upload", s.handleUpload)
	r.Post("/upload/async", s.handleUploadAsync)
	r.Get("/upload/status/{taskID}", s.handleTaskStatus)
	r.Get("/cases", s.handleListCases)

	return r
}

// logRequests emits one structured line per request once the response is
// written.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// errorBody is the wire shape for every failure response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    model.ErrorKind `json:"kind"`
	Message string          `json:"message"`
}

// writeError classifies err, logs the internal cause and sends the
// client-safe envelope. A saturated task queue maps to 429 so clients know
// to retry; everything else follows the kind taxonomy.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForKind(model.KindOf(err))
	if errors.Is(err, task.ErrQueueFull) {
		status = http.StatusTooManyRequests
	}

	s.log.Warn("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err))

	writeJSON(w, status, errorBody{Error: errorDetail{
		Kind:    model.KindOf(err),
		Message: model.ClientMessage(err),
	}})
}

// statusForKind maps the error taxonomy onto HTTP statuses.
func statusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.ErrKindValidation:
		return http.StatusUnprocessableEntity
	case model.ErrKindDownload:
		return http.StatusBadRequest
	case model.ErrKindExtraction:
		return http.StatusBadGateway
	case model.ErrKindNotFound:
		return http.StatusNotFound
	case model.ErrKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}
