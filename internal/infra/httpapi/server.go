// Package httpapi exposes ingestion and dataset management over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/signdata/signdata-processing-service/internal/domain/entity"
	"github.com/signdata/signdata-processing-service/internal/registry"
	"github.com/signdata/signdata-processing-service/internal/usecase"
	"github.com/signdata/signdata-processing-service/internal/validator"
	"go.uber.org/zap"
)

const (
	errInvalidRequestBody = "invalid request body"
	defaultMaxUpload      = 200 << 20
)

type VideoEnqueuer interface {
	Execute(ctx context.Context, req usecase.UploadVideoRequest) (*usecase.UploadVideoResult, error)
}

type JobReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.IngestionJob, error)
	ListRecent(ctx context.Context, limit int) ([]*entity.IngestionJob, error)
}

type Exporter interface {
	Execute(ctx context.Context) (*usecase.ExportResult, error)
}

// Deps are the collaborators behind the routes. Enqueue, Jobs and Export may be nil
// when the queue, database or object store is not configured; their routes then
// answer 503.
type Deps struct {
	Registry  *registry.Registry
	Camera    *usecase.CameraIngestion
	Validator *validator.Validator
	Enqueue   VideoEnqueuer
	Jobs      JobReader
	Export    Exporter
	MaxUpload int64
	Logger    *zap.Logger
}

type Server struct {
	Deps
}

func NewServer(deps Deps) *Server {
	if deps.MaxUpload <= 0 {
		deps.MaxUpload = defaultMaxUpload
	}
	return &Server{Deps: deps}
}

func (s *Server) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.health)

	r.Route("/upload", func(r chi.Router) {
		r.Post("/video", s.uploadVideo)
		r.Post("/camera", s.uploadCamera)
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.listJobs)
		r.Get("/{id}", s.getJob)
	})

	r.Route("/dataset", func(r chi.Router) {
		r.Get("/labels", s.listLabels)
		r.Post("/labels", s.createLabel)
		r.Post("/labels/merge", s.mergeLabels)
		r.Put("/labels/{idx}", s.updateLabel)
		r.Delete("/labels/{idx}", s.deleteLabel)

		r.Get("/samples", s.listSamples)
		r.Post("/samples/add", s.addSample)
		r.Get("/samples/{id}/data", s.sampleData)
		r.Delete("/samples/{id}", s.deleteSample)

		r.Get("/sessions", s.listSessions)
		r.Post("/validate", s.validate)
		r.Post("/export", s.export)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondRegistryError maps registry sentinels onto HTTP statuses.
func respondRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrLabelNotFound), errors.Is(err, registry.ErrSampleNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrLabelInUse), errors.Is(err, registry.ErrLabelExists), errors.Is(err, registry.ErrSameLabel):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func unavailable(w http.ResponseWriter, what string) {
	respondError(w, http.StatusServiceUnavailable, what+" is not configured")
}

// fields reads a flat set of request fields from a JSON object, a multipart form
// or a urlencoded form.
func fields(r *http.Request, maxMemory int64) (map[string]string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	out := map[string]string{}
	switch ct {
	case "application/json":
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			switch tv := v.(type) {
			case nil:
			case string:
				out[k] = tv
			case float64:
				out[k] = strconv.FormatFloat(tv, 'f', -1, 64)
			case bool:
				out[k] = strconv.FormatBool(tv)
			default:
				return nil, fmt.Errorf("field %q must be a scalar", k)
			}
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return nil, err
		}
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				out[k] = v[0]
			}
		}
	default:
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		for k, v := range r.PostForm {
			if len(v) > 0 {
				out[k] = v[0]
			}
		}
	}
	return out, nil
}

func intField(f map[string]string, key string) (int, error) {
	v, ok := f[key]
	if !ok || strings.TrimSpace(v) == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}
