package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	appdumps "github.com/bryanwahyu/st22-gateway/internal/application/dumps"
	domai "github.com/bryanwahyu/st22-gateway/internal/domain/ai"
	domain "github.com/bryanwahyu/st22-gateway/internal/domain/dumps"
	"github.com/bryanwahyu/st22-gateway/internal/middleware"
)

// maxBodyBytes caps request bodies; dumps carry source excerpts, not files.
const maxBodyBytes = 4 << 20

var errNotFound = errors.New("not found")

// DumpService is the application surface the router drives
type DumpService interface {
	Submit(ctx context.Context, cmd appdumps.SubmitCommand) (*appdumps.View, error)
	Predict(ctx context.Context, prompt string) (*domai.NormalizedResult, error)
	Get(ctx context.Context, id domain.RecordID) (*appdumps.View, error)
	ListRecent(ctx context.Context, limit int) ([]*appdumps.View, error)
}

// Options configures the middleware chain around the routes
type Options struct {
	Log            *zap.Logger
	APIKeys        []string
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	// Health checks served on /healthz, keyed by name
	Health map[string]middleware.HealthChecker
}

type Router struct {
	svc DumpService
	log *zap.Logger
}

func NewRouter(svc DumpService, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{svc: svc, log: log}

	mux := chi.NewRouter()
	mux.Use(middleware.Logging(log))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.LivenessHandler)
	mux.Get("/healthz", middleware.HealthHandler(opts.Health))
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Group(func(rt chi.Router) {
		rt.Use(middleware.APIKeyAuth(opts.APIKeys))
		if opts.RateLimitRPS > 0 {
			rt.Use(middleware.RateLimitMiddleware(opts.RateLimitRPS, opts.RateLimitBurst))
		}

		rt.Post("/v1/predict", r.wrap(r.handlePredict))
		rt.Route("/api/dumps", func(rt chi.Router) {
			rt.Post("/", r.wrap(r.handleSubmit))
			rt.Get("/", r.wrap(r.handleList))
			rt.Get("/{id}", r.wrap(r.handleGet))
		})
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status := statusFor(err)
			detail := err.Error()
			if status == http.StatusInternalServerError {
				r.log.Error("request failed",
					zap.String("request_id", middleware.RequestID(req.Context())),
					zap.String("path", req.URL.Path),
					zap.Error(err))
			}
			if status == http.StatusNotFound {
				detail = "not found"
			}
			writeJSON(w, status, map[string]string{"detail": detail})
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domai.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, domai.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domai.ErrAuthentication), errors.Is(err, domai.ErrProvider):
		return http.StatusBadGateway
	default:
		// ErrConfiguration, ErrStorage and anything unexpected
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, req *http.Request, v any) error {
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %w", domain.ErrInvalidInput, err)
	}
	return nil
}

// POST /v1/predict
// Body: {"prompt": "..."}
func (r *Router) handlePredict(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeBody(w, req, &body); err != nil {
		return err
	}

	middleware.IncrementPredictions()
	res, err := r.svc.Predict(req.Context(), body.Prompt)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"result": res})
}

// POST /api/dumps
// Body: the ST22 dump, keyed by dump_header.id
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	var payload domain.Payload
	if err := decodeBody(w, req, &payload); err != nil {
		return err
	}
	if payload == nil {
		return fmt.Errorf("%w: body must be a JSON object", domain.ErrInvalidInput)
	}
	if err := middleware.ValidateRecordID(string(payload.ID())); err != nil {
		return fmt.Errorf("%w: dump_header.id: %w", domain.ErrInvalidInput, err)
	}

	done := middleware.StartAnalysis()
	view, err := r.svc.Submit(req.Context(), appdumps.SubmitCommand{Payload: payload})
	done(err)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, view)
}

// GET /api/dumps/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRecordID(id); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	view, err := r.svc.Get(req.Context(), domain.RecordID(id))
	if err != nil {
		return err
	}
	if view == nil {
		return errNotFound
	}
	return writeJSON(w, http.StatusOK, view)
}

// GET /api/dumps?limit=50
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	var limit int
	if raw := req.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: limit must be an integer", domain.ErrInvalidInput)
		}
		limit = n
	}

	list, err := r.svc.ListRecent(req.Context(), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}
