package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/trunov/webpbucket/internal/pipeline"
)

type UseCase interface {
	ConvertImage(ctx context.Context, key string) error
	ConvertAllImages(ctx context.Context) *pipeline.BatchRun
	ListImages(ctx context.Context) ([]string, error)
	BatchStatus(ctx context.Context) (pipeline.Summary, bool)
}

const healthTimeout = 2 * time.Second

// Pinger is a dependency checked by Healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	useCase   UseCase
	validator *validator.Validate
	deps      map[string]Pinger
}

func New(useCase UseCase) *Handler {
	return &Handler{
		useCase:   useCase,
		validator: validator.New(),
		deps:      map[string]Pinger{},
	}
}

// WithDependency adds a named dependency to the health check.
func (h *Handler) WithDependency(name string, p Pinger) *Handler {
	h.deps[name] = p
	return h
}

// ConvertImage converts one object and answers once the upload is done.
func (h *Handler) ConvertImage(w http.ResponseWriter, r *http.Request) {
	params := ConvertImageParams{Key: r.URL.Query().Get("key")}
	if err := h.validator.Struct(params); err != nil {
		writeJSON(w, http.StatusBadRequest, validationErrorsToMap(err))
		return
	}

	if err := h.useCase.ConvertImage(r.Context(), params.Key); err != nil {
		writeConversionError(w, err)
		return
	}

	writeText(w, http.StatusOK, msgConverted)
}

// ConvertAllImages starts a batch and returns without waiting for it.
func (h *Handler) ConvertAllImages(w http.ResponseWriter, r *http.Request) {
	run := h.useCase.ConvertAllImages(r.Context())

	w.Header().Set("X-Batch-ID", run.ID)
	writeText(w, http.StatusAccepted, msgStarted)
}

func (h *Handler) BatchStatus(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.useCase.BatchStatus(r.Context())
	if !ok {
		writeJSONError(w, "no batch has been started", "not_found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	keys, err := h.useCase.ListImages(r.Context())
	if err != nil {
		writeConversionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("dependency", name).Msg("health check failed")
			writeJSONError(w, name+" unavailable", "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	writeText(w, http.StatusOK, "ok")
}
