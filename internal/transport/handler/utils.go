package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/trunov/webpbucket/internal/objectstore"
	"github.com/trunov/webpbucket/internal/pipeline"
)

type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeConversionError maps a pipeline error onto an HTTP status.
func writeConversionError(w http.ResponseWriter, err error) {
	var (
		status = http.StatusInternalServerError
		code   = "internal"
	)

	switch {
	case errors.Is(err, pipeline.ErrUnsupportedKey):
		status, code = http.StatusBadRequest, "unsupported_key"
	case errors.Is(err, pipeline.ErrDownload) && objectstore.IsNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, pipeline.ErrDecode):
		status, code = http.StatusUnprocessableEntity, "decode_failed"
	case errors.Is(err, pipeline.ErrEncode):
		status, code = http.StatusInternalServerError, "encode_failed"
	case errors.Is(err, pipeline.ErrDownload):
		status, code = http.StatusBadGateway, "download_failed"
	case errors.Is(err, pipeline.ErrUpload):
		status, code = http.StatusBadGateway, "upload_failed"
	case errors.Is(err, pipeline.ErrListing):
		status, code = http.StatusBadGateway, "listing_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusServiceUnavailable, "cancelled"
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSONError(w, err.Error(), code, status)
}

func validationErrorsToMap(err error) map[string]string {
	errs := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, e := range verrs {
			field := e.Field()
			switch e.Tag() {
			case "required":
				errs[field] = "is required"
			case "max":
				errs[field] = "exceeds maximum length"
			default:
				errs[field] = "invalid value"
			}
		}
	} else {
		errs["error"] = err.Error()
	}
	return errs
}

func writeJSONError(w http.ResponseWriter, message string, code string, status int) {
	writeJSON(w, status, APIError{
		Error: message,
		Code:  code,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
