package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"photoflow/internal/domain"
	"photoflow/internal/infra"
	"photoflow/internal/middleware"
	"photoflow/internal/providers/vision"
	"photoflow/internal/queue"
	"photoflow/internal/service"
	"photoflow/internal/storage"
)

const maxJSONBody = 1 << 20

// UploadPublisher announces an upload that did not go through a bucket with
// its own event notifications.
type UploadPublisher interface {
	Publish(ctx context.Context, evt queue.UploadEvent) error
}

// HealthChecker reports provider health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) vision.Health
}

type App struct {
	Service   *service.Service
	Providers HealthChecker
	Files     *storage.FileStore
	Uploads   UploadPublisher
	Logger    infra.Logger
	MaxUpload int64
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorBody{Error: errorDetail{Code: errCode, Message: message}})
}

// fail maps domain errors onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		a.json(w, http.StatusBadRequest, errorBody{Error: errorDetail{Code: "validation_failed", Message: verr.Reason, Field: verr.Field}})
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		a.error(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, context.Canceled):
		a.error(w, 499, "canceled", "request canceled")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("http: request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}
