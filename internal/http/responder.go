package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/example/meetgrid/internal/application"
)

var (
	errBadRequestBody = errors.New("request body is not valid JSON")
	errMissingToken   = errors.New("credentials are required")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, code string, err error) {
	message := statusMessage(status)
	if err != nil {
		message = err.Error()
	}
	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

// handleServiceError maps application errors to a status and a stable code.
// Client messages never include internal detail.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		vErr    *application.ValidationError
		rateErr *application.RateLimitedError
	)
	switch {
	case err == nil:
		r.writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", nil)
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_ERROR",
			Message:   statusMessage(http.StatusUnprocessableEntity),
			Errors:    vErr.FieldErrors,
		})
	case errors.As(err, &rateErr):
		seconds := int(math.Ceil(rateErr.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		r.writeError(ctx, w, http.StatusTooManyRequests, "RATE_LIMITED", nil)
	case errors.Is(err, application.ErrUnauthorized):
		r.writeError(ctx, w, http.StatusForbidden, "UNAUTHORIZED", nil)
	case errors.Is(err, application.ErrNotFound):
		r.writeError(ctx, w, http.StatusNotFound, "NOT_FOUND", nil)
	case errors.Is(err, application.ErrAlreadyClaimed):
		r.writeError(ctx, w, http.StatusConflict, "ALREADY_CLAIMED", errors.New("this participant is already claimed on another device"))
	case errors.Is(err, application.ErrMeetingFrozen):
		r.writeError(ctx, w, http.StatusConflict, "MEETING_FROZEN", errors.New("the meeting is not accepting changes"))
	case errors.Is(err, application.ErrGuestsNotAllowed):
		r.writeError(ctx, w, http.StatusForbidden, "GUESTS_NOT_ALLOWED", errors.New("this meeting does not accept guests"))
	case errors.Is(err, application.ErrAlreadyFinalized):
		r.writeError(ctx, w, http.StatusConflict, "ALREADY_FINALIZED", errors.New("the meeting is already finalized"))
	case errors.Is(err, application.ErrUnavailable):
		r.writeError(ctx, w, http.StatusServiceUnavailable, "UNAVAILABLE", nil)
	case errors.Is(err, application.ErrCreation):
		r.writeError(ctx, w, http.StatusInternalServerError, "CREATION_FAILED", errors.New("the meeting could not be created"))
	default:
		r.writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", nil)
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "the request is malformed"
	case http.StatusForbidden:
		return "the credentials do not permit this action"
	case http.StatusNotFound:
		return "the resource was not found"
	case http.StatusMethodNotAllowed:
		return "method not allowed"
	case http.StatusUnprocessableEntity:
		return "the input is invalid"
	case http.StatusTooManyRequests:
		return "too many requests, try again later"
	case http.StatusServiceUnavailable:
		return "the service is temporarily unavailable"
	default:
		return "internal server error"
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
