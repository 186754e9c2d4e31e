package web

// errors.go provides unified error response handling for the web layer.
//
// It ensures all errors are:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as user-friendly messages with action suggestions
//   - Given the status code their type calls for
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err, fallback)
//  3. statusFor picks the status from the error type, or fallback
//  4. Error is mapped via core.MapError to get user-friendly message
//  5. Technical error + context is logged with request ID for correlation

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/leadintake/internal/core"
	"github.com/JonMunkholm/leadintake/internal/logging"
	"github.com/JonMunkholm/leadintake/internal/partner"
	"github.com/JonMunkholm/leadintake/internal/store"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code,omitempty"`

	// Errors lists field violations for a single lead.
	Errors []core.FieldError `json:"errors,omitempty"`

	// Failures lists failing rows of a rejected batch.
	Failures []core.RowFailure `json:"failures,omitempty"`

	// Fields lists invalid partner request fields.
	Fields []partner.ValidationError `json:"fields,omitempty"`
}

// respondError handles error responses with user-friendly messages.
// fallback is used when the error type does not determine the status.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, fallback int) {
	// Partner errors are relayed as the partner sent them.
	var upstream *partner.UpstreamError
	if errors.As(err, &upstream) {
		logging.FromContext(r.Context()).Warn("partner error relayed",
			"partner", upstream.Partner,
			"status", upstream.StatusCode,
			"path", r.URL.Path,
		)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(upstream.StatusCode)
		_, _ = w.Write(upstream.Body)
		return
	}

	statusCode := statusFor(err, fallback)
	userMsg := core.MapError(err)
	var br *badRequest
	if errors.As(err, &br) && userMsg.Code == "ERR000" {
		userMsg = core.UserMessage{
			Message: br.msg,
			Action:  "Check the request and try again",
			Code:    "REQ001",
		}
	}

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", args...)
	} else {
		logger.Info("request rejected", args...)
	}

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}

	var batch *core.BatchValidationError
	var single *core.SchemaValidationError
	switch {
	case errors.As(err, &batch):
		resp.Failures = batch.Failures
	case errors.As(err, &single):
		resp.Errors = single.Errors
	default:
		resp.Fields = partnerFields(err)
	}

	switch {
	case errors.Is(err, core.ErrTooManyIngests):
		w.Header().Set("Retry-After", "5")
	case errors.Is(err, core.ErrShuttingDown):
		w.Header().Set("Retry-After", "30")
	}

	writeJSONStatus(w, statusCode, resp)
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error, fallback int) int {
	var (
		typeErr     *core.UnsupportedFileTypeError
		batchErr    *core.BatchValidationError
		rowErr      *core.RowError
		schemaErr   *core.SchemaValidationError
		filterErr   *store.InvalidFilterError
		storageErr  *store.StorageError
		partnerErr  *partner.ValidationError
		maxBytesErr *http.MaxBytesError
		badReq      *badRequest
	)

	switch {
	case errors.As(err, &typeErr), errors.As(err, &batchErr), errors.As(err, &rowErr):
		return http.StatusBadRequest
	case errors.As(err, &schemaErr), errors.As(err, &partnerErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &filterErr):
		return http.StatusBadRequest
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrEmptyFile):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTooManyIngests):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrShuttingDown), errors.Is(err, partner.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &storageErr):
		return http.StatusInternalServerError
	case errors.As(err, &badReq):
		return http.StatusBadRequest
	}
	return fallback
}

// partnerFields collects partner request validation errors.
func partnerFields(err error) []partner.ValidationError {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		var ve *partner.ValidationError
		if errors.As(err, &ve) {
			return []partner.ValidationError{*ve}
		}
		return nil
	}
	var out []partner.ValidationError
	for _, e := range joined.Unwrap() {
		var ve *partner.ValidationError
		if errors.As(e, &ve) {
			out = append(out, *ve)
		}
	}
	return out
}

// badRequest is an error for malformed requests that never reached the
// service.
type badRequest struct {
	msg string
	err error
}

func (e *badRequest) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *badRequest) Unwrap() error { return e.err }

func newBadRequest(msg string, err error) error {
	return &badRequest{msg: msg, err: err}
}

// parseID reads the {id} URL parameter.
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, newBadRequest("invalid lead id", nil)
	}
	return id, nil
}
