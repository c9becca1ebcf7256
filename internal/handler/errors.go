package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Shivanand-hulikatti/club-ride-registration/internal/model"
)

const (
	codeUnauthorized        = "unauthorized"
	codeValidation          = "validation_error"
	codeNotFound            = "not_found"
	codeConflict            = "conflict"
	codeRateLimited         = "rate_limited"
	codeConfiguration       = "configuration_error"
	codeUpstreamUnavailable = "upstream_unavailable"
	codeInternal            = "internal_error"
)

// statusFor maps an error onto its HTTP status and machine code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, model.ErrAlreadyRegistered):
		return http.StatusConflict, codeConflict
	case errors.Is(err, model.ErrRateLimited):
		return http.StatusTooManyRequests, codeRateLimited
	case errors.Is(err, model.ErrConfiguration):
		return http.StatusInternalServerError, codeConfiguration
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return http.StatusBadGateway, codeUpstreamUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// writeServiceError writes the JSON envelope. Client-caused errors carry
// their message; server-side ones are logged and replaced by a fixed text.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)

	var msg string
	switch code {
	case codeConfiguration:
		logInternal(r, err)
		msg = "service is not configured"
	case codeInternal, codeUpstreamUnavailable:
		logInternal(r, err)
		msg = "internal error"
	default:
		msg = publicMessage(err)
	}
	writeJSON(w, status, model.ErrorResponse{Error: msg, Code: code})
}

// publicMessage drops the wrapping operation prefixes and keeps the
// human-readable tail after the error kind.
func publicMessage(err error) string {
	msg := err.Error()
	for _, kind := range []error{
		model.ErrUnauthorized, model.ErrValidation, model.ErrNotFound,
		model.ErrAlreadyRegistered, model.ErrRateLimited,
	} {
		prefix := kind.Error()
		if i := strings.Index(msg, prefix); i >= 0 {
			if rest := strings.TrimPrefix(msg[i+len(prefix):], ": "); rest != "" {
				return rest
			}
			return prefix
		}
	}
	return msg
}
