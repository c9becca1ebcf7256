// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/Shivanand-hulikatti/club-ride-registration/internal/auth"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/model"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/service"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// CapacityCacheControl lets the CDN serve capacity for a minute and
// revalidate in the background for five more.
const CapacityCacheControl = "public, s-maxage=60, stale-while-revalidate=300"

// LinkParser verifies cancellation-link tokens.
type LinkParser interface {
	Parse(token string) (auth.CancelClaims, error)
}

// RegistrationHandler holds the HTTP handlers for the registration API.
type RegistrationHandler struct {
	svc   *service.RegistrationService
	links LinkParser
}

// NewRegistrationHandler constructs a RegistrationHandler.
func NewRegistrationHandler(svc *service.RegistrationService, links LinkParser) *RegistrationHandler {
	return &RegistrationHandler{svc: svc, links: links}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body", model.ErrValidation)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %s", model.ErrValidation, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	return nil
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// Capacity handles GET /api/capacity?eventId=
// Returns the active confirmed count of an event with a per-level breakdown.
func (h *RegistrationHandler) Capacity(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Capacity(r.Context(), r.URL.Query().Get("eventId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", CapacityCacheControl)
	writeJSON(w, http.StatusOK, snap)
}

// Cancel handles POST /api/registrations/cancel
// Cancels the caller's registration; a freed seat goes to the waitlist.
func (h *RegistrationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		writeServiceError(w, r, model.ErrUnauthorized)
		return
	}

	var req model.CancelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	err := h.svc.Cancel(r.Context(), service.CancelInput{
		UserID:    id.UserID,
		EventID:   req.EventID,
		RideLevel: req.RideLevel,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.SuccessResponse{Success: true})
}

// CancelByLink handles POST /api/registrations/cancel-link
// Same workflow as Cancel, with the caller and the registration taken from
// the emailed token.
func (h *RegistrationHandler) CancelByLink(w http.ResponseWriter, r *http.Request) {
	var req model.CancelLinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if h.links == nil {
		writeServiceError(w, r, fmt.Errorf("%w: cancel links are not configured", model.ErrConfiguration))
		return
	}

	claims, err := h.links.Parse(req.Token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	err = h.svc.Cancel(r.Context(), service.CancelInput{
		UserID:         claims.Subject,
		EventID:        claims.EventID,
		RideLevel:      claims.RideLevel,
		RegistrationID: claims.ID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.SuccessResponse{Success: true})
}

// Register handles POST /api/registrations
// Signs the caller up; the response says whether they were waitlisted.
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		writeServiceError(w, r, model.ErrUnauthorized)
		return
	}

	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	reg, err := h.svc.Register(r.Context(), service.RegisterInput{
		UserID:    id.UserID,
		EventID:   req.EventID,
		RideLevel: req.RideLevel,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NotFound answers unknown routes with the JSON envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, model.ErrorResponse{Error: "route not found", Code: codeNotFound})
}

func logInternal(r *http.Request, err error) {
	log.Printf("request failed method=%s path=%s: %v", r.Method, r.URL.Path, err)
}
