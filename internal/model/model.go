// Package model defines the core domain types for club ride registration.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultRideLevel is the category blank ride levels are counted under.
const DefaultRideLevel = "unassigned"

// State is the lifecycle position of a single registration.
type State string

const (
	StateActiveConfirmed     State = "ACTIVE_CONFIRMED"
	StateActiveWaitlisted    State = "ACTIVE_WAITLISTED"
	StateCancelledConfirmed  State = "CANCELLED_CONFIRMED"
	StateCancelledWaitlisted State = "CANCELLED_WAITLISTED"
)

// Registration is one user's signup for a ride level of an event.
// Rows are never deleted; CancelledAt marks a soft cancel.
type Registration struct {
	ID                 string     `json:"id"`
	EventID            int64      `json:"event_id"`
	RideLevel          string     `json:"ride_level"`
	UserID             string     `json:"user_id"`
	IsWaitlist         bool       `json:"is_waitlist"`
	WaitlistJoinedAt   *time.Time `json:"waitlist_joined_at,omitempty"`
	WaitlistPromotedAt *time.Time `json:"waitlist_promoted_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Active reports whether the registration has not been cancelled.
func (r *Registration) Active() bool {
	return r.CancelledAt == nil
}

// State derives the lifecycle state from the stored flags.
func (r *Registration) State() State {
	switch {
	case r.Active() && r.IsWaitlist:
		return StateActiveWaitlisted
	case r.Active():
		return StateActiveConfirmed
	case r.IsWaitlist:
		return StateCancelledWaitlisted
	default:
		return StateCancelledConfirmed
	}
}

// CapacitySnapshot counts active confirmed registrations of one event.
type CapacitySnapshot struct {
	EventID int64          `json:"event_id"`
	Total   int            `json:"total"`
	ByLevel map[string]int `json:"by_level"`
}

// NewCapacitySnapshot folds raw per-level counts into a snapshot,
// merging levels that normalise to the same tag.
func NewCapacitySnapshot(eventID int64, counts map[string]int) CapacitySnapshot {
	snap := CapacitySnapshot{EventID: eventID, ByLevel: make(map[string]int, len(counts))}
	for level, n := range counts {
		snap.ByLevel[NormalizeRideLevel(level)] += n
		snap.Total += n
	}
	return snap
}

// NormalizeRideLevel trims the tag and maps blank values to DefaultRideLevel.
func NormalizeRideLevel(level string) string {
	level = strings.TrimSpace(level)
	if level == "" {
		return DefaultRideLevel
	}
	return level
}

// ParseEventID parses a positive integer event id.
func ParseEventID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: eventId is required", ErrValidation)
	}
	if strings.TrimLeft(raw, "0123456789") != "" {
		return 0, fmt.Errorf("%w: eventId must be a positive integer", ErrValidation)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: eventId must be a positive integer", ErrValidation)
	}
	return id, nil
}

// Contact is where promotion emails are sent.
type Contact struct {
	UserID   string
	Email    string
	FullName string
}

// CancelRequest is the payload for cancelling the caller's registration.
type CancelRequest struct {
	EventID   int64  `json:"eventId" validate:"required,gt=0"`
	RideLevel string `json:"rideLevel" validate:"required,max=64"`
}

// CancelLinkRequest cancels using the token from a promotion email.
type CancelLinkRequest struct {
	Token string `json:"token" validate:"required"`
}

// RegisterRequest is the payload for signing up to a ride level.
type RegisterRequest struct {
	EventID   int64  `json:"eventId" validate:"required,gt=0"`
	RideLevel string `json:"rideLevel" validate:"required,max=64"`
}

// SuccessResponse acknowledges a request without further detail.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Promotion describes a waitlisted registration that just took a freed seat.
type Promotion struct {
	RegistrationID string    `json:"registration_id"`
	EventID        int64     `json:"event_id"`
	RideLevel      string    `json:"ride_level"`
	UserID         string    `json:"user_id"`
	PromotedAt     time.Time `json:"promoted_at"`
}
