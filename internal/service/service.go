// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the registration store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/club-ride-registration/internal/clock"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/model"
)

const (
	defaultStoreTimeout  = 5 * time.Second
	defaultNotifyTimeout = 10 * time.Second

	// maxPromotionAttempts bounds how many candidates are tried when another
	// instance promotes or cancels the head of the waitlist first.
	maxPromotionAttempts = 3
)

// RegistrationStore is the persistence the workflow depends on.
type RegistrationStore interface {
	CountConfirmed(ctx context.Context, eventID int64) (map[string]int, error)
	FindActive(ctx context.Context, eventID int64, rideLevel, userID string) (model.Registration, error)
	MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error)
	NextWaitlisted(ctx context.Context, eventID int64, rideLevel string, exclude []string) (model.Registration, error)
	Promote(ctx context.Context, id string, at time.Time) (bool, error)
	Register(ctx context.Context, eventID int64, rideLevel, userID string, at time.Time) (model.Registration, error)
}

// Notifier tells a promoted user their seat is confirmed.
type Notifier interface {
	NotifyPromotion(ctx context.Context, p model.Promotion) error
}

// RegistrationService orchestrates capacity reads, signups and cancellations.
type RegistrationService struct {
	store         RegistrationStore
	notifier      Notifier
	clock         clock.Clock
	logger        *log.Logger
	storeTimeout  time.Duration
	notifyTimeout time.Duration
}

// Option customises a RegistrationService.
type Option func(*RegistrationService)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(s *RegistrationService) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger overrides the logger used for swallowed failures.
func WithLogger(l *log.Logger) Option {
	return func(s *RegistrationService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeouts bounds store calls and notification delivery.
func WithTimeouts(store, notify time.Duration) Option {
	return func(s *RegistrationService) {
		if store > 0 {
			s.storeTimeout = store
		}
		if notify > 0 {
			s.notifyTimeout = notify
		}
	}
}

// NewRegistrationService constructs the service. A nil store is allowed and
// makes every store-backed operation fail with model.ErrConfiguration; a nil
// notifier disables promotion emails.
func NewRegistrationService(store RegistrationStore, notifier Notifier, opts ...Option) *RegistrationService {
	s := &RegistrationService{
		store:         store,
		notifier:      notifier,
		clock:         clock.NewSystem(),
		logger:        log.Default(),
		storeTimeout:  defaultStoreTimeout,
		notifyTimeout: defaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CancelInput identifies the caller's registration to cancel. When
// RegistrationID is set only that registration may be cancelled.
type CancelInput struct {
	UserID         string
	EventID        int64
	RideLevel      string
	RegistrationID string
}

// RegisterInput identifies the ride level the caller signs up for.
type RegisterInput struct {
	UserID    string
	EventID   int64
	RideLevel string
}

// Capacity counts active confirmed registrations for an event, per ride level.
func (s *RegistrationService) Capacity(ctx context.Context, rawEventID string) (model.CapacitySnapshot, error) {
	eventID, err := model.ParseEventID(rawEventID)
	if err != nil {
		return model.CapacitySnapshot{}, err
	}
	if s.store == nil {
		return model.CapacitySnapshot{}, fmt.Errorf("%w: registration store is not configured", model.ErrConfiguration)
	}

	var counts map[string]int
	err = s.withStore(ctx, func(ctx context.Context) error {
		var err error
		counts, err = s.store.CountConfirmed(ctx, eventID)
		return err
	})
	if err != nil {
		return model.CapacitySnapshot{}, fmt.Errorf("read capacity: %w", err)
	}
	return model.NewCapacitySnapshot(eventID, counts), nil
}

// Register signs the caller up; the store decides confirmed vs waitlisted.
func (s *RegistrationService) Register(ctx context.Context, in RegisterInput) (model.Registration, error) {
	level, err := s.validate(in.UserID, in.EventID, in.RideLevel)
	if err != nil {
		return model.Registration{}, err
	}

	var reg model.Registration
	err = s.withStore(ctx, func(ctx context.Context) error {
		var err error
		reg, err = s.store.Register(ctx, in.EventID, level, in.UserID, s.clock.Now())
		return err
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Registration{}, fmt.Errorf("%w: ride level %q is not open for event %d", model.ErrNotFound, level, in.EventID)
		}
		return model.Registration{}, fmt.Errorf("register: %w", err)
	}
	return reg, nil
}

// Cancel soft-cancels the caller's active registration for the ride level.
// When a confirmed seat is freed the earliest waitlisted registration is
// promoted and its owner notified. The result never reveals whether a
// promotion happened.
func (s *RegistrationService) Cancel(ctx context.Context, in CancelInput) error {
	level, err := s.validate(in.UserID, in.EventID, in.RideLevel)
	if err != nil {
		return err
	}

	var reg model.Registration
	err = s.withStore(ctx, func(ctx context.Context) error {
		var err error
		reg, err = s.store.FindActive(ctx, in.EventID, level, in.UserID)
		return err
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("%w: no active registration for this ride", model.ErrNotFound)
		}
		return fmt.Errorf("find registration: %w", err)
	}
	if in.RegistrationID != "" && reg.ID != in.RegistrationID {
		return fmt.Errorf("%w: registration already cancelled", model.ErrNotFound)
	}

	now := s.clock.Now()
	var cancelled bool
	err = s.withStore(ctx, func(ctx context.Context) error {
		var err error
		cancelled, err = s.store.MarkCancelled(ctx, reg.ID, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("cancel registration: %w", err)
	}
	if !cancelled {
		return fmt.Errorf("%w: registration already cancelled", model.ErrNotFound)
	}

	if reg.IsWaitlist {
		return nil
	}

	// The cancellation has committed. Promotion and notification problems
	// are logged, not returned, so the caller is never told it failed.
	promoted, ok, err := s.promoteNext(ctx, reg.EventID, reg.RideLevel, now)
	if err != nil {
		s.logger.Printf("promotion failed event=%d level=%s cancelled=%s: %v", reg.EventID, reg.RideLevel, reg.ID, err)
		return nil
	}
	if !ok {
		return nil
	}
	s.notify(ctx, model.Promotion{
		RegistrationID: promoted.ID,
		EventID:        promoted.EventID,
		RideLevel:      promoted.RideLevel,
		UserID:         promoted.UserID,
		PromotedAt:     now,
	})
	return nil
}

func (s *RegistrationService) promoteNext(ctx context.Context, eventID int64, level string, now time.Time) (model.Registration, bool, error) {
	var tried []string
	for attempt := 0; attempt < maxPromotionAttempts; attempt++ {
		var candidate model.Registration
		err := s.withStore(ctx, func(ctx context.Context) error {
			var err error
			candidate, err = s.store.NextWaitlisted(ctx, eventID, level, tried)
			return err
		})
		if errors.Is(err, model.ErrNotFound) {
			return model.Registration{}, false, nil
		}
		if err != nil {
			return model.Registration{}, false, fmt.Errorf("select waitlisted: %w", err)
		}

		var ok bool
		err = s.withStore(ctx, func(ctx context.Context) error {
			var err error
			ok, err = s.store.Promote(ctx, candidate.ID, now)
			return err
		})
		if err != nil {
			return model.Registration{}, false, fmt.Errorf("promote %s: %w", candidate.ID, err)
		}
		if ok {
			candidate.IsWaitlist = false
			candidate.WaitlistPromotedAt = &now
			return candidate, true, nil
		}
		tried = append(tried, candidate.ID)
	}
	return model.Registration{}, false, fmt.Errorf("waitlist head kept changing after %d attempts", maxPromotionAttempts)
}

func (s *RegistrationService) notify(ctx context.Context, p model.Promotion) {
	if s.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	if err := s.notifier.NotifyPromotion(nctx, p); err != nil {
		s.logger.Printf("promotion notice not sent event=%d level=%s registration=%s: %v", p.EventID, p.RideLevel, p.RegistrationID, err)
	}
}

func (s *RegistrationService) validate(userID string, eventID int64, rideLevel string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: missing caller identity", model.ErrUnauthorized)
	}
	if eventID <= 0 {
		return "", fmt.Errorf("%w: eventId must be a positive integer", model.ErrValidation)
	}
	level := strings.TrimSpace(rideLevel)
	if level == "" {
		return "", fmt.Errorf("%w: rideLevel is required", model.ErrValidation)
	}
	if s.store == nil {
		return "", fmt.Errorf("%w: registration store is not configured", model.ErrConfiguration)
	}
	return level, nil
}

func (s *RegistrationService) withStore(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return fn(ctx)
}
