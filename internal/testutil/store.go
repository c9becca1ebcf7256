// Package testutil holds shared fixtures: an in-memory registration store
// with the same conditional-update semantics as Postgres, and helpers for
// Postgres-backed tests.
package testutil

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/club-ride-registration/internal/model"
	"github.com/google/uuid"
)

type levelKey struct {
	eventID int64
	level   string
}

// MemoryStore is a mutex-guarded registration table.
type MemoryStore struct {
	mu         sync.Mutex
	rows       []model.Registration
	capacities map[levelKey]int
	calls      int

	// Err, when set, is returned by every operation.
	Err error
	// PromoteErr, when set, is returned by Promote only.
	PromoteErr error
	// BeforePromote runs inside Promote before the row is examined, letting
	// tests interleave a competing writer.
	BeforePromote func(id string)
}

// NewMemoryStore returns a store seeded with rows.
func NewMemoryStore(rows ...model.Registration) *MemoryStore {
	s := &MemoryStore{capacities: make(map[levelKey]int)}
	for _, r := range rows {
		s.rows = append(s.rows, clone(r))
	}
	return s
}

// SetCapacity opens a ride level with the given confirmed-seat limit.
func (s *MemoryStore) SetCapacity(eventID int64, level string, capacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capacities[levelKey{eventID, level}] = capacity
}

// Rows returns deep copies of every stored registration.
func (s *MemoryStore) Rows() []model.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Registration, len(s.rows))
	for i, r := range s.rows {
		out[i] = clone(r)
	}
	return out
}

// Get returns a copy of the registration with id.
func (s *MemoryStore) Get(id string) (model.Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ID == id {
			return clone(r), true
		}
	}
	return model.Registration{}, false
}

// Calls reports how many store operations were made.
func (s *MemoryStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Update mutates a row in place, for tests that simulate concurrent writers.
func (s *MemoryStore) Update(id string, fn func(r *model.Registration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id {
			fn(&s.rows[i])
		}
	}
}

func (s *MemoryStore) begin() error {
	s.calls++
	return s.Err
}

func (s *MemoryStore) CountConfirmed(ctx context.Context, eventID int64) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, r := range s.rows {
		if r.EventID == eventID && r.Active() && !r.IsWaitlist {
			counts[r.RideLevel]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) FindActive(ctx context.Context, eventID int64, rideLevel, userID string) (model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return model.Registration{}, err
	}
	for _, r := range s.rows {
		if r.EventID == eventID && r.RideLevel == rideLevel && r.UserID == userID && r.Active() {
			return clone(r), nil
		}
	}
	return model.Registration{}, model.ErrNotFound
}

func (s *MemoryStore) MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return false, err
	}
	for i := range s.rows {
		if s.rows[i].ID == id && s.rows[i].Active() {
			t := at
			s.rows[i].CancelledAt = &t
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) NextWaitlisted(ctx context.Context, eventID int64, rideLevel string, exclude []string) (model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return model.Registration{}, err
	}
	var candidates []model.Registration
	for _, r := range s.rows {
		if r.EventID == eventID && r.RideLevel == rideLevel && r.IsWaitlist && r.Active() && !slices.Contains(exclude, r.ID) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return model.Registration{}, model.ErrNotFound
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return joinedAt(candidates[i]).Before(joinedAt(candidates[j]))
	})
	return clone(candidates[0]), nil
}

func (s *MemoryStore) Promote(ctx context.Context, id string, at time.Time) (bool, error) {
	if s.BeforePromote != nil {
		s.BeforePromote(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return false, err
	}
	if s.PromoteErr != nil {
		return false, s.PromoteErr
	}
	for i := range s.rows {
		if s.rows[i].ID == id && s.rows[i].IsWaitlist && s.rows[i].Active() {
			t := at
			s.rows[i].IsWaitlist = false
			s.rows[i].WaitlistPromotedAt = &t
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Register(ctx context.Context, eventID int64, rideLevel, userID string, at time.Time) (model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return model.Registration{}, err
	}
	capacity, ok := s.capacities[levelKey{eventID, rideLevel}]
	if !ok {
		return model.Registration{}, model.ErrNotFound
	}
	var confirmed, waiting int
	for _, r := range s.rows {
		if r.EventID != eventID || r.RideLevel != rideLevel || !r.Active() {
			continue
		}
		if r.UserID == userID {
			return model.Registration{}, model.ErrAlreadyRegistered
		}
		if r.IsWaitlist {
			waiting++
		} else {
			confirmed++
		}
	}
	reg := model.Registration{
		ID:        uuid.New().String(),
		EventID:   eventID,
		RideLevel: rideLevel,
		UserID:    userID,
		CreatedAt: at,
	}
	if confirmed >= capacity || waiting > 0 {
		joined := at
		reg.IsWaitlist = true
		reg.WaitlistJoinedAt = &joined
	}
	s.rows = append(s.rows, reg)
	return clone(reg), nil
}

// Confirmed builds an active confirmed registration.
func Confirmed(id string, eventID int64, level, userID string) model.Registration {
	return model.Registration{ID: id, EventID: eventID, RideLevel: level, UserID: userID}
}

// Waitlisted builds an active waitlisted registration joined at t.
func Waitlisted(id string, eventID int64, level, userID string, t time.Time) model.Registration {
	return model.Registration{ID: id, EventID: eventID, RideLevel: level, UserID: userID, IsWaitlist: true, WaitlistJoinedAt: &t}
}

func joinedAt(r model.Registration) time.Time {
	if r.WaitlistJoinedAt == nil {
		return r.CreatedAt
	}
	return *r.WaitlistJoinedAt
}

func clone(r model.Registration) model.Registration {
	cp := r
	cp.WaitlistJoinedAt = copyTime(r.WaitlistJoinedAt)
	cp.WaitlistPromotedAt = copyTime(r.WaitlistPromotedAt)
	cp.CancelledAt = copyTime(r.CancelledAt)
	return cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
