// Package repository implements all database queries for ride registrations.
// It uses pgx directly (no ORM) so every conditional update is visible.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/club-ride-registration/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const registrationColumns = `id::text, event_id, COALESCE(ride_level, ''), user_id, is_waitlist,
	waitlist_joined_at, waitlist_promoted_at, cancelled_at, created_at`

// RegistrationRepository handles persistence for registrations.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// CountConfirmed returns active, non-waitlisted registrations per raw ride level.
func (r *RegistrationRepository) CountConfirmed(ctx context.Context, eventID int64) (map[string]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT COALESCE(ride_level, ''), COUNT(*)
		 FROM event_registrations
		 WHERE event_id = $1 AND NOT is_waitlist AND cancelled_at IS NULL
		 GROUP BY ride_level`,
		eventID,
	)
	if err != nil {
		return nil, storeErr("count confirmed", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var level string
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[level] += n
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("count confirmed", err)
	}
	return counts, nil
}

// FindActive returns the caller's active registration or model.ErrNotFound.
func (r *RegistrationRepository) FindActive(ctx context.Context, eventID int64, rideLevel, userID string) (model.Registration, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM event_registrations
		 WHERE event_id = $1 AND ride_level = $2 AND user_id = $3 AND cancelled_at IS NULL
		 LIMIT 1`,
		eventID, rideLevel, userID,
	)
	reg, err := scanRegistration(row)
	if err != nil {
		return model.Registration{}, storeErr("find active registration", err)
	}
	return reg, nil
}

// MarkCancelled soft-cancels a registration. The cancelled_at guard makes a
// second cancel match zero rows, reported as false.
func (r *RegistrationRepository) MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE event_registrations
		 SET cancelled_at = $2
		 WHERE id = $1 AND cancelled_at IS NULL`,
		id, at,
	)
	if err != nil {
		return false, storeErr("cancel registration", err)
	}
	return tag.RowsAffected() == 1, nil
}

// NextWaitlisted returns the earliest-joined active waitlisted registration
// for the level, skipping ids in exclude, or model.ErrNotFound.
func (r *RegistrationRepository) NextWaitlisted(ctx context.Context, eventID int64, rideLevel string, exclude []string) (model.Registration, error) {
	if exclude == nil {
		exclude = []string{}
	}
	row := r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM event_registrations
		 WHERE event_id = $1 AND ride_level = $2
		   AND is_waitlist AND cancelled_at IS NULL
		   AND NOT (id::text = ANY($3))
		 ORDER BY waitlist_joined_at ASC NULLS LAST, created_at ASC
		 LIMIT 1`,
		eventID, rideLevel, exclude,
	)
	reg, err := scanRegistration(row)
	if err != nil {
		return model.Registration{}, storeErr("next waitlisted", err)
	}
	return reg, nil
}

// Promote moves a still-active waitlisted registration to confirmed.
// It reports false when the row was already promoted or cancelled.
func (r *RegistrationRepository) Promote(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE event_registrations
		 SET is_waitlist = FALSE, waitlist_promoted_at = $2
		 WHERE id = $1 AND is_waitlist AND cancelled_at IS NULL`,
		id, at,
	)
	if err != nil {
		return false, storeErr("promote registration", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Register signs a user up for a ride level inside a single transaction.
//
// The ride level's capacity row is locked with SELECT … FOR UPDATE so two
// concurrent signups cannot both observe the last free seat. A signup takes a
// confirmed seat only while seats are free and nobody is already waiting;
// otherwise it joins the back of the waitlist.
func (r *RegistrationRepository) Register(ctx context.Context, eventID int64, rideLevel, userID string, at time.Time) (model.Registration, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Registration{}, storeErr("begin transaction", err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	var capacity int
	err = tx.QueryRow(ctx,
		`SELECT capacity FROM ride_levels
		 WHERE event_id = $1 AND ride_level = $2
		 FOR UPDATE`,
		eventID, rideLevel,
	).Scan(&capacity)
	if err != nil {
		return model.Registration{}, storeErr("lock ride level", err)
	}

	var dupCount int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM event_registrations
		 WHERE event_id = $1 AND ride_level = $2 AND user_id = $3 AND cancelled_at IS NULL`,
		eventID, rideLevel, userID,
	).Scan(&dupCount); err != nil {
		return model.Registration{}, storeErr("check duplicate", err)
	}
	if dupCount > 0 {
		return model.Registration{}, model.ErrAlreadyRegistered
	}

	var confirmed, waiting int
	if err := tx.QueryRow(ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE NOT is_waitlist),
		   COUNT(*) FILTER (WHERE is_waitlist)
		 FROM event_registrations
		 WHERE event_id = $1 AND ride_level = $2 AND cancelled_at IS NULL`,
		eventID, rideLevel,
	).Scan(&confirmed, &waiting); err != nil {
		return model.Registration{}, storeErr("count level", err)
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

	if _, err := tx.Exec(ctx,
		`INSERT INTO event_registrations (id, event_id, ride_level, user_id, is_waitlist, waitlist_joined_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		reg.ID, reg.EventID, reg.RideLevel, reg.UserID, reg.IsWaitlist, reg.WaitlistJoinedAt, reg.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return model.Registration{}, model.ErrAlreadyRegistered
		}
		return model.Registration{}, storeErr("insert registration", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Registration{}, storeErr("commit transaction", err)
	}
	return reg, nil
}

// ContactRepository resolves user contact details from the profiles table.
type ContactRepository struct {
	db *pgxpool.Pool
}

// NewContactRepository constructs a ContactRepository.
func NewContactRepository(db *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{db: db}
}

// Contact returns the email details for a user or model.ErrNotFound.
func (r *ContactRepository) Contact(ctx context.Context, userID string) (model.Contact, error) {
	var c model.Contact
	err := r.db.QueryRow(ctx,
		`SELECT id, email, full_name FROM profiles WHERE id = $1`,
		userID,
	).Scan(&c.UserID, &c.Email, &c.FullName)
	if err != nil {
		return model.Contact{}, storeErr("get contact", err)
	}
	return c, nil
}

func scanRegistration(row pgx.Row) (model.Registration, error) {
	var reg model.Registration
	err := row.Scan(
		&reg.ID, &reg.EventID, &reg.RideLevel, &reg.UserID, &reg.IsWaitlist,
		&reg.WaitlistJoinedAt, &reg.WaitlistPromotedAt, &reg.CancelledAt, &reg.CreatedAt,
	)
	return reg, err
}

// storeErr maps pgx failures onto the error taxonomy: missing rows become
// model.ErrNotFound and failed connections model.ErrConfiguration.
func storeErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrNotFound
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%s: %w: %w", op, model.ErrConfiguration, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
