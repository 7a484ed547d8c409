// Package repository implements all database queries for the event listing
// service. It uses pgx directly (no ORM) for transparency and performance.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventhub-app/eventhub/internal/model"
)

// ErrEventNotFound is returned when the requested event does not exist.
var ErrEventNotFound = errors.New("event not found")

// ErrAlreadyEnrolled is returned when the same email enrolls twice. It is
// an idempotent rejection: no state changes.
var ErrAlreadyEnrolled = errors.New("already enrolled in this event")

// ErrStoreConflict is returned when the store keeps rejecting the
// enrollment write after bounded retries.
var ErrStoreConflict = errors.New("store conflict")

// enrollAttempts bounds internal retries on serialization failures before
// ErrStoreConflict is surfaced.
const enrollAttempts = 3

// EventRepository handles persistence for events and their attendee sets.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new event owned by the given user.
func (r *EventRepository) Create(ctx context.Context, ownerID string, req model.CreateEventRequest) (*model.Event, error) {
	event := &model.Event{
		ID:            uuid.New().String(),
		OwnerID:       ownerID,
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		Date:          req.Date.UTC(),
		AttendeeCount: 0,
		CreatedAt:     time.Now().UTC(),
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO events (id, owner_id, name, description, category, date, attendee_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.OwnerID, event.Name, event.Description,
		event.Category, event.Date, event.AttendeeCount, event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

// List returns all events ordered by creation time descending.
func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, owner_id, name, description, category, date, attendee_count, created_at
		 FROM events
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListByOwner returns events created by one user, soonest first.
func (r *EventRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, owner_id, name, description, category, date, attendee_count, created_at
		 FROM events
		 WHERE owner_id = $1
		 ORDER BY date ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events by owner: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetByID returns a single event or ErrEventNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var e model.Event
	err := r.db.QueryRow(ctx,
		`SELECT id, owner_id, name, description, category, date, attendee_count, created_at
		 FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.OwnerID, &e.Name, &e.Description, &e.Category, &e.Date, &e.AttendeeCount, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

// Attendees returns the attendee email set for an event.
func (r *EventRepository) Attendees(ctx context.Context, eventID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_email FROM attendees WHERE event_id = $1 ORDER BY created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// Enroll performs an exactly-once enrollment inside a serialised
// transaction and returns the updated event snapshot.
//
// Concurrent enrollments for the same event must not both pass the
// membership check before either writes (check-then-act race), so the
// event row is locked with SELECT ... FOR UPDATE for the duration of the
// transaction. Row-level locks mean enrollments for different events never
// block each other. The attendee insert and the counter increment commit
// in the same transaction, so a reader can never observe the set and the
// count out of sync.
//
// Serialization failures are retried a bounded number of times before
// surfacing ErrStoreConflict.
func (r *EventRepository) Enroll(ctx context.Context, eventID, userEmail string) (*model.Event, error) {
	var lastErr error
	for attempt := 1; attempt <= enrollAttempts; attempt++ {
		event, err := r.enrollOnce(ctx, eventID, userEmail)
		if err == nil {
			return event, nil
		}
		if !isSerializationFailure(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrStoreConflict, lastErr)
}

func (r *EventRepository) enrollOnce(ctx context.Context, eventID, userEmail string) (*model.Event, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Lock the event row so concurrent enrollments for this event are
	// totally ordered.
	var e model.Event
	err = tx.QueryRow(ctx,
		`SELECT id, owner_id, name, description, category, date, attendee_count, created_at
		 FROM events
		 WHERE id = $1
		 FOR UPDATE`,
		eventID,
	).Scan(&e.ID, &e.OwnerID, &e.Name, &e.Description, &e.Category, &e.Date, &e.AttendeeCount, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}

	// Membership check under the lock.
	var dupCount int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM attendees WHERE event_id = $1 AND user_email = $2`,
		eventID, userEmail,
	).Scan(&dupCount)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if dupCount > 0 {
		err = ErrAlreadyEnrolled
		return nil, err
	}

	// Insert into the attendee set and increment the derived counter in
	// the same atomic unit.
	_, err = tx.Exec(ctx,
		`INSERT INTO attendees (id, event_id, user_email, created_at)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), eventID, userEmail, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert attendee: %w", err)
	}
	err = tx.QueryRow(ctx,
		`UPDATE events SET attendee_count = attendee_count + 1
		 WHERE id = $1
		 RETURNING attendee_count`,
		eventID,
	).Scan(&e.AttendeeCount)
	if err != nil {
		return nil, fmt.Errorf("increment attendee_count: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &e, nil
}

// isSerializationFailure reports whether the error is a Postgres
// serialization failure or deadlock, both worth an internal retry.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func scanEvents(rows pgx.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Name, &e.Description, &e.Category, &e.Date, &e.AttendeeCount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
