// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/eventhub-app/eventhub/internal/model"
	"github.com/eventhub-app/eventhub/internal/notify"
	"github.com/eventhub-app/eventhub/internal/repository"
)

// EventStore is the persistence surface the event service depends on.
type EventStore interface {
	Create(ctx context.Context, ownerID string, req model.CreateEventRequest) (*model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Event, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
	Attendees(ctx context.Context, eventID string) ([]string, error)
	Enroll(ctx context.Context, eventID, userEmail string) (*model.Event, error)
}

// Broadcaster publishes event snapshots to connected viewers.
type Broadcaster interface {
	Publish(event *model.Event)
}

// Notifier delivers out-of-band notifications, fire-and-forget.
type Notifier interface {
	Send(kind notify.Kind, recipient string, payload notify.Payload)
}

// EventService orchestrates event-related business operations.
type EventService struct {
	events   EventStore
	hub      Broadcaster
	notifier Notifier
	logger   *zap.Logger
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(events EventStore, hub Broadcaster, notifier Notifier, logger *zap.Logger) *EventService {
	return &EventService{events: events, hub: hub, notifier: notifier, logger: logger}
}

// CreateEvent validates the request and delegates to the repository. The
// owner always comes from the authenticated identity.
func (s *EventService) CreateEvent(ctx context.Context, identity model.Identity, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.Description == "" || req.Category == "" {
		return nil, fmt.Errorf("name, description, and category are required")
	}
	if req.Date.IsZero() {
		return nil, fmt.Errorf("event date is required")
	}
	return s.events.Create(ctx, identity.UserID, req)
}

// ListEvents returns all events.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.events.List(ctx)
}

// ListCreated returns the events owned by the authenticated user.
func (s *EventService) ListCreated(ctx context.Context, identity model.Identity) ([]model.Event, error) {
	return s.events.ListByOwner(ctx, identity.UserID)
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("event id is required")
	}
	return s.events.GetByID(ctx, id)
}

// ListAttendees returns the attendee email set for an event.
func (s *EventService) ListAttendees(ctx context.Context, id string) ([]string, error) {
	if _, err := s.events.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.events.Attendees(ctx, id)
}

// Enroll performs an exactly-once enrollment for the authenticated
// identity. On success the updated snapshot is broadcast to viewers and a
// confirmation email is dispatched; both run detached, after the mutation
// has committed, and their failure never reaches the caller.
func (s *EventService) Enroll(ctx context.Context, identity model.Identity, req model.EnrollRequest) (*model.Event, error) {
	if req.EventID == "" {
		return nil, fmt.Errorf("event_id is required")
	}
	email := strings.TrimSpace(strings.ToLower(identity.Email))
	if email == "" {
		return nil, fmt.Errorf("authenticated identity has no email")
	}

	event, err := s.events.Enroll(ctx, req.EventID, email)
	if err != nil {
		// Surface domain errors directly so handlers can set correct HTTP status.
		if errors.Is(err, repository.ErrEventNotFound) ||
			errors.Is(err, repository.ErrAlreadyEnrolled) ||
			errors.Is(err, repository.ErrStoreConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("enroll in event: %w", err)
	}

	// Detached side effects: the caller is acknowledged before these run.
	s.hub.Publish(event)
	s.notifier.Send(notify.KindEnrollmentConfirmation, email, notify.Payload{
		Event:       event,
		DisplayName: strings.TrimSpace(req.DisplayName),
	})
	s.logger.Info("enrollment recorded",
		zap.String("event_id", event.ID),
		zap.String("user_email", email),
		zap.Int("attendee_count", event.AttendeeCount))

	return event, nil
}

// isValidEmail does a basic structural check (no external deps).
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
