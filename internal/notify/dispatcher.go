// Package notify isolates the outbound-email side effect from the
// transactional core. Delivery is fire-and-forget from the caller's
// perspective: transient transport failures are retried a bounded number
// of times, permanent failures are logged and abandoned, and nothing ever
// propagates back to the request that triggered the notification.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eventhub-app/eventhub/internal/model"
)

// Kind identifies the notification template to render.
type Kind string

const (
	// KindResetCode delivers a password-reset code out-of-band.
	KindResetCode Kind = "reset_code"
	// KindEnrollmentConfirmation confirms a successful event enrollment.
	KindEnrollmentConfirmation Kind = "enrollment_confirmation"
)

const (
	maxAttempts  = 3
	retryBackoff = 2 * time.Second
	sendTimeout  = 30 * time.Second
)

// Payload carries the template inputs. Code is set for reset codes; Event
// and DisplayName for enrollment confirmations.
type Payload struct {
	Code        string
	Event       *model.Event
	DisplayName string
}

// Sender is the outbound mail transport. Implementations may fail
// transiently; the dispatcher owns the retry policy.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Dispatcher renders and delivers notifications on their own goroutines.
type Dispatcher struct {
	sender  Sender
	logger  *zap.Logger
	backoff time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(sender Sender, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, logger: logger, backoff: retryBackoff}
}

// Send delivers a notification asynchronously. It returns immediately; the
// caller is never told whether delivery succeeded.
func (d *Dispatcher) Send(kind Kind, recipient string, payload Payload) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(kind, recipient, payload)
	}()
}

// Wait blocks until all in-flight deliveries have finished or been
// abandoned. Used on shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(kind Kind, recipient string, payload Payload) {
	subject, body := render(kind, payload)

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err = d.sender.Send(ctx, recipient, subject, body)
		cancel()
		if err == nil {
			d.logger.Info("notification sent",
				zap.String("kind", string(kind)),
				zap.String("recipient", recipient))
			return
		}
		d.logger.Warn("notification delivery failed",
			zap.String("kind", string(kind)),
			zap.String("recipient", recipient),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < maxAttempts {
			time.Sleep(d.backoff)
		}
	}
	d.logger.Error("notification abandoned",
		zap.String("kind", string(kind)),
		zap.String("recipient", recipient),
		zap.Error(err))
}

func render(kind Kind, payload Payload) (subject, body string) {
	switch kind {
	case KindResetCode:
		return "Password Reset Code", resetCodeBody(payload.Code)
	case KindEnrollmentConfirmation:
		event := payload.Event
		return fmt.Sprintf("Enrollment Confirmation for %s", event.Name),
			enrollmentBody(event, payload.DisplayName)
	default:
		return "EventHub Notification", ""
	}
}

func resetCodeBody(code string) string {
	return fmt.Sprintf(`
      <div style="font-family: Arial, sans-serif; padding: 10px; border: 1px solid #ddd;">
        <p>Your password reset code is: <strong>%s</strong></p>
        <p>If you did not request a reset, you can ignore this email.</p>
        <p>Best Regards,</p>
        <p><strong>EventHub Team</strong></p>
      </div>
    `, code)
}

func enrollmentBody(event *model.Event, displayName string) string {
	greeting := "Hello,"
	if displayName != "" {
		greeting = fmt.Sprintf("Hello %s,", displayName)
	}
	return fmt.Sprintf(`
      <div style="font-family: Arial, sans-serif; padding: 10px; border: 1px solid #ddd;">
        <h2 style="color: #4CAF50;">Enrollment Confirmed!</h2>
        <p>%s</p>
        <p>You have successfully enrolled in the <strong>%s</strong> event!</p>
        <p><strong>Event Type:</strong> %s</p>
        <p><strong>Description:</strong> %s</p>
        <p><strong>Date:</strong> %s</p>
        <p style="margin-top: 10px;">We look forward to seeing you at the event!</p>
        <p>Best Regards,</p>
        <p><strong>EventHub Team</strong></p>
      </div>
    `, greeting, event.Name, event.Category, event.Description,
		event.Date.Format("January 2, 2006"))
}
