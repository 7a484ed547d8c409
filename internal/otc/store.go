// Package otc manages short-lived one-time codes for the password-reset
// flow. Codes are held in memory, keyed by recipient email: issuing
// overwrites any prior code (last-issued-wins), a successful verify
// consumes the code exactly once and mints a single-use reset ticket, and
// a background reaper removes entries that outlive their TTL so stale
// codes cannot be replayed.
package otc

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoActiveCode is returned when no unexpired code exists for a recipient.
var ErrNoActiveCode = errors.New("no active code for recipient")

// ErrMismatch is returned when the submitted code does not match. The
// stored code survives a mismatch so the caller may retry.
var ErrMismatch = errors.New("code mismatch")

// ErrInvalidTicket is returned when a reset ticket is absent, expired,
// already redeemed, or does not match.
var ErrInvalidTicket = errors.New("invalid reset ticket")

// codeRange yields six-digit codes in [100000, 999999].
var codeRange = big.NewInt(900_000)

type codeEntry struct {
	code      string
	createdAt time.Time
}

type ticketEntry struct {
	ticket    string
	createdAt time.Time
}

// Store holds pending reset codes and tickets. Entries for different
// recipients never interfere; same-recipient races resolve
// last-write-wins on issue and first-success-wins on verify.
type Store struct {
	mu      sync.Mutex
	codes   map[string]codeEntry
	tickets map[string]ticketEntry

	codeTTL   time.Duration
	ticketTTL time.Duration
	now       func() time.Time
}

// NewStore constructs a Store. now may be nil, in which case time.Now is
// used.
func NewStore(codeTTL, ticketTTL time.Duration, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		codes:     make(map[string]codeEntry),
		tickets:   make(map[string]ticketEntry),
		codeTTL:   codeTTL,
		ticketTTL: ticketTTL,
		now:       now,
	}
}

// Issue generates a fresh six-digit code for the recipient, replacing any
// code already outstanding. Only the most recent code is ever valid.
func (s *Store) Issue(recipient string) (string, error) {
	n, err := rand.Int(rand.Reader, codeRange)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64()+100_000)

	s.mu.Lock()
	s.codes[recipient] = codeEntry{code: code, createdAt: s.now()}
	s.mu.Unlock()
	return code, nil
}

// Verify checks the submitted code. On match the entry is consumed and a
// single-use reset ticket is returned; a second verify with the same code
// fails with ErrNoActiveCode. On mismatch the entry is left intact.
func (s *Store) Verify(recipient, submitted string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.codes[recipient]
	if !ok || s.expired(entry.createdAt, s.codeTTL) {
		delete(s.codes, recipient)
		return "", ErrNoActiveCode
	}
	if entry.code != submitted {
		return "", ErrMismatch
	}

	delete(s.codes, recipient)
	ticket := uuid.NewString()
	s.tickets[recipient] = ticketEntry{ticket: ticket, createdAt: s.now()}
	return ticket, nil
}

// RedeemTicket consumes the reset ticket minted by Verify. A ticket can be
// redeemed at most once and only within its TTL.
func (s *Store) RedeemTicket(recipient, ticket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tickets[recipient]
	if !ok || s.expired(entry.createdAt, s.ticketTTL) {
		delete(s.tickets, recipient)
		return ErrInvalidTicket
	}
	if entry.ticket != ticket {
		return ErrInvalidTicket
	}
	delete(s.tickets, recipient)
	return nil
}

// StartReaper launches a goroutine that periodically removes expired
// entries until ctx is cancelled. Expiry is also enforced lazily on read,
// so the reaper only bounds memory, not correctness.
func (s *Store) StartReaper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.reap()
			}
		}
	}()
}

func (s *Store) reap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for recipient, entry := range s.codes {
		if s.expired(entry.createdAt, s.codeTTL) {
			delete(s.codes, recipient)
		}
	}
	for recipient, entry := range s.tickets {
		if s.expired(entry.createdAt, s.ticketTTL) {
			delete(s.tickets, recipient)
		}
	}
}

func (s *Store) expired(createdAt time.Time, ttl time.Duration) bool {
	return s.now().Sub(createdAt) >= ttl
}
