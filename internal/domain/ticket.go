package domain

import (
	"crypto/rand"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusPaid       PaymentStatus = "paid"
	StatusPayAtVenue PaymentStatus = "pay_at_venue"
	StatusVerified   PaymentStatus = "verified"
	StatusExpired    PaymentStatus = "expired"
)

type PaymentMethod string

const (
	MethodOnline PaymentMethod = "online"
	MethodCash   PaymentMethod = "cash"
)

// CashPaymentRef is the payment_ref_id sentinel recorded when a
// pay-at-venue ticket is settled in cash at the door.
const CashPaymentRef = "CASH_AT_VENUE"

// GraceWindow is how long an unpaid ticket stays claimable before the
// sweeper expires it.
const GraceWindow = 24 * time.Hour

var ticketCodePattern = regexp.MustCompile(`^[A-Z0-9]{8}-[A-Z0-9]{8}$`)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewTicketCode generates a fresh human-presentable code of the form
// XXXXXXXX-XXXXXXXX. Uniqueness is enforced by the store.
func NewTicketCode() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	out := make([]byte, 17)
	for i, b := range buf {
		pos := i
		if i >= 8 {
			pos++
		}
		out[pos] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	out[8] = '-'
	return string(out)
}

// NormalizeTicketCode upper-cases scanned input; codes are
// case-insensitive on validation.
func NormalizeTicketCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidTicketCode reports whether a normalized code matches the
// published format.
func ValidTicketCode(code string) bool {
	return ticketCodePattern.MatchString(code)
}

func NewTicket(event Event, tierID *uuid.UUID, attendee Attendee, status PaymentStatus, now time.Time) Ticket {
	return Ticket{
		ID:            uuid.New(),
		Code:          NewTicketCode(),
		EventID:       event.ID,
		TierID:        tierID,
		Attendee:      attendee,
		PaymentStatus: status,
		CreatedAt:     now,
	}
}

// Admissible reports whether the ticket's payment status allows door
// entry.
func (s PaymentStatus) Admissible() bool {
	return s == StatusPaid || s == StatusVerified
}

// Unpaid reports whether the ticket is still awaiting payment and thus
// subject to the grace window.
func (s PaymentStatus) Unpaid() bool {
	return s == StatusPending || s == StatusPayAtVenue
}

// StaleAt reports whether an unpaid ticket created at createdAt has
// outlived the grace window at now.
func StaleAt(createdAt, now time.Time) bool {
	return now.Sub(createdAt) > GraceWindow
}
