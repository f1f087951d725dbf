package domain

import (
	"time"

	"github.com/google/uuid"
)

// Lifecycle event types published for the notification dispatcher.
const (
	EventTicketClaimed      = "ticket.claimed"
	EventPaymentConfirmed   = "payment.confirmed"
	EventTicketValidated    = "ticket.validated"
	EventTicketExpired      = "ticket.expired"
	EventChallengeRequested = "challenge.requested"
)

// TicketEvent is the payload carried by every ticket lifecycle event.
// It contains everything the dispatcher needs to render a message
// without a read back into the store.
type TicketEvent struct {
	TicketID      uuid.UUID `json:"ticket_id"`
	TicketCode    string    `json:"ticket_code"`
	EventID       uuid.UUID `json:"event_id"`
	EventTitle    string    `json:"event_title"`
	EventVenue    string    `json:"event_venue"`
	EventStartsAt time.Time `json:"event_starts_at"`
	AttendeeName  string    `json:"attendee_name"`
	AttendeeEmail string    `json:"attendee_email"`
	AttendeePhone string    `json:"attendee_phone,omitempty"`
	Status        string    `json:"status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ChallengeEvent is the payload for OTP delivery. Delivery is
// fire-and-forget; an undelivered code is recovered by re-requesting.
type ChallengeEvent struct {
	ChallengeID uuid.UUID `json:"challenge_id"`
	Email       string    `json:"email"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expires_at"`
}
