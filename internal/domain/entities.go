package domain

import (
	"time"

	"github.com/google/uuid"
)

type Event struct {
	ID            uuid.UUID
	OrganizerID   uuid.UUID
	Title         string
	Venue         string
	StartsAt      time.Time
	IsFree        bool
	BasePrice     float64
	Currency      string
	Capacity      *int
	TicketsIssued int
}

type TicketTier struct {
	ID          uuid.UUID
	EventID     uuid.UUID
	Name        string
	Price       float64
	Capacity    *int
	TicketsSold int
	IsActive    bool
	IsEarlyBird bool
}

type Attendee struct {
	Name  string
	Email string
	Phone string
}

type Ticket struct {
	ID            uuid.UUID
	Code          string
	EventID       uuid.UUID
	TierID        *uuid.UUID
	Attendee      Attendee
	PaymentStatus PaymentStatus
	PaymentRefID  *string
	IsValidated   bool
	CreatedAt     time.Time
	VerifiedAt    *time.Time
	ValidatedAt   *time.Time
}

type ClaimChallenge struct {
	ID        uuid.UUID
	Email     string
	Code      string
	ExpiresAt time.Time
	Verified  bool
	CreatedAt time.Time
}

// Active reports whether the challenge can still be consumed.
func (c ClaimChallenge) Active(now time.Time) bool {
	return !c.Verified && now.Before(c.ExpiresAt)
}
