package domain

import "errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrCapacityExceeded     = errors.New("capacity exceeded")
	ErrInactiveTier         = errors.New("tier not active")
	ErrVerificationFailed   = errors.New("verification failed")
	ErrEmailNotVerified     = errors.New("email not verified")
	ErrChallengeThrottled   = errors.New("challenge request throttled")
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrCodeCollision        = errors.New("ticket code already taken")
	ErrAlreadyUsed          = errors.New("ticket already used")
	ErrPaymentRequired      = errors.New("payment required")
	ErrExpired              = errors.New("expired")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidInput         = errors.New("invalid input")
)
