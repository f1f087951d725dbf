package claims

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/clock"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/domain"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/observability"
)

const codeLength = 6

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	InsertChallenge(ctx context.Context, c domain.ClaimChallenge) error
	SupersedeChallenges(ctx context.Context, email string, now time.Time) error
	ConsumeChallenge(ctx context.Context, email, code string, now time.Time) error
	HasVerifiedChallenge(ctx context.Context, email string, now time.Time) (bool, error)
}

// Throttle bounds code issuance per email; unlimited issuance is an
// abuse vector.
type Throttle interface {
	AcquireChallengeGap(ctx context.Context, email string, gap time.Duration) (bool, error)
}

type Limiter interface {
	Allow(ctx context.Context, key string, rate int, period time.Duration) bool
}

type Publisher interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Service struct {
	store     Store
	throttle  Throttle
	limiter   Limiter
	publisher Publisher
	clock     clock.Clock
	logger    observability.Logger
	ttl       time.Duration
	gap       time.Duration
	hourlyCap int
}

func NewService(store Store, throttle Throttle, limiter Limiter, publisher Publisher, clk clock.Clock, logger observability.Logger, ttl, gap time.Duration, hourlyCap int) *Service {
	return &Service{
		store:     store,
		throttle:  throttle,
		limiter:   limiter,
		publisher: publisher,
		clock:     clk,
		logger:    logger,
		ttl:       ttl,
		gap:       gap,
		hourlyCap: hourlyCap,
	}
}

// RequestChallenge issues a fresh one-time code for the email,
// replacing any prior active challenge, and hands it to the
// notification dispatcher. Issuance is bounded by a per-email
// min-interval lock and an hourly cap.
func (s *Service) RequestChallenge(ctx context.Context, email string) (uuid.UUID, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return uuid.Nil, domain.ErrInvalidInput
	}

	ok, err := s.throttle.AcquireChallengeGap(ctx, email, s.gap)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok || !s.limiter.Allow(ctx, "otp:"+email, s.hourlyCap, time.Hour) {
		return uuid.Nil, domain.ErrChallengeThrottled
	}

	now := s.clock.Now()
	challenge := domain.ClaimChallenge{
		ID:        uuid.New(),
		Email:     email,
		Code:      newCode(),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	err = s.store.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.store.SupersedeChallenges(txCtx, email, now); err != nil {
			return err
		}
		return s.store.InsertChallenge(txCtx, challenge)
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.dispatch(ctx, challenge)
	return challenge.ID, nil
}

// VerifyChallenge consumes the active challenge for the email. Wrong
// code, expired code, and no code at all are indistinguishable to the
// caller.
func (s *Service) VerifyChallenge(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || len(code) != codeLength {
		return domain.ErrVerificationFailed
	}
	return s.store.ConsumeChallenge(ctx, email, code, s.clock.Now())
}

// IsVerified reports whether the email holds a consumed challenge still
// inside its validity window.
func (s *Service) IsVerified(ctx context.Context, email string) (bool, error) {
	return s.store.HasVerifiedChallenge(ctx, normalizeEmail(email), s.clock.Now())
}

// dispatch hands the code to the notification dispatcher. Delivery is
// fire-and-forget: an undelivered code is recovered by re-requesting.
func (s *Service) dispatch(ctx context.Context, c domain.ClaimChallenge) {
	payload, err := json.Marshal(domain.ChallengeEvent{
		ChallengeID: c.ID,
		Email:       c.Email,
		Code:        c.Code,
		ExpiresAt:   c.ExpiresAt,
	})
	if err != nil {
		s.logger.Error("failed to marshal challenge event", err)
		return
	}
	msg := amqp.Publishing{
		MessageId:   c.ID.String(),
		ContentType: "application/json",
		Body:        payload,
	}
	if err := s.publisher.Publish(ctx, domain.EventChallengeRequested, msg); err != nil {
		s.logger.Error("failed to publish challenge event", err)
	}
}

func newCode() string {
	max := big.NewInt(1)
	for i := 0; i < codeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("%0*d", codeLength, n)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
