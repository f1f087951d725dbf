package testutil

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// FakeClock is a settable clock for service tests.
type FakeClock struct {
	mu sync.Mutex
	T  time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{T: t}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.T
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.T = c.T.Add(d)
}

// FakeThrottle replays a configured sequence of grants.
type FakeThrottle struct {
	mu     sync.Mutex
	Denied bool
}

func (t *FakeThrottle) AcquireChallengeGap(ctx context.Context, email string, gap time.Duration) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.Denied, nil
}

// FakeLimiter allows everything unless told otherwise.
type FakeLimiter struct {
	Denied bool
}

func (l *FakeLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	return !l.Denied
}

// CapturePublisher records published messages instead of talking to a
// broker.
type CapturePublisher struct {
	mu        sync.Mutex
	Published []CapturedMessage
}

type CapturedMessage struct {
	Key  string
	Body []byte
}

func (p *CapturePublisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Published = append(p.Published, CapturedMessage{Key: key, Body: msg.Body})
	return nil
}

func (p *CapturePublisher) Messages() []CapturedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CapturedMessage(nil), p.Published...)
}
