package claims_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/robertarktes/ticket-lifecycle-validation/internal/claims"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/domain"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/observability"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/testutil"
)

func newService(store *testutil.FakeStore, clk *testutil.FakeClock, throttle *testutil.FakeThrottle, limiter *testutil.FakeLimiter, pub *testutil.CapturePublisher) *claims.Service {
	return claims.NewService(store, throttle, limiter, pub, clk, observability.NewLogger(), 10*time.Minute, time.Minute, 5)
}

func TestRequestAndVerifyChallenge(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewFakeStore()
	clk := testutil.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	pub := &testutil.CapturePublisher{}
	svc := newService(store, clk, &testutil.FakeThrottle{}, &testutil.FakeLimiter{}, pub)

	id, err := svc.RequestChallenge(ctx, "A@Example.com")
	if err != nil {
		t.Fatalf("RequestChallenge: %v", err)
	}

	msgs := pub.Messages()
	if len(msgs) != 1 || msgs[0].Key != domain.EventChallengeRequested {
		t.Fatalf("expected one challenge.requested publish, got %v", msgs)
	}
	var evt domain.ChallengeEvent
	if err := json.Unmarshal(msgs[0].Body, &evt); err != nil {
		t.Fatal(err)
	}
	if evt.ChallengeID != id || evt.Email != "a@example.com" || len(evt.Code) != 6 {
		t.Fatalf("unexpected challenge event %+v", evt)
	}

	// Verify at +9m succeeds.
	clk.Advance(9 * time.Minute)
	if err := svc.VerifyChallenge(ctx, "a@example.com", evt.Code); err != nil {
		t.Fatalf("VerifyChallenge: %v", err)
	}

	verified, err := svc.IsVerified(ctx, "a@example.com")
	if err != nil || !verified {
		t.Fatalf("IsVerified = %v, %v", verified, err)
	}

	// Single use: the same code fails the second time.
	if err := svc.VerifyChallenge(ctx, "a@example.com", evt.Code); !errors.Is(err, domain.ErrVerificationFailed) {
		t.Fatalf("expected verification failed on reuse, got %v", err)
	}
}

func TestVerifyExpiredChallenge(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewFakeStore()
	clk := testutil.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	pub := &testutil.CapturePublisher{}
	svc := newService(store, clk, &testutil.FakeThrottle{}, &testutil.FakeLimiter{}, pub)

	if _, err := svc.RequestChallenge(ctx, "a@example.com"); err != nil {
		t.Fatal(err)
	}
	var evt domain.ChallengeEvent
	json.Unmarshal(pub.Messages()[0].Body, &evt)

	clk.Advance(11 * time.Minute)
	if err := svc.VerifyChallenge(ctx, "a@example.com", evt.Code); !errors.Is(err, domain.ErrVerificationFailed) {
		t.Fatalf("expected generic verification failure for expired code, got %v", err)
	}
}

func TestRequestChallengeReplacesPrior(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewFakeStore()
	clk := testutil.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	pub := &testutil.CapturePublisher{}
	svc := newService(store, clk, &testutil.FakeThrottle{}, &testutil.FakeLimiter{}, pub)

	if _, err := svc.RequestChallenge(ctx, "a@example.com"); err != nil {
		t.Fatal(err)
	}
	clk.Advance(2 * time.Minute)
	if _, err := svc.RequestChallenge(ctx, "a@example.com"); err != nil {
		t.Fatal(err)
	}

	var first, second domain.ChallengeEvent
	msgs := pub.Messages()
	json.Unmarshal(msgs[0].Body, &first)
	json.Unmarshal(msgs[1].Body, &second)

	if first.Code != second.Code {
		if err := svc.VerifyChallenge(ctx, "a@example.com", first.Code); !errors.Is(err, domain.ErrVerificationFailed) {
			t.Fatalf("superseded code should no longer verify, got %v", err)
		}
	}
	if err := svc.VerifyChallenge(ctx, "a@example.com", second.Code); err != nil {
		t.Fatalf("latest code should verify: %v", err)
	}
}

func TestRequestChallengeThrottled(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewFakeStore()
	clk := testutil.NewFakeClock(time.Now())
	pub := &testutil.CapturePublisher{}

	svc := newService(store, clk, &testutil.FakeThrottle{Denied: true}, &testutil.FakeLimiter{}, pub)
	if _, err := svc.RequestChallenge(ctx, "a@example.com"); !errors.Is(err, domain.ErrChallengeThrottled) {
		t.Fatalf("expected throttled, got %v", err)
	}

	svc = newService(store, clk, &testutil.FakeThrottle{}, &testutil.FakeLimiter{Denied: true}, pub)
	if _, err := svc.RequestChallenge(ctx, "a@example.com"); !errors.Is(err, domain.ErrChallengeThrottled) {
		t.Fatalf("expected throttled by hourly cap, got %v", err)
	}
}

func TestRequestChallengeInvalidEmail(t *testing.T) {
	ctx := context.Background()
	svc := newService(testutil.NewFakeStore(), testutil.NewFakeClock(time.Now()), &testutil.FakeThrottle{}, &testutil.FakeLimiter{}, &testutil.CapturePublisher{})

	for _, email := range []string{"", "   ", "not-an-email"} {
		if _, err := svc.RequestChallenge(ctx, email); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("RequestChallenge(%q) = %v, want ErrInvalidInput", email, err)
		}
	}
}
