package domain

import (
	"testing"
	"time"
)

func TestValidTicketCode(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"AB12CD34-EF56GH78", true},
		{"AAAAAAAA-00000000", true},
		{"ab12cd34-ef56gh78", false}, // callers must normalize first
		{"AB12CD34EF56GH78", false},
		{"AB12CD3-EF56GH78", false},
		{"AB12CD345-EF56GH78", false},
		{"AB12CD34-EF56GH7", false},
		{"AB12CD3!-EF56GH78", false},
		{"AB12CD34-EF56GH78-", false},
		{"", false},
	}
	for _, c := range cases {
		if got := ValidTicketCode(c.code); got != c.want {
			t.Errorf("ValidTicketCode(%q) = %v, want %v", c.code, got, c.want)
		}
	}
}

func TestNormalizeTicketCode(t *testing.T) {
	if got := NormalizeTicketCode("  ab12cd34-ef56gh78 "); got != "AB12CD34-EF56GH78" {
		t.Errorf("NormalizeTicketCode = %q", got)
	}
	if !ValidTicketCode(NormalizeTicketCode("ab12cd34-ef56gh78")) {
		t.Error("normalized lowercase code should validate")
	}
}

func TestNewTicketCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := NewTicketCode()
		if !ValidTicketCode(code) {
			t.Fatalf("generated code %q does not match format", code)
		}
		if seen[code] {
			t.Fatalf("generated duplicate code %q", code)
		}
		seen[code] = true
	}
}

func TestPaymentStatusSets(t *testing.T) {
	admissible := map[PaymentStatus]bool{
		StatusPaid:     true,
		StatusVerified: true,
	}
	unpaid := map[PaymentStatus]bool{
		StatusPending:    true,
		StatusPayAtVenue: true,
	}
	all := []PaymentStatus{StatusPending, StatusPaid, StatusPayAtVenue, StatusVerified, StatusExpired}
	for _, s := range all {
		if s.Admissible() != admissible[s] {
			t.Errorf("%s.Admissible() = %v", s, s.Admissible())
		}
		if s.Unpaid() != unpaid[s] {
			t.Errorf("%s.Unpaid() = %v", s, s.Unpaid())
		}
	}
}

func TestStaleAt(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if StaleAt(created, created.Add(23*time.Hour+59*time.Minute)) {
		t.Error("ticket inside the grace window reported stale")
	}
	if !StaleAt(created, created.Add(24*time.Hour+time.Minute)) {
		t.Error("ticket past the grace window not reported stale")
	}
}

func TestChallengeActive(t *testing.T) {
	now := time.Now()
	c := ClaimChallenge{ExpiresAt: now.Add(time.Minute)}
	if !c.Active(now) {
		t.Error("unexpired unverified challenge should be active")
	}
	c.Verified = true
	if c.Active(now) {
		t.Error("verified challenge should not be active")
	}
	c = ClaimChallenge{ExpiresAt: now.Add(-time.Second)}
	if c.Active(now) {
		t.Error("expired challenge should not be active")
	}
}
