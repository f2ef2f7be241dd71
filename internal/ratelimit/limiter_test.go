package ratelimit

import (
	"strings"
	"testing"
	"time"

	"github.com/quadchat/quadchat/internal/user"
)

func newTestLimiter(max int, window time.Duration) (*Limiter, *time.Time) {
	l := New(max, window)
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }
	return l, &current
}

func TestAdmit_UnderBudget(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if ok, _ := l.Admit("u1"); !ok {
			t.Fatalf("Admit() #%d = false, want true", i+1)
		}
	}
}

func TestAdmit_RejectsAtCap(t *testing.T) {
	l, _ := newTestLimiter(10, 60*time.Second)

	for i := 0; i < 10; i++ {
		if ok, _ := l.Admit("u1"); !ok {
			t.Fatalf("Admit() #%d = false, want true", i+1)
		}
	}
	ok, detail := l.Admit("u1")
	if ok {
		t.Fatal("Admit() over budget = true, want false")
	}
	if !strings.Contains(detail, "Rate limit exceeded") || !strings.Contains(detail, "10") || !strings.Contains(detail, "60") {
		t.Fatalf("detail = %q", detail)
	}
}

func TestAdmit_RejectionNotRecorded(t *testing.T) {
	l, current := newTestLimiter(2, time.Minute)

	l.Admit("u1")
	l.Admit("u1")
	// Hammering while over budget must not push the recovery point out.
	for i := 0; i < 5; i++ {
		if ok, _ := l.Admit("u1"); ok {
			t.Fatal("Admit() over budget = true, want false")
		}
	}

	*current = current.Add(61 * time.Second)
	if ok, _ := l.Admit("u1"); !ok {
		t.Fatal("Admit() after window = false, want true")
	}
}

func TestAdmit_WindowSlides(t *testing.T) {
	l, current := newTestLimiter(2, time.Minute)

	l.Admit("u1")
	*current = current.Add(30 * time.Second)
	l.Admit("u1")

	if ok, _ := l.Admit("u1"); ok {
		t.Fatal("Admit() at cap = true, want false")
	}

	// The first attempt ages out; the second is still in the window.
	*current = current.Add(31 * time.Second)
	if ok, _ := l.Admit("u1"); !ok {
		t.Fatal("Admit() after first aged out = false, want true")
	}
	if ok, _ := l.Admit("u1"); ok {
		t.Fatal("Admit() = true, want false with two in window")
	}
}

func TestAdmit_PerUser(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	l.Admit("u1")
	if ok, _ := l.Admit("u2"); !ok {
		t.Fatal("Admit(u2) = false, want independent budget")
	}
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	l.Admit("u1")
	if ok, _ := l.Admit("u1"); ok {
		t.Fatal("Admit() = true, want false at cap")
	}
	l.Reset(user.ID("u1"))
	if ok, _ := l.Admit("u1"); !ok {
		t.Fatal("Admit() after Reset = false, want true")
	}
}
