package api

import (
	"testing"
	"time"
)

func TestRateLimiter_DropsIdleClients(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(10, 20)
	l.now = func() time.Time { return now }

	l.get("10.0.0.1")
	l.get("10.0.0.2")
	if len(l.clients) != 2 {
		t.Fatalf("clients = %d, want 2", len(l.clients))
	}

	now = now.Add(limiterIdle / 2)
	l.get("10.0.0.2")

	now = now.Add(limiterIdle/2 + time.Second)
	l.get("10.0.0.3")
	if _, ok := l.clients["10.0.0.1"]; ok {
		t.Error("idle client kept")
	}
	if _, ok := l.clients["10.0.0.2"]; !ok {
		t.Error("recently active client dropped")
	}
	if len(l.clients) != 2 {
		t.Errorf("clients = %d, want 2", len(l.clients))
	}
}

func TestRateLimiter_ReusesBucketPerClient(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(0.001, 1)
	l.now = func() time.Time { return now }

	if !l.get("10.0.0.1").Allow() {
		t.Fatal("first request rejected")
	}
	now = now.Add(time.Second)
	if l.get("10.0.0.1").Allow() {
		t.Error("active client's bucket was reset")
	}
}
