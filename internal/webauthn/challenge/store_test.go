package challenge

import (
	"context"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

func TestTakeIsSingleUse(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Put(ctx, "sess-1", webauthn.SessionData{Challenge: "c1"}, time.Now().Add(time.Minute))

	got, ok := s.Take(ctx, "sess-1")
	if !ok || got.Challenge != "c1" {
		t.Fatalf("Take = (%+v, %v), want challenge c1", got, ok)
	}
	if _, ok := s.Take(ctx, "sess-1"); ok {
		t.Error("second Take should fail")
	}
}

func TestTakeExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()
	s.nowF = func() time.Time { return base }
	s.Put(ctx, "sess", webauthn.SessionData{Challenge: "c"}, base.Add(time.Minute))

	s.nowF = func() time.Time { return base.Add(time.Minute) }
	if _, ok := s.Take(ctx, "sess"); ok {
		t.Error("expired session should not be returned")
	}
}

func TestPutSweepsExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()
	s.nowF = func() time.Time { return base }
	s.Put(ctx, "old", webauthn.SessionData{}, base.Add(time.Second))

	s.nowF = func() time.Time { return base.Add(time.Minute) }
	s.Put(ctx, "new", webauthn.SessionData{}, base.Add(2*time.Minute))
	if len(s.m) != 1 {
		t.Errorf("len = %d after sweep, want 1", len(s.m))
	}
}
