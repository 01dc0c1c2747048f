package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	l := NewLimiter(3, time.Minute)
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.Allow("user:1") {
			t.Fatalf("request %d should have been allowed", i+1)
		}
	}
	if l.Allow("user:1") {
		t.Error("fourth request should have been rejected")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	defer l.Stop()

	if !l.Allow("user:1") {
		t.Fatal("first key should be allowed")
	}
	if !l.Allow("user:2") {
		t.Error("second key should have its own bucket")
	}
}

func TestWindowSlides(t *testing.T) {
	l := NewLimiter(1, 30*time.Millisecond)
	defer l.Stop()

	if !l.Allow("addr:10.0.0.1") {
		t.Fatal("first request should be allowed")
	}
	if l.Allow("addr:10.0.0.1") {
		t.Fatal("second request inside the window should be rejected")
	}

	time.Sleep(50 * time.Millisecond)
	if !l.Allow("addr:10.0.0.1") {
		t.Error("request after the window should be allowed")
	}
}

func TestEmptyKeyAlwaysAllowed(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	defer l.Stop()

	for i := 0; i < 5; i++ {
		if !l.Allow("") {
			t.Fatal("empty key must never be limited")
		}
	}
}

func TestStrictBucketIsSeparate(t *testing.T) {
	l := NewLimiter(100, time.Minute)
	defer l.Stop()

	for i := 0; i < 2; i++ {
		if !l.AllowStrict("user:1", 2, time.Minute) {
			t.Fatalf("strict request %d should have been allowed", i+1)
		}
	}
	if l.AllowStrict("user:1", 2, time.Minute) {
		t.Error("third strict request should have been rejected")
	}
	// The default bucket still has headroom.
	if !l.Allow("user:1") {
		t.Error("default bucket should be unaffected by the strict one")
	}
}
