package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestConcurrencyCap_AcquireUpToLimit(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := AcquireConcurrencyCap(ctx, rdb, "cap:c1", 2, time.Minute)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("expected slot %d to be granted", i)
		}
	}

	ok, err := AcquireConcurrencyCap(ctx, rdb, "cap:c1", 2, time.Minute)
	if err != nil {
		t.Fatalf("acquire over limit: %v", err)
	}
	if ok {
		t.Fatalf("expected third slot to be rejected")
	}

	n, err := ConcurrencyCapInUse(ctx, rdb, "cap:c1")
	if err != nil {
		t.Fatalf("in use: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 in use after rejection, got %d", n)
	}
}

func TestConcurrencyCap_ReleaseFreesSlot(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	if ok, _ := AcquireConcurrencyCap(ctx, rdb, "cap:c2", 1, time.Minute); !ok {
		t.Fatalf("expected first acquire")
	}
	if err := ReleaseConcurrencyCap(ctx, rdb, "cap:c2"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists("cap:c2") {
		t.Fatalf("expected key deleted once empty")
	}
	if ok, _ := AcquireConcurrencyCap(ctx, rdb, "cap:c2", 1, time.Minute); !ok {
		t.Fatalf("expected acquire after release")
	}
}

func TestConcurrencyCap_TTLExpiresLeakedSlots(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	if ok, _ := AcquireConcurrencyCap(ctx, rdb, "cap:c3", 1, time.Second); !ok {
		t.Fatalf("expected first acquire")
	}
	mr.FastForward(2 * time.Second)

	if ok, _ := AcquireConcurrencyCap(ctx, rdb, "cap:c3", 1, time.Second); !ok {
		t.Fatalf("expected slot after ttl expiry")
	}
}

func TestConcurrencyCap_ValidatesArguments(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	if _, err := AcquireConcurrencyCap(ctx, nil, "k", 1, time.Second); err == nil {
		t.Fatalf("expected nil client error")
	}
	if _, err := AcquireConcurrencyCap(ctx, rdb, "", 1, time.Second); err == nil {
		t.Fatalf("expected key error")
	}
	if _, err := AcquireConcurrencyCap(ctx, rdb, "k", 0, time.Second); err == nil {
		t.Fatalf("expected limit error")
	}
	if _, err := AcquireConcurrencyCap(ctx, rdb, "k", 1, 0); err == nil {
		t.Fatalf("expected ttl error")
	}
}
