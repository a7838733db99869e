package locking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, 5*time.Second, nil), mr
}

func TestAcquireAndRelease(t *testing.T) {
	l, mr := testLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "slot:doctor:2:1735100100")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !mr.Exists("lock:slot:doctor:2:1735100100") {
		t.Fatal("expected lock key in redis")
	}

	release(ctx)
	if mr.Exists("lock:slot:doctor:2:1735100100") {
		t.Fatal("expected lock key removed after release")
	}
}

func TestContendedLockFails(t *testing.T) {
	l, _ := testLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "appointment:7")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer release(ctx)

	if _, err := l.Acquire(ctx, "appointment:7"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("second Acquire err = %v, want ErrNotAcquired", err)
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	l, _ := testLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "appointment:9")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release(ctx)

	release2, err := l.Acquire(ctx, "appointment:9")
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	release2(ctx)
}

func TestStaleHolderCannotRelease(t *testing.T) {
	l, mr := testLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "appointment:11")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// TTL expiry hands the lock to a new holder.
	mr.FastForward(10 * time.Second)
	release2, err := l.Acquire(ctx, "appointment:11")
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}

	// The stale holder's release must not free the new holder's lock.
	release(ctx)
	if !mr.Exists("lock:appointment:11") {
		t.Fatal("stale release removed another holder's lock")
	}
	release2(ctx)
}
