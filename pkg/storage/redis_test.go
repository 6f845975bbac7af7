//go:build integration

package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

// setupRedisContainer starts a Redis container for testing
func setupRedisContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	redisContainer, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(redisContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}
	if len(endpoint) > 8 && endpoint[:8] == "redis://" {
		endpoint = endpoint[8:]
	}
	return endpoint
}

func TestRedisStore_NewRedisStore(t *testing.T) {
	addr := setupRedisContainer(t)

	store, err := NewRedisStore(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestRedisStore_NewRedisStore_InvalidConfig(t *testing.T) {
	if _, err := NewRedisStore("", "", 0, time.Minute); err == nil {
		t.Error("expected error for empty address")
	}
	if _, err := NewRedisStore("localhost:6379", "", -1, time.Minute); err == nil {
		t.Error("expected error for negative db")
	}
}

func TestRedisStore_Put_Get(t *testing.T) {
	addr := setupRedisContainer(t)

	store, err := NewRedisStore(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	snap := sampleSnapshot("orders")
	snap.Failures = []KeyFailure{{Key: "bad", Error: "fit failed"}}
	if err := store.Put(ctx, snap); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, found, err := store.GetLatest(ctx, "orders")
	if err != nil {
		t.Fatalf("GetLatest() error = %v", err)
	}
	if !found {
		t.Fatal("GetLatest() did not find the stored snapshot")
	}
	if got.Dataset != "orders" || got.Engine != "seasonal" {
		t.Errorf("snapshot metadata = %+v", got)
	}
	if len(got.Rows) != 2 || got.Rows[0].Yhat != 10 {
		t.Errorf("snapshot rows = %+v", got.Rows)
	}
	if len(got.Failures) != 1 || got.Failures[0].Key != "bad" {
		t.Errorf("snapshot failures = %+v", got.Failures)
	}
}

func TestRedisStore_Put_InvalidDataset(t *testing.T) {
	addr := setupRedisContainer(t)

	store, err := NewRedisStore(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer store.Close()

	snap := sampleSnapshot("bad name/with slash")
	if err := store.Put(context.Background(), snap); err == nil {
		t.Error("Put() accepted an invalid dataset name")
	}
}

func TestRedisStore_GetLatest_NotFound(t *testing.T) {
	addr := setupRedisContainer(t)

	store, err := NewRedisStore(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer store.Close()

	_, found, err := store.GetLatest(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetLatest() error = %v", err)
	}
	if found {
		t.Error("GetLatest() found a snapshot that was never stored")
	}
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	addr := setupRedisContainer(t)

	store, err := NewRedisStore(addr, "", 0, time.Second)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Put(ctx, sampleSnapshot("ephemeral")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, found, _ := store.GetLatest(ctx, "ephemeral"); !found {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Error("snapshot did not expire")
}

func TestRedisStore_ConcurrentAccess(t *testing.T) {
	addr := setupRedisContainer(t)

	store, err := NewRedisStore(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			snap := sampleSnapshot(fmt.Sprintf("dataset-%d", n))
			if err := store.Put(ctx, snap); err != nil {
				t.Errorf("Put() error = %v", err)
			}
			if _, _, err := store.GetLatest(ctx, snap.Dataset); err != nil {
				t.Errorf("GetLatest() error = %v", err)
			}
		}(i)
	}
	wg.Wait()
}

func TestRedisStore_CloseIdempotent(t *testing.T) {
	addr := setupRedisContainer(t)

	store, err := NewRedisStore(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
