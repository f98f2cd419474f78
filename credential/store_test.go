package credential

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb, "gs", "alice", 0)
	return store, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	redisStore, _, done := newRedisStoreTest(t)
	t.Cleanup(done)

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(t.TempDir(), "nested", "credential")),
		"redis":  redisStore,
	}
}

func TestStoreRoundTripAndClear(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := store.Load(ctx); err != nil || ok {
				t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
			}

			if err := store.Save(ctx, "tok-1"); err != nil {
				t.Fatalf("save: %v", err)
			}
			if err := store.Save(ctx, "tok-2"); err != nil {
				t.Fatalf("overwrite: %v", err)
			}

			token, ok, err := store.Load(ctx)
			if err != nil || !ok || token != "tok-2" {
				t.Fatalf("expected tok-2, got %q ok=%v err=%v", token, ok, err)
			}

			if err := store.Clear(ctx); err != nil {
				t.Fatalf("clear: %v", err)
			}
			if err := store.Clear(ctx); err != nil {
				t.Fatalf("second clear must be a no-op: %v", err)
			}
			if _, ok, err := store.Load(ctx); err != nil || ok {
				t.Fatalf("expected empty store after clear, got ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestStoreRejectsEmptyToken(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Save(ctx, ""); !errors.Is(err, ErrEmptyCredential) {
				t.Fatalf("expected ErrEmptyCredential, got %v", err)
			}
		})
	}
}

func TestStoreTreatsTokenAsOpaque(t *testing.T) {
	ctx := context.Background()
	const weird = "not.a.jwt ✓ with spaces"
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Save(ctx, weird); err != nil {
				t.Fatalf("save: %v", err)
			}
			token, ok, err := store.Load(ctx)
			if err != nil || !ok || token != weird {
				t.Fatalf("expected opaque token back, got %q ok=%v err=%v", token, ok, err)
			}
		})
	}
}

func TestFileStorePermissionsAndTrailingNewline(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credential")
	store := NewFileStore(path)

	if err := store.Save(ctx, "tok"); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != fileMode {
		t.Fatalf("expected mode %o, got %o", fileMode, perm)
	}

	if err := os.WriteFile(path, []byte("hand-edited\n"), fileMode); err != nil {
		t.Fatalf("write: %v", err)
	}
	token, ok, err := store.Load(ctx)
	if err != nil || !ok || token != "hand-edited" {
		t.Fatalf("expected trimmed token, got %q ok=%v err=%v", token, ok, err)
	}

	if err := os.WriteFile(path, []byte("\n"), fileMode); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("blank file must read as absent, got ok=%v err=%v", ok, err)
	}
}

func TestRedisStoreKeyLayoutAndTTL(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := NewRedisStore(rdb, "tc", "bob", time.Hour)
	if store.Key() != "tc:cred:bob" {
		t.Fatalf("unexpected key %q", store.Key())
	}
	if err := store.Save(ctx, "tok"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got, _ := mr.Get("tc:cred:bob"); got != "tok" {
		t.Fatalf("expected raw value tok, got %q", got)
	}
	if ttl := mr.TTL("tc:cred:bob"); ttl != time.Hour {
		t.Fatalf("expected ttl 1h, got %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if _, ok, err := store.Load(ctx); err != nil || ok {
		t.Fatalf("expired key must read as absent, got ok=%v err=%v", ok, err)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	store, mr, done := newRedisStoreTest(t)
	defer done()

	mr.Close()

	if _, _, err := store.Load(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := store.Save(ctx, "tok"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
