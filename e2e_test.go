package goSession_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/devserver"
	"github.com/MrEthical07/goSession/guard"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newDevserverTest(t *testing.T) (*devserver.Server, *httptest.Server, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := devserver.DefaultConfig()
	cfg.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Parallelism = 1

	srv, err := devserver.New(cfg, rdb, nil)
	if err != nil {
		t.Fatalf("devserver: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	return srv, ts, mr, func() {
		ts.Close()
		rdb.Close()
		mr.Close()
	}
}

type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *recordingNavigator) visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

func TestEndToEndRevocationNavigatesOnce(t *testing.T) {
	srv, ts, _, done := newDevserverTest(t)
	defer done()

	cfg := goSession.DefaultConfig()
	cfg.BaseURL = ts.URL
	cfg.Store.Backend = goSession.StoreFile
	cfg.Store.FilePath = filepath.Join(t.TempDir(), "credential")

	c, err := goSession.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()

	nav := &recordingNavigator{}
	stop := guard.Follow(c, nav)
	defer stop()

	ctx := context.Background()
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := c.Register(ctx, "Alice", "alice@example.com", "correct horse"); err != nil {
		t.Fatalf("register: %v", err)
	}
	userID := c.Session().Identity.ID

	var created devserver.Task
	if err := c.Do(ctx, http.MethodPost, "/tasks", map[string]string{"title": "ship it"}, &created); err != nil {
		t.Fatalf("create task: %v", err)
	}
	var tasks []devserver.Task
	if err := c.Do(ctx, http.MethodGet, "/tasks", nil, &tasks); err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != created.ID {
		t.Fatalf("tasks = %+v, want [%s]", tasks, created.ID)
	}

	if _, err := srv.Revoke(ctx, userID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	err = c.Do(ctx, http.MethodGet, "/tasks", nil, &tasks)
	if !errors.Is(err, goSession.ErrCredentialRejected) {
		t.Fatalf("request after revoke err = %v, want ErrCredentialRejected", err)
	}
	if got := c.Session().Status; got != goSession.StatusAnonymous {
		t.Fatalf("status = %s, want anonymous", got)
	}

	// Further rejected requests do not navigate again.
	_ = c.Do(ctx, http.MethodGet, "/tasks", nil, nil)

	if visited := nav.visited(); len(visited) != 1 || visited[0] != "/login" {
		t.Fatalf("navigations = %v, want [/login]", visited)
	}
}

func TestEndToEndRehydrateFromFileStore(t *testing.T) {
	_, ts, _, done := newDevserverTest(t)
	defer done()

	cfg := goSession.DefaultConfig()
	cfg.BaseURL = ts.URL
	cfg.Store.Backend = goSession.StoreFile
	cfg.Store.FilePath = filepath.Join(t.TempDir(), "credential")

	first, err := goSession.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ctx := context.Background()
	_ = first.Initialize(ctx)
	if err := first.Register(ctx, "Bob", "bob@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("register: %v", err)
	}
	want := first.Session().Identity.ID
	_ = first.Close()

	second, err := goSession.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer second.Close()

	if err := second.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	snap := second.Session()
	if !snap.Authenticated() || snap.Identity.ID != want {
		t.Fatalf("rehydrated snapshot = %+v, want user %s", snap, want)
	}
}

func TestEndToEndRedisStoreBackend(t *testing.T) {
	_, ts, mr, done := newDevserverTest(t)
	defer done()

	cfg := goSession.DefaultConfig()
	cfg.BaseURL = ts.URL
	cfg.Store.Backend = goSession.StoreRedis
	cfg.Store.RedisAddr = mr.Addr()
	cfg.Store.RedisPrefix = "client"

	c, err := goSession.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	_ = c.Initialize(ctx)
	if err := c.Register(ctx, "Cy", "cy@example.com", "password-c"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if !mr.Exists("client:cred:default") {
		t.Fatalf("credential not written to redis")
	}

	c.Logout(ctx)
	if mr.Exists("client:cred:default") {
		t.Fatalf("credential still in redis after logout")
	}
}

func TestEndToEndExpiredRedisCredentialInvalidates(t *testing.T) {
	_, ts, mr, done := newDevserverTest(t)
	defer done()

	cfg := goSession.DefaultConfig()
	cfg.BaseURL = ts.URL
	cfg.Store.Backend = goSession.StoreRedis
	cfg.Store.RedisAddr = mr.Addr()
	cfg.Store.RedisPrefix = "client"
	cfg.Store.RedisTTL = time.Minute

	c, err := goSession.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()

	nav := &recordingNavigator{}
	stop := guard.Follow(c, nav)
	defer stop()

	ctx := context.Background()
	_ = c.Initialize(ctx)
	if err := c.Register(ctx, "Di", "di@example.com", "password-d"); err != nil {
		t.Fatalf("register: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if mr.Exists("client:cred:default") {
		t.Fatalf("credential survived its ttl")
	}

	err = c.Do(ctx, http.MethodGet, "/tasks", nil, nil)
	if !errors.Is(err, goSession.ErrCredentialRejected) {
		t.Fatalf("request after expiry err = %v, want ErrCredentialRejected", err)
	}
	if got := c.Session().Status; got != goSession.StatusAnonymous {
		t.Fatalf("status = %s, want anonymous", got)
	}
	if visited := nav.visited(); len(visited) != 1 || visited[0] != "/login" {
		t.Fatalf("navigations = %v, want [/login]", visited)
	}
}
