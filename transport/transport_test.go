package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MrEthical07/goSession/credential"
)

type rejectionRecorder struct {
	mu   sync.Mutex
	seen []Rejection
}

func (r *rejectionRecorder) record(_ context.Context, rej Rejection) {
	r.mu.Lock()
	r.seen = append(r.seen, rej)
	r.mu.Unlock()
}

func (r *rejectionRecorder) all() []Rejection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Rejection(nil), r.seen...)
}

func newTransportTest(t *testing.T, handler http.HandlerFunc, store credential.Store) (*http.Client, *rejectionRecorder, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	rec := &rejectionRecorder{}
	tr := &Transport{
		Credentials: store,
		OnRejected:  rec.record,
	}
	return &http.Client{Transport: tr}, rec, srv.URL
}

func TestStampsStoredCredential(t *testing.T) {
	var gotAuth, gotRequestID string
	client, _, url := newTransportTest(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get(RequestIDHeader)
		w.WriteHeader(http.StatusOK)
	}, credential.NewMemoryStoreWith("tok-1"))

	resp, err := client.Get(url + "/tasks")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer tok-1" {
		t.Fatalf("expected bearer credential, got %q", gotAuth)
	}
	if gotRequestID == "" {
		t.Fatal("expected a request id header")
	}
}

func TestSendsUnmodifiedWhenNoCredential(t *testing.T) {
	var sawAuth bool
	client, rec, url := newTransportTest(t, func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
		w.WriteHeader(http.StatusUnauthorized)
	}, credential.NewMemoryStore())

	resp, err := client.Get(url + "/tasks")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if sawAuth {
		t.Fatal("anonymous request must not carry an Authorization header")
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected server-side rejection to reach the caller, got %d", resp.StatusCode)
	}
	rejections := rec.all()
	if len(rejections) != 1 || rejections[0].Credential != "" {
		t.Fatalf("expected one rejection with empty credential, got %+v", rejections)
	}
}

func TestRejectionForwardedUnmodifiedAndSignalledOnce(t *testing.T) {
	client, rec, url := newTransportTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"token revoked"}`)
	}, credential.NewMemoryStoreWith("tok-stale"))

	resp, err := client.Get(url + "/projects?page=2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized || resp.Header.Get("X-Upstream") != "yes" {
		t.Fatalf("response must pass through, got %d %v", resp.StatusCode, resp.Header)
	}
	if string(body) != `{"error":"token revoked"}` {
		t.Fatalf("body must pass through, got %q", body)
	}

	rejections := rec.all()
	if len(rejections) != 1 {
		t.Fatalf("expected exactly one rejection, got %d", len(rejections))
	}
	rej := rejections[0]
	if rej.Credential != "tok-stale" || rej.StatusCode != http.StatusUnauthorized || rej.Method != http.MethodGet {
		t.Fatalf("unexpected rejection %+v", rej)
	}
	if strings.Contains(rej.URL, "page=2") {
		t.Fatalf("rejection URL must not carry the query, got %q", rej.URL)
	}
	if rej.RequestID == "" {
		t.Fatal("rejection must carry the request id")
	}
}

func TestOtherFailuresPassThroughSilently(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError} {
		client, rec, url := newTransportTest(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}, credential.NewMemoryStoreWith("tok"))

		resp, err := client.Get(url)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != status {
			t.Fatalf("expected %d, got %d", status, resp.StatusCode)
		}
		if n := len(rec.all()); n != 0 {
			t.Fatalf("status %d must not signal a rejection, got %d", status, n)
		}
	}
}

func TestCredentialExchangeIsNeitherStampedNorSignalled(t *testing.T) {
	var sawAuth bool
	client, rec, url := newTransportTest(t, func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
		w.WriteHeader(http.StatusUnauthorized)
	}, credential.NewMemoryStoreWith("tok-current"))

	req, err := http.NewRequestWithContext(WithCredentialExchange(context.Background()), http.MethodPost, url+"/auth/login", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()

	if sawAuth {
		t.Fatal("credential exchange must not carry the stored credential")
	}
	if n := len(rec.all()); n != 0 {
		t.Fatalf("credential exchange must not signal rejections, got %d", n)
	}
}

func TestDoesNotMutateCallerRequest(t *testing.T) {
	client, _, url := newTransportTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, credential.NewMemoryStoreWith("tok"))

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()

	if req.Header.Get("Authorization") != "" || req.Header.Get(RequestIDHeader) != "" {
		t.Fatalf("caller request was modified: %v", req.Header)
	}
}

func TestKeepsCallerRequestID(t *testing.T) {
	var got string
	client, _, url := newTransportTest(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(RequestIDHeader)
	}, credential.NewMemoryStore())

	req, _ := http.NewRequest(http.MethodGet, url, nil)
	req.Header.Set(RequestIDHeader, "req-42")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if got != "req-42" {
		t.Fatalf("expected caller request id, got %q", got)
	}
}

type failingRoundTripper struct{}

func (failingRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestTransportErrorObservedNotSignalled(t *testing.T) {
	rec := &rejectionRecorder{}
	var infos []RoundTripInfo
	tr := &Transport{
		Base:        failingRoundTripper{},
		Credentials: credential.NewMemoryStoreWith("tok"),
		OnRejected:  rec.record,
		Observe:     func(info RoundTripInfo) { infos = append(infos, info) },
	}

	req, _ := http.NewRequest(http.MethodGet, "http://upstream.invalid/tasks", nil)
	if _, err := tr.RoundTrip(req); err == nil {
		t.Fatal("expected transport error")
	}
	if n := len(rec.all()); n != 0 {
		t.Fatalf("transport errors are not rejections, got %d", n)
	}
	if len(infos) != 1 || infos[0].Err == nil || !infos[0].Stamped {
		t.Fatalf("unexpected observations %+v", infos)
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := BearerToken("Bearer abc"); !ok || tok != "abc" {
		t.Fatalf("expected abc, got %q %v", tok, ok)
	}
	if _, ok := BearerToken("Bearer "); ok {
		t.Fatal("empty bearer must be rejected")
	}
	if _, ok := BearerToken("Basic abc"); ok {
		t.Fatal("non-bearer scheme must be rejected")
	}
}
