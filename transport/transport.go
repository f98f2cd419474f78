package transport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader is set on every outgoing request that does not already
// carry one.
const RequestIDHeader = "X-Request-Id"

const bearerPrefix = "Bearer "

// CredentialSource supplies the credential to stamp. It is satisfied by
// credential.Store.
type CredentialSource interface {
	Load(ctx context.Context) (token string, ok bool, err error)
}

// Rejection describes one response the upstream refused on authorization
// grounds.
type Rejection struct {
	// Credential is the token the request was stamped with, "" if none.
	Credential string
	Method     string
	URL        string
	StatusCode int
	RequestID  string
}

// RoundTripInfo is reported to the observer after every exchange.
type RoundTripInfo struct {
	Stamped    bool
	Exchange   bool
	StatusCode int
	Rejected   bool
	Err        error
	Duration   time.Duration
}

// Transport is the authorization pipeline. It stamps outgoing requests with
// the stored credential and reports authorization rejections.
//
// Responses are never altered or retried; the caller receives exactly what
// the upstream returned.
type Transport struct {
	// Base performs the actual round trip. http.DefaultTransport when nil.
	Base http.RoundTripper

	// Credentials is read immediately before each request is sent.
	Credentials CredentialSource

	// OnRejected is called once per rejected response.
	OnRejected func(ctx context.Context, rej Rejection)

	// IsRejection classifies responses. Defaults to status 401.
	IsRejection func(*http.Response) bool

	// Observe, when set, receives per-request bookkeeping.
	Observe func(RoundTripInfo)

	// NewRequestID generates request IDs. uuid.NewString when nil.
	NewRequestID func() string
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	start := time.Now()
	exchange := isCredentialExchange(ctx)

	// RoundTrip must not modify the caller's request.
	out := req.Clone(ctx)

	if out.Header.Get(RequestIDHeader) == "" {
		out.Header.Set(RequestIDHeader, t.requestID())
	}

	var stamped string
	if !exchange && t.Credentials != nil {
		token, ok, err := t.Credentials.Load(ctx)
		if err != nil {
			// An unreadable store is indistinguishable from an empty one here;
			// the upstream decides whether the resource needs a credential.
			ok = false
		}
		if ok {
			out.Header.Set("Authorization", bearerPrefix+token)
			stamped = token
		}
	}

	resp, err := t.base().RoundTrip(out)

	info := RoundTripInfo{
		Stamped:  stamped != "",
		Exchange: exchange,
		Err:      err,
		Duration: time.Since(start),
	}
	if err != nil {
		t.observe(info)
		return nil, err
	}

	info.StatusCode = resp.StatusCode
	if !exchange && t.isRejection(resp) {
		info.Rejected = true
		if t.OnRejected != nil {
			t.OnRejected(ctx, Rejection{
				Credential: stamped,
				Method:     out.Method,
				URL:        redactedURL(out),
				StatusCode: resp.StatusCode,
				RequestID:  out.Header.Get(RequestIDHeader),
			})
		}
	}
	t.observe(info)

	return resp, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) requestID() string {
	if t.NewRequestID != nil {
		return t.NewRequestID()
	}
	return uuid.NewString()
}

func (t *Transport) isRejection(resp *http.Response) bool {
	if t.IsRejection != nil {
		return t.IsRejection(resp)
	}
	return resp.StatusCode == http.StatusUnauthorized
}

func (t *Transport) observe(info RoundTripInfo) {
	if t.Observe != nil {
		t.Observe(info)
	}
}

func redactedURL(req *http.Request) string {
	if req.URL == nil {
		return ""
	}
	u := *req.URL
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	if !strings.HasPrefix(value, bearerPrefix) {
		return "", false
	}

	token := value[len(bearerPrefix):]
	if token == "" {
		return "", false
	}

	return token, true
}
