// Package api wraps the upstream task tracker's authentication endpoints and
// provides a JSON helper for domain endpoints. All calls go through the
// *http.Client it is given, which the goSession Client wires to the
// authorization pipeline.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/transport"
)

const maxErrorBody = 4 << 10

var (
	// ErrUnauthorized marks an authorization rejection (401 unless
	// WithRejectionStatus says otherwise).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrOperationFailed marks any other non-2xx response.
	ErrOperationFailed = errors.New("operation failed")
	// ErrTransport marks a request that never produced a response.
	ErrTransport = errors.New("transport failure")
	// ErrMalformedResponse marks a 2xx response whose body could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")
)

// User is the identity payload returned by the upstream.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Error is a non-2xx upstream response.
type Error struct {
	StatusCode int
	Message    string
	// Rejected is set when StatusCode is the client's rejection status.
	Rejected bool
	// Exchange is set for login and register. A 401 there means the submitted
	// email/password were wrong, which is an operation failure, not a
	// credential rejection.
	Exchange bool
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream returned %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Message)
}

// Is lets callers match with errors.Is(err, ErrUnauthorized) or
// errors.Is(err, ErrOperationFailed).
func (e *Error) Is(target error) bool {
	rejected := e.Rejected && !e.Exchange
	switch target {
	case ErrUnauthorized:
		return rejected
	case ErrOperationFailed:
		return !rejected
	}
	return false
}

func markExchange(err error) error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		apiErr.Exchange = true
	}
	return err
}

// Client calls the upstream API rooted at BaseURL.
type Client struct {
	baseURL         *url.URL
	http            *http.Client
	rejectionStatus int
}

// Option customizes a Client.
type Option func(*Client)

// WithRejectionStatus sets the status reported as ErrUnauthorized. It must
// match the pipeline's rejection predicate.
func WithRejectionStatus(status int) Option {
	return func(c *Client) {
		if status > 0 {
			c.rejectionStatus = status
		}
	}
}

// NewClient validates baseURL and returns a Client using hc for every call.
func NewClient(baseURL string, hc *http.Client, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("invalid base url: missing host")
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	c := &Client{baseURL: u, http: hc, rejectionStatus: http.StatusUnauthorized}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Login exchanges email and password for a credential.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	var out AuthResponse
	body := map[string]string{"email": email, "password": password}
	err := c.DoJSON(transport.WithCredentialExchange(ctx), http.MethodPost, "/auth/login", body, &out)
	if err != nil {
		return AuthResponse{}, markExchange(err)
	}
	if out.Token == "" {
		return AuthResponse{}, fmt.Errorf("%w: login response without token", ErrMalformedResponse)
	}
	return out, nil
}

// Register creates an account and returns its credential.
func (c *Client) Register(ctx context.Context, name, email, password string) (AuthResponse, error) {
	var out AuthResponse
	body := map[string]string{"name": name, "email": email, "password": password}
	err := c.DoJSON(transport.WithCredentialExchange(ctx), http.MethodPost, "/auth/register", body, &out)
	if err != nil {
		return AuthResponse{}, markExchange(err)
	}
	if out.Token == "" {
		return AuthResponse{}, fmt.Errorf("%w: register response without token", ErrMalformedResponse)
	}
	return out, nil
}

// Profile fetches the identity bound to the stamped credential.
func (c *Client) Profile(ctx context.Context) (User, error) {
	var out User
	if err := c.DoJSON(ctx, http.MethodGet, "/auth/profile", nil, &out); err != nil {
		return User{}, err
	}
	if out.ID == "" {
		return User{}, fmt.Errorf("%w: profile without id", ErrMalformedResponse)
	}
	return out, nil
}

// DoJSON sends in as a JSON body (when non-nil) to path and decodes a 2xx
// response into out (when non-nil).
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, c.rejectionStatus)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func (c *Client) resolve(path string) string {
	u := *c.baseURL
	rel, err := url.Parse(path)
	if err != nil {
		u.Path += "/" + strings.TrimLeft(path, "/")
		return u.String()
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(rel.Path, "/")
	u.RawQuery = rel.RawQuery
	return u.String()
}

func decodeError(resp *http.Response, rejectionStatus int) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := ""
	if err := json.Unmarshal(raw, &payload); err == nil {
		msg = payload.Error
		if msg == "" {
			msg = payload.Message
		}
	} else {
		msg = strings.TrimSpace(string(raw))
	}

	return &Error{
		StatusCode: resp.StatusCode,
		Message:    msg,
		Rejected:   resp.StatusCode == rejectionStatus,
	}
}
