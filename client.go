package goSession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/api"
	"github.com/MrEthical07/goSession/credential"
	"github.com/MrEthical07/goSession/transport"
)

// Client owns one authenticated session against the task tracker upstream.
// All methods are safe for concurrent use.
type Client struct {
	cfg     Config
	store   credential.Store
	machine *machine
	api     *api.Client
	http    *http.Client

	logger  *slog.Logger
	metrics *Metrics
	audit   *auditDispatcher

	listeners invalidationListeners

	initOnce  sync.Once
	closed    atomic.Bool
	closeOnce sync.Once
	closers   []func() error
}

func newClient(cfg Config, store credential.Store, base http.RoundTripper, logger *slog.Logger, sink AuditSink) (*Client, error) {
	c := &Client{
		cfg:     cfg,
		store:   store,
		machine: newMachine(store),
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
		audit:   newAuditDispatcher(cfg.Audit, sink),
	}

	pipeline := &transport.Transport{
		Base:        base,
		Credentials: store,
		OnRejected:  c.onAuthorizationRejected,
		Observe:     c.observeRoundTrip,
	}
	if status := cfg.Transport.RejectionStatus; status != http.StatusUnauthorized {
		pipeline.IsRejection = func(resp *http.Response) bool {
			return resp.StatusCode == status
		}
	}

	c.http = &http.Client{
		Transport: pipeline,
		Timeout:   cfg.Transport.Timeout,
	}

	upstream, err := api.NewClient(cfg.BaseURL, c.http, api.WithRejectionStatus(cfg.Transport.RejectionStatus))
	if err != nil {
		c.audit.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.api = upstream

	return c, nil
}

/*
====================================
REHYDRATION
====================================
*/

// Initialize resolves the Booting state from the stored credential. It runs
// at most once; concurrent and repeated callers wait for that single run.
//
// Initialize never fails the session: an unreadable store, an unreachable
// upstream, a rejected credential, or a timeout all resolve to Anonymous
// with the store cleared. The only error returned is ErrClientClosed.
func (c *Client) Initialize(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	c.initOnce.Do(func() {
		c.rehydrate(ctx)
	})
	return nil
}

// Ready is closed once the session first leaves Booting.
func (c *Client) Ready() <-chan struct{} {
	return c.machine.ready
}

func (c *Client) rehydrate(ctx context.Context) {
	token, ok, err := c.store.Load(ctx)
	if err != nil {
		c.failRehydrate(ctx, err)
		return
	}
	if !ok {
		if c.machine.bootAnonymous() {
			c.metricInc(MetricRehydrateAnonymous)
			c.logger.InfoContext(ctx, "no stored credential, session is anonymous")
			c.emitAudit(ctx, AuditRehydrateAnonymous, true, "", "", StatusAnonymous, nil, nil)
		}
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.Rehydrate.Timeout)
	defer cancel()

	user, err := c.api.Profile(fetchCtx)
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %v", ErrRehydrateTimeout, c.cfg.Rehydrate.Timeout, err)
		}
		c.failRehydrate(ctx, err)
		return
	}

	identity := identityFromUser(user)
	if !c.machine.resolveBoot(identity, token) {
		c.logger.DebugContext(ctx, "discarding rehydration result, session already resolved",
			slog.String("user_id", identity.ID),
		)
		return
	}

	c.metricInc(MetricRehydrateAuthenticated)
	c.logger.InfoContext(ctx, "session rehydrated", slog.String("user_id", identity.ID))
	c.emitAudit(ctx, AuditRehydrateAuthenticated, true, identity.ID, "", StatusAuthenticated, nil, nil)
}

func (c *Client) failRehydrate(ctx context.Context, cause error) {
	applied, clearErr := c.machine.failBoot(context.WithoutCancel(ctx))
	if !applied {
		c.logger.DebugContext(ctx, "discarding rehydration failure, session already resolved",
			slog.Any("error", cause),
		)
		return
	}

	c.metricInc(MetricRehydrateFailed)
	c.logger.WarnContext(ctx, "rehydration failed, session is anonymous", slog.Any("error", cause))
	if clearErr != nil {
		c.logger.WarnContext(ctx, "credential store clear failed", slog.Any("error", clearErr))
	}
	c.emitAudit(ctx, AuditRehydrateFailed, false, "", "", StatusAnonymous, cause, nil)
}

/*
====================================
LOGIN / REGISTER / LOGOUT
====================================
*/

// Login exchanges email and password for a credential, persists it, and
// enters Authenticated. On any failure the session is left unchanged and
// the error is returned to the caller.
func (c *Client) Login(ctx context.Context, email, password string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if strings.TrimSpace(email) == "" || password == "" {
		return ErrMissingCredentials
	}

	return c.authenticate(ctx, AuditLogin, MetricLoginSuccess, MetricLoginFailure, func() (api.AuthResponse, error) {
		return c.api.Login(ctx, email, password)
	})
}

// Register creates an account and, like Login, enters Authenticated with
// the returned credential.
func (c *Client) Register(ctx context.Context, name, email, password string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if strings.TrimSpace(email) == "" || password == "" {
		return ErrMissingCredentials
	}

	return c.authenticate(ctx, AuditRegister, MetricRegisterSuccess, MetricRegisterFailure, func() (api.AuthResponse, error) {
		return c.api.Register(ctx, name, email, password)
	})
}

func (c *Client) authenticate(
	ctx context.Context,
	eventType string,
	success MetricID,
	failure MetricID,
	exchange func() (api.AuthResponse, error),
) error {
	res, err := exchange()
	if err != nil {
		c.metricInc(failure)
		c.logger.InfoContext(ctx, "credential exchange failed",
			slog.String("event", eventType),
			slog.Any("error", err),
		)
		c.emitAudit(ctx, eventType, false, "", "", c.machine.snapshot().Status, err, nil)
		return err
	}

	identity := identityFromUser(res.User)
	if err := c.machine.adopt(ctx, identity, res.Token); err != nil {
		c.metricInc(failure)
		c.logger.ErrorContext(ctx, "credential store save failed",
			slog.String("event", eventType),
			slog.String("user_id", identity.ID),
			slog.Any("error", err),
		)
		c.emitAudit(ctx, eventType, false, identity.ID, "", c.machine.snapshot().Status, err, nil)
		return err
	}

	c.metricInc(success)
	c.logger.InfoContext(ctx, "session authenticated",
		slog.String("event", eventType),
		slog.String("user_id", identity.ID),
	)
	c.emitAudit(ctx, eventType, true, identity.ID, "", StatusAuthenticated, nil, nil)
	return nil
}

// Logout clears the stored credential and enters Anonymous from any state.
// It cannot fail from the caller's point of view; a store that cannot be
// cleared is logged and audited.
func (c *Client) Logout(ctx context.Context) {
	userID, err := c.machine.reset(context.WithoutCancel(ctx))

	c.metricInc(MetricLogout)
	if err != nil {
		c.logger.WarnContext(ctx, "credential store clear failed during logout",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	} else {
		c.logger.InfoContext(ctx, "session logged out", slog.String("user_id", userID))
	}
	c.emitAudit(ctx, AuditLogout, err == nil, userID, "", StatusAnonymous, err, nil)
}

/*
====================================
SESSION VIEW
====================================
*/

// Session returns the current snapshot.
func (c *Client) Session() Snapshot {
	return c.machine.snapshot()
}

// Subscribe returns a channel that receives the current snapshot at once
// and then every later transition. A slow reader only ever misses
// intermediate snapshots, never the latest one. cancel closes the channel.
func (c *Client) Subscribe() (<-chan Snapshot, func()) {
	return c.machine.subscribe()
}

// EntryPath is where an invalidated session should be sent to sign in again.
func (c *Client) EntryPath() string {
	return c.cfg.EntryPath
}

/*
====================================
DOMAIN REQUESTS
====================================
*/

// HTTPClient returns the client whose transport is the authorization
// pipeline. Use it for any upstream request the JSON helper does not fit.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Do sends a JSON request to path on the upstream. A rejection returns an
// error matching ErrCredentialRejected and invalidates the session before
// Do returns.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	return c.api.DoJSON(ctx, method, path, in, out)
}

/*
====================================
OBSERVABILITY
====================================
*/

func (c *Client) observeRoundTrip(info transport.RoundTripInfo) {
	// Exchanges are counted by their login/register outcome.
	switch {
	case info.Exchange:
	case info.Stamped:
		c.metricInc(MetricRequestStamped)
	default:
		c.metricInc(MetricRequestUnstamped)
	}
	if info.Err != nil {
		c.metricInc(MetricTransportFailure)
	}
	c.metrics.Observe(MetricRequestLatency, info.Duration)
}

func (c *Client) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

// MetricsSnapshot returns a copy of every session metric. It is empty when
// metrics are disabled.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

// AuditDropped reports how many audit events were dropped because the
// dispatcher buffer was full.
func (c *Client) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

func (c *Client) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	requestID string,
	status Status,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		RequestID: requestID,
		Status:    status.String(),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = auditErrorCode(err)
	}

	c.audit.Emit(ctx, event)
}

// auditErrorCode maps an error to a stable, low-cardinality code so audit
// records never carry upstream messages.
func auditErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRehydrateTimeout):
		return "rehydrate_timeout"
	case errors.Is(err, ErrCredentialRejected):
		return "credential_rejected"
	case errors.Is(err, ErrOperationFailed):
		return "operation_failed"
	case errors.Is(err, ErrTransport):
		return "transport_failure"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal_error"
	}
}

// Close stops the audit dispatcher, closes every subscription, and releases
// any store connection the Builder opened. The session state is left as is.
func (c *Client) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.audit.Close()
		c.machine.closeSubscribers()
		for _, fn := range c.closers {
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
