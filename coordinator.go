package goSession

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/transport"
)

// invalidationListeners fans one InvalidationEvent out to every registered
// listener. Listeners run on the goroutine whose request was rejected,
// outside the session lock.
type invalidationListeners struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]func(InvalidationEvent)
}

func (l *invalidationListeners) add(fn func(InvalidationEvent)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[uint64]func(InvalidationEvent))
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

func (l *invalidationListeners) notify(event InvalidationEvent) {
	l.mu.Lock()
	fns := make([]func(InvalidationEvent), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

// OnInvalidated registers fn to run once per invalidation. The returned
// func unregisters it.
func (c *Client) OnInvalidated(fn func(InvalidationEvent)) func() {
	if fn == nil {
		return func() {}
	}
	return c.listeners.add(fn)
}

// onAuthorizationRejected is wired into the pipeline as its rejection
// signal. Any number of requests may be rejected concurrently; only the
// first one carrying the current credential ends the session.
func (c *Client) onAuthorizationRejected(ctx context.Context, rej transport.Rejection) {
	c.metricInc(MetricAuthorizationRejected)

	outcome, userID, err := c.machine.invalidate(context.WithoutCancel(ctx), rej.Credential)

	switch outcome {
	case invalidateApplied:
		c.metricInc(MetricInvalidation)
		if err != nil {
			c.logger.WarnContext(ctx, "credential store clear failed during invalidation",
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
		}
		c.logger.InfoContext(ctx, "session invalidated",
			slog.String("user_id", userID),
			slog.String("method", rej.Method),
			slog.String("url", rej.URL),
			slog.Int("status", rej.StatusCode),
			slog.String("request_id", rej.RequestID),
		)
		c.emitAudit(ctx, AuditInvalidated, true, userID, rej.RequestID, StatusAnonymous, err, func() map[string]string {
			return map[string]string{
				"method": rej.Method,
				"url":    rej.URL,
			}
		})

		c.listeners.notify(InvalidationEvent{
			UserID:     userID,
			EntryPath:  c.cfg.EntryPath,
			Method:     rej.Method,
			URL:        rej.URL,
			StatusCode: rej.StatusCode,
			RequestID:  rej.RequestID,
			At:         time.Now().UTC(),
		})

	case invalidateStale:
		c.metricInc(MetricRejectionIgnored)
		c.logger.DebugContext(ctx, "ignoring rejection of a superseded credential",
			slog.String("user_id", userID),
			slog.String("request_id", rej.RequestID),
		)
		c.emitAudit(ctx, AuditRejectionIgnored, false, userID, rej.RequestID, StatusAuthenticated, nil, func() map[string]string {
			return map[string]string{"reason": "stale_credential"}
		})

	default:
		c.metricInc(MetricRejectionIgnored)
		c.logger.DebugContext(ctx, "ignoring rejection outside an authenticated session",
			slog.String("request_id", rej.RequestID),
		)
	}
}
