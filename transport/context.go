package transport

import "context"

type credentialExchangeContextKey struct{}

// WithCredentialExchange marks requests issued under ctx as credential
// exchanges (login, registration). They are sent without the stored
// credential and their rejections are returned to the caller without
// invalidating the session: a mistyped password says nothing about the
// credential currently held.
func WithCredentialExchange(ctx context.Context) context.Context {
	return context.WithValue(ctx, credentialExchangeContextKey{}, true)
}

func isCredentialExchange(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(credentialExchangeContextKey{}).(bool)
	return v
}
