package guard

import (
	"context"
	"net/http"
	"net/url"

	goSession "github.com/MrEthical07/goSession"
)

// NextParam carries the path the user was sent away from.
const NextParam = "next"

// SessionSource is satisfied by *goSession.Client.
type SessionSource interface {
	Session() goSession.Snapshot
}

type identityContextKey struct{}

// IdentityFromContext returns the identity Require attached to the request.
func IdentityFromContext(ctx context.Context) (*goSession.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*goSession.Identity)
	return id, ok && id != nil
}

type options struct {
	loading http.Handler
}

// Option customizes Require.
type Option func(*options)

// WithLoadingHandler replaces the view rendered while the session is
// booting.
func WithLoadingHandler(h http.Handler) Option {
	return func(o *options) {
		if h != nil {
			o.loading = h
		}
	}
}

// Require returns middleware that decides from a single snapshot per
// request:
//
//   - Booting: the loading view; next is not invoked.
//   - Authenticated: next, with the identity in the request context.
//   - Anonymous: 303 to entryPath, carrying the requested path in ?next=.
func Require(src SessionSource, entryPath string, opts ...Option) func(http.Handler) http.Handler {
	o := options{loading: http.HandlerFunc(defaultLoading)}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if src == nil {
				http.Redirect(w, r, redirectTarget(entryPath, r), http.StatusSeeOther)
				return
			}

			snap := src.Session()
			switch {
			case snap.Status == goSession.StatusBooting:
				o.loading.ServeHTTP(w, r)
			case snap.Authenticated():
				ctx := context.WithValue(r.Context(), identityContextKey{}, snap.Identity)
				next.ServeHTTP(w, r.WithContext(ctx))
			default:
				http.Redirect(w, r, redirectTarget(entryPath, r), http.StatusSeeOther)
			}
		})
	}
}

func redirectTarget(entryPath string, r *http.Request) string {
	u, err := url.Parse(entryPath)
	if err != nil {
		return entryPath
	}
	q := u.Query()
	q.Set(NextParam, r.URL.RequestURI())
	u.RawQuery = q.Encode()
	return u.String()
}

const loadingPage = `<!doctype html>
<html><head><meta charset="utf-8"><title>Loading</title></head>
<body><p>Loading&hellip;</p></body></html>
`

func defaultLoading(w http.ResponseWriter, _ *http.Request) {
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("Refresh", "1")
	h.Set("Retry-After", "1")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(loadingPage))
}
