// Package transport implements the authorization pipeline every upstream
// call goes through.
//
// [Transport] is an http.RoundTripper. Before a request leaves it reads the
// credential store and, when a credential is present, attaches it as a bearer
// token. After the response arrives it checks for an authorization rejection
// and reports each one to OnRejected before handing the response back
// unmodified.
//
// # What this package must NOT do
//
//   - Retry, rewrite, or swallow responses.
//   - Navigate, clear credentials, or change session state (OnRejected owns that).
//   - Short-circuit anonymous requests; the upstream decides what needs a credential.
package transport
