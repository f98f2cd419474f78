// Package goSession keeps one authenticated session with a task tracker
// upstream: it persists the bearer credential, stamps it onto every
// outgoing request, and ends the session centrally the first time the
// upstream refuses it.
//
// A [Client] is built with [Builder] and starts in [StatusBooting].
// [Client.Initialize] resolves that state from the stored credential;
// [Client.Login], [Client.Register] and [Client.Logout] drive it afterwards.
// Consumers read the state through [Client.Session] or [Client.Subscribe]
// and learn about invalidation through [Client.OnInvalidated].
//
// # Architecture boundaries
//
// goSession is the public surface. The sub-packages carry one concern each:
//
//   - credential: where the token lives (memory, file, Redis).
//   - transport: the http.RoundTripper that stamps requests and reports
//     authorization rejections.
//   - api: the upstream's login, register and profile endpoints plus a
//     JSON helper for domain calls.
//   - guard: HTTP handlers that render a view only for an authenticated
//     session, and the navigation hook for invalidation events.
//
// Every session transition and the store write that belongs to it happen
// under one lock, so every reader sees a whole state. Network calls never
// hold that lock.
package goSession
