// Package credential persists the single opaque bearer credential a goSession
// client holds for the upstream task tracker.
//
// # Backends
//
//   - [MemoryStore]: process-local, lost on exit.
//   - [FileStore]: one file per profile, written atomically with mode 0600.
//   - [RedisStore]: one Redis key, for headless agents sharing a credential.
//
// Every backend treats the token as opaque. Absence of the credential is a
// valid state and is reported by Load as ok=false, never as an error.
//
// # What this package must NOT do
//
//   - Inspect, parse, or validate token contents.
//   - Hold more than one credential per store.
//   - Make session decisions (the Client owns status transitions).
package credential
