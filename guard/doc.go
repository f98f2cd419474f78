// Package guard exposes the session to HTTP views.
//
// # Guards
//
//   - [Require] renders the wrapped view only for an authenticated session.
//     While the session is still booting it renders a loading view; an
//     anonymous session is redirected to the entry path.
//   - [Follow] turns invalidation events into navigation.
//
// # Architecture boundaries
//
// This package reads session snapshots and subscribes to invalidation
// events. It does NOT transition the session or touch the credential.
package guard
