// Package devserver is a stub task tracker upstream for local development
// and end-to-end tests.
//
// It implements the endpoints the session client consumes
// (POST /auth/register, POST /auth/login, GET /auth/profile) and a guarded
// /tasks resource. Credentials are HS256 JWTs bound to a Redis-backed
// session, so [Server.Revoke] can end them server-side. Passwords are
// stored as argon2id PHC strings.
package devserver
