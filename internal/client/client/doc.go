// Package client contains client-side building blocks for GrabSmart.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface) covering
//     every backend endpoint: login, registration and recovery codes, the
//     profile, and the file upload/list/download/delete operations.
//  2. A concrete REST implementation (see HTTPClient) on top of httpx that
//     injects the bearer token through an interceptor and reports backend
//     rejections as *httpx.APIError.
//  3. Local persistence bootstrap utilities (InitDatabase, RunMigrations) for
//     the CLI, wiring an SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// Backend rejections carry the server message and HTTP status
// (*httpx.APIError). Common conditions are also exposed as sentinel errors
// that callers can match with errors.Is: ErrUnavailable, ErrUnauthorized.
//
// Concurrency & Contexts
//
// Implementations are safe for concurrent use. All operations accept
// context.Context and honor cancellation.
//
// See Also
//
//   - Interface:  Client
//   - REST impl:  HTTPClient
//   - Fake impl:  package fake
//   - DB helpers: InitDatabase, RunMigrations
package client
