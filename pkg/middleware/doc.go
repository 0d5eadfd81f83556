// Package middleware provides HTTP middleware for authentication and rate limiting.
//
// AuthMiddleware decodes the access token from the Authorization header,
// loads the user, and attaches an auth.Identity to the request context. The
// stats routes mount the BenchmarkHandler variant, which also accepts a
// configured static benchmark token.
//
// RateLimitMiddleware enforces a Redis-backed fixed-window limit per user
// (or per client IP for unauthenticated requests) and fails open when Redis
// is unavailable.
package middleware
