// Package api provides the HTTP surface of the service: registration and
// login, the refresh-token lifecycle (refresh, logout, change-password),
// bulk event ingestion with duplicate reporting, and the stats endpoints.
//
// Handlers are grouped by concern (AuthHandlers, EventHandlers,
// StatsHandlers), each registering its own routes on the shared gorilla/mux
// router. Authentication and rate limiting are applied per route group when
// the routes are registered.
package api
