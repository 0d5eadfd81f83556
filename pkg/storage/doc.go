// Package storage defines the persistent domain model (users, events), the
// store interfaces implemented by the postgres backend, and the shared
// storage configuration for PostgreSQL, Redis, and S3.
package storage
