package auth

import "github.com/platinummonkey/pulse/pkg/storage"

// Identity is whoever the current request acts as. It is either a real
// authenticated user or the synthetic benchmark identity used by load
// harnesses on read-only stats routes.
type Identity interface {
	// UserID is the acting user's id; zero for the benchmark identity
	UserID() int64
	// IsBenchmark reports whether this is the synthetic load-test identity
	IsBenchmark() bool
}

// AuthenticatedUser is an identity backed by a real user row
type AuthenticatedUser struct {
	User *storage.User
}

// UserID returns the backing user's id
func (a AuthenticatedUser) UserID() int64 { return a.User.ID }

// IsBenchmark always reports false for real users
func (a AuthenticatedUser) IsBenchmark() bool { return false }

// BenchmarkIdentity is the synthetic identity minted when a request carries
// the configured benchmark bypass token
type BenchmarkIdentity struct{}

// UserID is always zero for the benchmark identity
func (BenchmarkIdentity) UserID() int64 { return 0 }

// IsBenchmark always reports true
func (BenchmarkIdentity) IsBenchmark() bool { return true }
