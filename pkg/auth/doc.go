// Package auth implements credential verification and the token lifecycle:
// bcrypt password hashing, a signed dual-token (access/refresh) codec, and
// the issuance orchestrator that registers minted tokens in the shared
// token cache.
package auth
