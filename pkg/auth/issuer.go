package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/platinummonkey/pulse/pkg/tokencache"
)

// TokenPair is the result of an issuance. ExpiresIn reflects only the
// access-token lifetime and is zero when no access token was requested.
type TokenPair struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// Issuer composes the codec and the token cache to mint and register token
// pairs per login or refresh event
type Issuer struct {
	codec *Codec
	cache *tokencache.Cache
}

// NewIssuer creates an issuer over the given codec and cache
func NewIssuer(codec *Codec, cache *tokencache.Cache) *Issuer {
	return &Issuer{codec: codec, cache: cache}
}

// Codec exposes the underlying codec for decode-side callers
func (i *Issuer) Codec() *Codec { return i.codec }

// Cache exposes the underlying token cache
func (i *Issuer) Cache() *tokencache.Cache { return i.cache }

// IssueTokensForUser mints the requested token types for the user. Each
// token gets a fresh random jti; access tokens are stored in the cache for
// their lifetime, refresh tokens are additionally indexed in the user's
// session set. Issuance itself never revokes anything.
func (i *Issuer) IssueTokensForUser(ctx context.Context, userID int64, access, refresh bool) (*TokenPair, error) {
	pair := &TokenPair{TokenType: "bearer"}
	sub := strconv.FormatInt(userID, 10)
	payload := tokencache.Payload{Sub: userID}

	if access {
		token, claims, err := i.codec.Issue(sub, TokenTypeAccess, 0, "")
		if err != nil {
			return nil, fmt.Errorf("failed to issue access token: %w", err)
		}
		if err := i.cache.StoreAccess(ctx, claims.ID, payload, claims.ExpiresAt.Time); err != nil {
			return nil, err
		}
		pair.AccessToken = token
		pair.ExpiresIn = int64(time.Until(claims.ExpiresAt.Time).Round(time.Second) / time.Second)
	}

	if refresh {
		token, claims, err := i.codec.Issue(sub, TokenTypeRefresh, 0, "")
		if err != nil {
			return nil, fmt.Errorf("failed to issue refresh token: %w", err)
		}
		if err := i.cache.RegisterRefresh(ctx, userID, claims.ID, payload, claims.ExpiresAt.Time); err != nil {
			return nil, err
		}
		pair.RefreshToken = token
	}

	return pair, nil
}
