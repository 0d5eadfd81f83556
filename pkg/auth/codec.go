package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access from refresh tokens. The two types are
// signed with distinct secrets, so a token presented as the wrong type
// normally fails signature verification outright; when the secrets are
// configured identically it survives decode and fails the type check
// instead. Both outcomes are handled.
type TokenType string

const (
	// TokenTypeAccess is a short-lived token presented on API requests
	TokenTypeAccess TokenType = "access"
	// TokenTypeRefresh is a longer-lived token exchanged for new pairs
	TokenTypeRefresh TokenType = "refresh"
)

// decodeLeeway absorbs small clock skew between issuer and verifier
const decodeLeeway = 30 * time.Second

// Config holds the codec's signing material and token lifetimes
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// DefaultConfig returns the codec defaults. The issuer/audience pair is
// used verbatim on both the encode and decode paths.
func DefaultConfig() Config {
	return Config{
		Issuer:     "pulse-auth",
		Audience:   "pulse-api",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}
}

// Claims is the signed token payload
type Claims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim as a numeric user id
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrMalformedToken
	}
	return id, nil
}

// Codec signs and verifies token claims. It is stateless; revocation lives
// in the token cache.
type Codec struct {
	cfg Config
}

// NewCodec creates a codec from the given config
func NewCodec(cfg Config) *Codec {
	return &Codec{cfg: cfg}
}

func (c *Codec) secretFor(typ TokenType) []byte {
	if typ == TokenTypeRefresh {
		return c.cfg.RefreshSecret
	}
	return c.cfg.AccessSecret
}

// Issue signs a token of the given type for the subject. A zero ttl falls
// back to the configured lifetime for the type; an empty jti gets a fresh
// random UUID. Returns the signed token along with its claims so callers
// can register the jti and expiry without re-decoding.
func (c *Codec) Issue(subject string, typ TokenType, ttl time.Duration, jti string) (string, *Claims, error) {
	if ttl <= 0 {
		if typ == TokenTypeRefresh {
			ttl = c.cfg.RefreshTTL
		} else {
			ttl = c.cfg.AccessTTL
		}
	}
	if jti == "" {
		jti = uuid.NewString()
	}

	now := time.Now()
	claims := &Claims{
		TokenType: string(typ),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			Issuer:    c.cfg.Issuer,
			Audience:  jwt.ClaimStrings{c.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secretFor(typ))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Decode verifies a token against the secret for the expected type and
// checks issuer, audience, expiry (with leeway), and required claims.
// Signature, expiry, audience, or issuer failures surface as
// ErrInvalidToken; a token that verifies but carries the other type claim
// surfaces as ErrWrongTokenType.
func (c *Codec) Decode(tokenString string, expectedType TokenType) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.secretFor(expectedType), nil
	},
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithAudience(c.cfg.Audience),
		jwt.WithLeeway(decodeLeeway),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" || claims.ID == "" || claims.TokenType == "" {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != string(expectedType) {
		return nil, ErrWrongTokenType
	}

	return claims, nil
}
