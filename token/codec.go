package token

import (
	"slices"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-forward-auth/internal/errors"
)

const (
	// DefaultAccessTTL is the default access token lifetime
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL is the default refresh token lifetime
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Codec signs and verifies the access and refresh session tokens. The tokens
// are the only authoritative session state; the codec is stateless and safe
// for concurrent use after construction.
type Codec struct {
	access     Signer
	refresh    Signer
	accessTTL  time.Duration
	refreshTTL time.Duration
	roles      *Roles // nil when RBAC is disabled
	nowFunc    func() time.Time
}

// CodecOption configures a Codec
type CodecOption func(*Codec)

// WithTTLs overrides the access and refresh token lifetimes
func WithTTLs(accessTTL, refreshTTL time.Duration) CodecOption {
	return func(c *Codec) {
		if accessTTL > 0 {
			c.accessTTL = accessTTL
		}
		if refreshTTL > 0 {
			c.refreshTTL = refreshTTL
		}
	}
}

// WithRoles enables RBAC. The permission set for a role is snapshotted into
// the access token at issuance time; a role-config change only takes effect
// once a new access token is issued.
func WithRoles(roles *Roles) CodecOption {
	return func(c *Codec) {
		c.roles = roles
	}
}

// WithNowFunc overrides the time source, for tests
func WithNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

// NewCodec creates a Codec signing access and refresh tokens with separate
// HMAC secrets
func NewCodec(accessSecret, refreshSecret string, options ...CodecOption) *Codec {
	c := &Codec{
		access:     NewHMACSigner(accessSecret),
		refresh:    NewHMACSigner(refreshSecret),
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// IssueAccess creates a signed access token for the given user and strategy.
// When RBAC is enabled the resolved permission set for the role is embedded.
func (c *Codec) IssueAccess(user, strategy, role string) (string, error) {
	claims := Claims{
		User:             user,
		Strategy:         strategy,
		RegisteredClaims: c.registered(c.accessTTL),
	}
	if c.roles != nil {
		claims.Role = c.roles.Resolve(role)
		claims.Permissions = c.roles.PermissionsFor(claims.Role)
	}
	return c.access.Sign(claims)
}

// IssueRefresh creates a signed refresh token. It carries the role but never
// a permission set; permissions are resolved again when the next access token
// is issued.
func (c *Codec) IssueRefresh(user, strategy, role string) (string, error) {
	claims := Claims{
		User:             user,
		Strategy:         strategy,
		RegisteredClaims: c.registered(c.refreshTTL),
	}
	if c.roles != nil {
		claims.Role = c.roles.Resolve(role)
	}
	return c.refresh.Sign(claims)
}

// VerifyAccess validates an access token and returns its claims
func (c *Codec) VerifyAccess(raw string) (*Claims, error) {
	return c.verify(raw, c.access)
}

// VerifyRefresh validates a refresh token and returns its claims
func (c *Codec) VerifyRefresh(raw string) (*Claims, error) {
	return c.verify(raw, c.refresh)
}

// verify collapses every failure mode (bad signature, malformed token,
// expiry) into ErrInvalidOrExpiredToken
func (c *Codec) verify(raw string, signer Signer) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwtlib.ParseWithClaims(raw, claims, signer.GetVerificationKey,
		jwtlib.WithValidMethods([]string{signer.GetSigningMethod().Alg()}),
		jwtlib.WithTimeFunc(c.nowFunc),
	)
	if err != nil || !parsed.Valid {
		return nil, errors.ErrInvalidOrExpiredToken
	}
	return claims, nil
}

// Decode parses a token without verifying the signature. The result must
// never be trusted; it exists only for non-trust display purposes.
func (c *Codec) Decode(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, errors.ErrInvalidOrExpiredToken
	}
	return claims, nil
}

// HasPermission reports whether the claims satisfy every required permission.
// It is unconditionally true when RBAC is disabled or nothing is required,
// and true when the claims carry the wildcard permission.
func (c *Codec) HasPermission(claims *Claims, required ...string) bool {
	if c.roles == nil || len(required) == 0 {
		return true
	}
	if slices.Contains(claims.Permissions, "*") {
		return true
	}
	for _, perm := range required {
		if !slices.Contains(claims.Permissions, perm) {
			return false
		}
	}
	return true
}

func (c *Codec) registered(ttl time.Duration) jwtlib.RegisteredClaims {
	now := c.nowFunc()
	return jwtlib.RegisteredClaims{
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		ID:        uuid.New().String(),
	}
}
