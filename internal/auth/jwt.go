// Package auth verifies and issues the bearer tokens that carry a user's
// identity and role.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

// MinSecretLen is the shortest accepted HMAC secret.
const MinSecretLen = 32

// Claims is the token payload.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Identity is the verified caller.
type Identity struct {
	UserID string
	Email  string
	Role   model.Role
}

// IsAdmin reports whether the caller has the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == model.RoleAdmin
}

// Verifier checks bearer tokens against a single pinned signing method.
type Verifier struct {
	method jwt.SigningMethod
	key    any
	opts   []jwt.ParserOption
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithIssuer requires the iss claim to equal iss.
func WithIssuer(iss string) VerifierOption {
	return func(v *Verifier) {
		if iss != "" {
			v.opts = append(v.opts, jwt.WithIssuer(iss))
		}
	}
}

// WithAudience requires the aud claim to contain aud.
func WithAudience(aud string) VerifierOption {
	return func(v *Verifier) {
		if aud != "" {
			v.opts = append(v.opts, jwt.WithAudience(aud))
		}
	}
}

// NewHMACVerifier verifies HS256 tokens signed with secret.
func NewHMACVerifier(secret []byte, opts ...VerifierOption) (*Verifier, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLen)
	}
	return newVerifier(jwt.SigningMethodHS256, secret, opts), nil
}

// NewRSAVerifier verifies RS256 tokens against a PEM encoded public key.
func NewRSAVerifier(publicKeyPEM []byte, opts ...VerifierOption) (*Verifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}
	return newVerifier(jwt.SigningMethodRS256, key, opts), nil
}

func newVerifier(method jwt.SigningMethod, key any, opts []VerifierOption) *Verifier {
	v := &Verifier{
		method: method,
		key:    key,
		opts:   []jwt.ParserOption{jwt.WithValidMethods([]string{method.Alg()}), jwt.WithExpirationRequired()},
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Verify parses tokenStr and returns the caller identity. A token without a
// role claim is an operator; an unknown role is rejected.
func (v *Verifier) Verify(tokenStr string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, v.opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	id := Identity{UserID: claims.UserID, Email: claims.Email, Role: model.RoleOperator}
	if id.UserID == "" {
		id.UserID = claims.Subject
	}
	if id.UserID == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if claims.Role != "" {
		role, err := model.ParseRole(claims.Role)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		id.Role = role
	}
	return id, nil
}

// Signer issues HS256 tokens.
type Signer struct {
	secret   []byte
	issuer   string
	audience string
}

// NewSigner creates a Signer. issuer and audience may be empty.
func NewSigner(secret []byte, issuer, audience string) (*Signer, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLen)
	}
	return &Signer{secret: secret, issuer: issuer, audience: audience}, nil
}

// Sign issues a token for id valid for ttl.
func (s *Signer) Sign(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: id.UserID,
		Email:  id.Email,
		Role:   id.Role.Claim(),
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
