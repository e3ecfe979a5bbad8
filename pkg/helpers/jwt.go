package helpers

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose scopes a token to the one flow that may redeem it.
type Purpose string

const (
	PurposeAccess            Purpose = "access"
	PurposeRefresh           Purpose = "refresh"
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

var (
	ErrTokenMalformed       = errors.New("token malformed")
	ErrTokenBadSignature    = errors.New("token signature invalid")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenPurposeMismatch = errors.New("token purpose mismatch")
)

// KeyRing holds the active HMAC signing key and the retired keys that are
// still accepted for verification.
type KeyRing struct {
	activeID string
	keys     map[string][]byte
	order    []string
}

func NewKeyRing(activeID, activeSecret string, previous map[string]string) (*KeyRing, error) {
	if activeID == "" || activeSecret == "" {
		return nil, errors.New("jwt: active key id and secret are required")
	}
	r := &KeyRing{activeID: activeID, keys: map[string][]byte{activeID: []byte(activeSecret)}}
	r.order = append(r.order, activeID)

	ids := make([]string, 0, len(previous))
	for kid := range previous {
		ids = append(ids, kid)
	}
	sort.Strings(ids)
	for _, kid := range ids {
		if kid == activeID {
			return nil, fmt.Errorf("jwt: previous key %q collides with the active key id", kid)
		}
		if previous[kid] == "" {
			return nil, fmt.Errorf("jwt: previous key %q has an empty secret", kid)
		}
		r.keys[kid] = []byte(previous[kid])
		r.order = append(r.order, kid)
	}
	return r, nil
}

func (r *KeyRing) ActiveID() string { return r.activeID }

type Claims struct {
	Purpose       Purpose `json:"pur"`
	Role          string  `json:"role,omitempty"`
	PasswordStamp string  `json:"pws,omitempty"`
	jwt.RegisteredClaims
}

// ExpiresAtTime returns the expiry, zero when the token never expires.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

type ClaimOption func(*Claims)

func WithRole(role string) ClaimOption {
	return func(c *Claims) { c.Role = role }
}

func WithPasswordStamp(stamp string) ClaimOption {
	return func(c *Claims) { c.PasswordStamp = stamp }
}

type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time // zero when the token has no exp claim
}

// JWTManager signs and verifies HS256 tokens. It performs no I/O.
type JWTManager struct {
	keys   *KeyRing
	issuer string
	now    func() time.Time
}

func NewJWTManager(keys *KeyRing, issuer string, now func() time.Time) *JWTManager {
	if now == nil {
		now = time.Now
	}
	return &JWTManager{keys: keys, issuer: issuer, now: now}
}

// Issue signs a token for subject. A ttl of zero omits the exp claim; a
// negative ttl yields a token that is already expired.
func (m *JWTManager) Issue(subject string, purpose Purpose, ttl time.Duration, opts ...ClaimOption) (IssuedToken, error) {
	now := m.now()
	claims := &Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			Issuer:   m.issuer,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.NewString(),
		},
	}
	var exp time.Time
	if ttl != 0 {
		exp = now.Add(ttl)
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	for _, opt := range opts {
		opt(claims)
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = m.keys.activeID
	s, err := t.SignedString(m.keys.keys[m.keys.activeID])
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}
	return IssuedToken{Token: s, ID: claims.ID, ExpiresAt: exp}, nil
}

// Verify checks signature, expiry and purpose. The key is chosen by the kid
// header; when it is absent or unknown every key in the ring is tried.
func (m *JWTManager) Verify(tokenStr string, expected Purpose) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrTokenMalformed
	}

	var (
		claims *Claims
		err    error
	)
	for _, key := range m.candidateKeys(tokenStr) {
		claims, err = m.parse(tokenStr, key)
		if !errors.Is(err, ErrTokenBadSignature) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	if claims.Purpose != expected {
		return nil, ErrTokenPurposeMismatch
	}
	return claims, nil
}

func (m *JWTManager) candidateKeys(tokenStr string) [][]byte {
	unverified := &Claims{}
	if t, _, err := jwt.NewParser().ParseUnverified(tokenStr, unverified); err == nil {
		if kid, ok := t.Header["kid"].(string); ok {
			if key, ok := m.keys.keys[kid]; ok {
				return [][]byte{key}
			}
		}
	}
	out := make([][]byte, 0, len(m.keys.order))
	for _, kid := range m.keys.order {
		out = append(out, m.keys.keys[kid])
	}
	return out
}

func (m *JWTManager) parse(tokenStr string, key []byte) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, opts...)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	return claims, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenMalformed
	}
}
