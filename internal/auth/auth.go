package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer = "uspguard"

	// MinSecretBytes is the shortest accepted HMAC signing key.
	MinSecretBytes = 32

	clockSkew = 5 * time.Second
)

var (
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWeakSecret rejects signing keys shorter than MinSecretBytes.
	ErrWeakSecret = fmt.Errorf("auth secret must be at least %d bytes", MinSecretBytes)
)

// Identity is the staff member a session token speaks for. UserID is the
// compliance engine's user id; Role is that user's stored role.
type Identity struct {
	UserID int64
	Role   string
}

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 session tokens with one key.
type Signer struct {
	key []byte
	now func() time.Time
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithClock overrides the signer's time source.
func WithClock(fn func() time.Time) SignerOption {
	return func(s *Signer) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewSigner builds a signer around secret, which must carry at least
// MinSecretBytes bytes.
func NewSigner(secret []byte, opts ...SignerOption) (*Signer, error) {
	if len(secret) < MinSecretBytes {
		return nil, ErrWeakSecret
	}
	s := &Signer{
		key: append([]byte(nil), secret...),
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewRandomSigner builds a signer with a fresh key from crypto/rand. Tokens
// it issues do not survive a restart.
func NewRandomSigner(opts ...SignerOption) (*Signer, error) {
	key := make([]byte, MinSecretBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate auth secret: %w", err)
	}
	return NewSigner(key, opts...)
}

// Issue signs a token for id that expires after ttl.
func (s *Signer) Issue(id Identity, ttl time.Duration) (string, time.Time, error) {
	if id.UserID <= 0 {
		return "", time.Time{}, errors.New("user id must be positive")
	}
	if !KnownRole(id.Role) {
		return "", time.Time{}, fmt.Errorf("unknown role %q", id.Role)
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be greater than zero")
	}

	now := s.now().Truncate(time.Second)
	expires := now.Add(ttl)
	claims := sessionClaims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks the signature and registered claims and returns the
// identity named by the token. The role is the one stamped at issue time;
// callers holding a user store should prefer the stored role.
func (s *Signer) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(s.now),
	)
	var claims sessionClaims
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}); err != nil {
		return Identity{}, ErrInvalidToken
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: id, Role: claims.Role}, nil
}

// KeyMatches compares a presented shared key against the configured one in
// constant time. An empty configured key never matches.
func KeyMatches(configured, presented string) bool {
	if configured == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}
