package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"worklane.org/internal/model"
)

const (
	issuer          = "worklane"
	minSecretLength = 32
)

// DefaultTokenTTL is the session token validity window.
const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrExpiredToken indicates the token's expiry has passed. A token
	// expiring exactly now is already invalid.
	ErrExpiredToken = errors.New("auth: token expired")
	// ErrMalformedToken indicates a structurally invalid token or a
	// signature mismatch.
	ErrMalformedToken = errors.New("auth: malformed token")
	// ErrUndecodableSubject indicates the embedded user snapshot could not
	// be parsed into the expected shape.
	ErrUndecodableSubject = errors.New("auth: undecodable token subject")
)

// Claims carries a public-safe user snapshot alongside the registered JWT
// claims.
type Claims struct {
	Subject model.PublicUser `json:"subject"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies session tokens using HS256. The secret is
// injected at construction and cannot be substituted per call.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithTTL overrides the token validity window.
func WithTTL(ttl time.Duration) CodecOption {
	return func(c *TokenCodec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewTokenCodec constructs a codec around the process-wide signing secret.
func NewTokenCodec(secret []byte, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("auth: signing secret must be at least %d bytes", minSecretLength)
	}
	c := &TokenCodec{
		secret: secret,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token embedding the subject snapshot, valid for the codec's
// TTL from now.
func (c *TokenCodec) Issue(subject model.PublicUser) (string, time.Time, error) {
	if subject.ID == uuid.Nil {
		return "", time.Time{}, fmt.Errorf("%w: subject id is required", ErrUndecodableSubject)
	}
	now := c.now().UTC()
	exp := now.Add(c.ttl)
	claims := Claims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify validates the signature and expiry and returns the embedded subject.
func (c *TokenCodec) Verify(token string) (model.PublicUser, error) {
	if token == "" {
		return model.PublicUser{}, ErrMalformedToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrMalformedToken
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now), jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.PublicUser{}, ErrExpiredToken
		}
		return model.PublicUser{}, ErrMalformedToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return model.PublicUser{}, ErrMalformedToken
	}
	if err := validateSubject(claims.Subject); err != nil {
		return model.PublicUser{}, err
	}
	return claims.Subject, nil
}

func validateSubject(subject model.PublicUser) error {
	if subject.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrUndecodableSubject)
	}
	if subject.Username == "" {
		return fmt.Errorf("%w: missing username", ErrUndecodableSubject)
	}
	if _, err := model.UserRoleFromInt(int16(subject.Role)); err != nil {
		return fmt.Errorf("%w: %v", ErrUndecodableSubject, err)
	}
	if _, err := model.UserStatusFromInt(int16(subject.Status)); err != nil {
		return fmt.Errorf("%w: %v", ErrUndecodableSubject, err)
	}
	return nil
}
