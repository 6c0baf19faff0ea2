// Package session issues and validates the bearer tokens that scope API calls to
// a single trip.
//
// A token is handed out when a trip is planned and must accompany every later
// call for that trip. It is an HS256 JWT whose subject and "tid" claim carry the
// trip ID. There are no refresh tokens: planning a new trip issues a new token.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultExpiry is how long a trip token stays valid.
const DefaultExpiry = 24 * time.Hour

// Token errors.
var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrTokenExpired = errors.New("session token has expired")
	ErrWrongTrip    = errors.New("session token is for a different trip")
	ErrMissingKey   = errors.New("session signing key is required")
)

// Claims are the claims carried by a trip token.
type Claims struct {
	jwt.RegisteredClaims

	TripID string `json:"tid"`
}

// Config holds configuration for the token service.
type Config struct {
	// SigningKey is the HS256 secret.
	SigningKey string

	// Issuer and Audience are checked on validation.
	Issuer   string
	Audience string

	// Expiry defaults to DefaultExpiry.
	Expiry time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service issues and validates trip tokens.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
	expiry     time.Duration
	now        func() time.Time
}

// NewService creates a token service.
func NewService(cfg Config) (*Service, error) {
	if cfg.SigningKey == "" {
		return nil, ErrMissingKey
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		expiry:     cfg.Expiry,
		now:        cfg.Now,
	}, nil
}

// Issue creates a token for the trip.
func (s *Service) Issue(tripID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.expiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   tripID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        tokenID(),
		},
		TripID: tripID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses the token and returns the trip it grants access to.
func (s *Service) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TripID == "" || claims.TripID != claims.Subject {
		return "", ErrInvalidToken
	}
	return claims.TripID, nil
}

// ValidateFor checks that the token grants access to tripID.
func (s *Service) ValidateFor(tokenString, tripID string) error {
	got, err := s.Validate(tokenString)
	if err != nil {
		return err
	}
	if got != tripID {
		return ErrWrongTrip
	}
	return nil
}

func tokenID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
