package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

var (
	ErrMissingToken = errors.New("no token, authorization denied")
	ErrInvalidToken = errors.New("token is not valid")
	ErrNoSecret     = errors.New("jwt secret is not configured")
)

// Claims identify the actor. Tokens from older clients carry the id in user.id
// instead of the subject.
type Claims struct {
	User *LegacyUser `json:"user,omitempty"`
	jwt.RegisteredClaims
}

type LegacyUser struct {
	ID string `json:"id"`
}

// Actor is the verified identity a request runs as.
type Actor struct {
	UserID    string
	ExpiresAt *time.Time
}

// Service verifies signed actor tokens. Issuing credentials belongs to the
// account service; Issue exists for tooling and tests.
type Service struct {
	secret []byte
	issuer string
	logger zerolog.Logger
}

// NewService creates an auth service.
func NewService(secret, issuer string, logger zerolog.Logger) *Service {
	return &Service{
		secret: []byte(secret),
		issuer: issuer,
		logger: logger.With().Str("service", "auth").Logger(),
	}
}

// Authenticate verifies the token and returns the actor it names.
func (s *Service) Authenticate(ctx context.Context, token string) (*Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	if len(s.secret) == 0 {
		return nil, ErrNoSecret
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		s.logger.Debug().Err(err).Msg("token rejected")
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	userID := claims.Subject
	if userID == "" && claims.User != nil {
		userID = claims.User.ID
	}
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidToken
	}

	actor := &Actor{UserID: userID}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time.UTC()
		actor.ExpiresAt = &exp
	}
	return actor, nil
}

// Issue signs a token for userID valid for ttl.
func (s *Service) Issue(userID string, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
