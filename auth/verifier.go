// Package auth verifies Firebase ID tokens against Google's JWKS and exposes
// the verified identity to gin handlers.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// FirebaseJWKSURL serves the public keys Firebase signs ID tokens with.
	FirebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

	firebaseIssuerPrefix = "https://securetoken.google.com/"
	defaultLeeway        = 30 * time.Second
)

var (
	// ErrMissingToken is returned when no bearer token is presented.
	ErrMissingToken = errors.New("auth: missing token")

	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims is the verified identity carried by a token.
type Claims struct {
	Subject   string
	Email     string
	Issuer    string
	ExpiresAt time.Time
	Raw       map[string]any
}

// TokenVerifier validates a bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// Verifier validates Firebase ID tokens.
type Verifier struct {
	issuer   string
	audience string
	keyfunc  keyfunc.Keyfunc
	parser   *jwt.Parser
}

var _ TokenVerifier = (*Verifier)(nil)

// NewFirebaseVerifier builds a verifier for projectID. jwksURL defaults to
// FirebaseJWKSURL. The key set is refreshed in the background until ctx is
// cancelled.
func NewFirebaseVerifier(ctx context.Context, projectID, jwksURL string) (*Verifier, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errors.New("auth: firebase project id must be set")
	}
	return NewVerifier(ctx, firebaseIssuerPrefix+projectID, projectID, jwksURL)
}

// NewVerifier builds a verifier for an arbitrary issuer and audience.
func NewVerifier(ctx context.Context, issuer, audience, jwksURL string) (*Verifier, error) {
	if issuer == "" {
		return nil, errors.New("auth: issuer must be set")
	}
	if audience == "" {
		return nil, errors.New("auth: audience must be set")
	}
	if jwksURL == "" {
		jwksURL = FirebaseJWKSURL
	}

	keyProvider, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("auth: init JWKS keyfunc: %w", err)
	}

	parser := jwt.NewParser(
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name}),
	)

	return &Verifier{
		issuer:   issuer,
		audience: audience,
		keyfunc:  keyProvider,
		parser:   parser,
	}, nil
}

// Verify parses and validates token.
func (v *Verifier) Verify(_ context.Context, token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	parsed, err := v.parser.Parse(token, v.keyfunc.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrInvalidToken)
	}

	claims := &Claims{
		Subject: readString(mapClaims, "sub"),
		Email:   readString(mapClaims, "email"),
		Issuer:  readString(mapClaims, "iss"),
		Raw:     mapClaims,
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	return claims, nil
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}
