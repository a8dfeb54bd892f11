// Package auth authenticates WebSocket upgrade requests.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Youssefbenarbiya/booki-relay/pkg/protocol"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is what an authenticator vouches for. An empty Subject means the
// caller is trusted but its identity is not bound.
type Claims struct {
	Subject string
	Issuer  string
}

// Authenticator checks an upgrade request.
type Authenticator interface {
	Authenticate(r *http.Request) (Claims, error)
}

// New picks the authenticator for the configured secrets: JWT when a signing
// secret is set, a shared token otherwise. It returns nil when neither is
// configured (open access).
func New(sharedToken, jwtSecret, issuer, audience string) Authenticator {
	if jwtSecret != "" {
		return NewJWTAuthenticator(jwtSecret, issuer, audience)
	}
	if sharedToken != "" {
		return &SharedToken{Token: sharedToken}
	}
	return nil
}

// SharedToken accepts one static bearer token.
type SharedToken struct {
	Token string
}

func (a *SharedToken) Authenticate(r *http.Request) (Claims, error) {
	got, err := extractToken(r)
	if err != nil {
		return Claims{}, err
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.Token)) != 1 {
		return Claims{}, ErrInvalidToken
	}
	return Claims{}, nil
}

// JWTAuthenticator verifies HS256 tokens minted by the Booki backend. The
// "sub" claim is the user id the connection may act as.
type JWTAuthenticator struct {
	secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

func NewJWTAuthenticator(secret, issuer, audience string) *JWTAuthenticator {
	return &JWTAuthenticator{
		secret:   []byte(secret),
		Issuer:   issuer,
		Audience: audience,
		Leeway:   30 * time.Second,
	}
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (Claims, error) {
	token, err := extractToken(r)
	if err != nil {
		return Claims{}, err
	}
	return a.Verify(token)
}

// Verify parses and validates a signed token.
func (a *JWTAuthenticator) Verify(token string) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.Leeway),
	}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}
	if a.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.Audience))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{Subject: sub, Issuer: claims.Issuer}, nil
}

// extractToken reads the Authorization bearer header, falling back to the
// token query parameter (browsers cannot set headers on a WebSocket).
func extractToken(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		if !strings.HasPrefix(h, "Bearer ") {
			return "", ErrInvalidToken
		}
		token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		if token == "" {
			return "", ErrInvalidToken
		}
		return token, nil
	}
	if token := strings.TrimSpace(r.URL.Query().Get(protocol.ParamToken)); token != "" {
		return token, nil
	}
	return "", ErrMissingToken
}
