package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "booki-test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func validClaims(sub string) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   sub,
		Issuer:    "booki-api",
		Audience:  jwt.ClaimStrings{"booki-chat"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

func TestNew_Selection(t *testing.T) {
	if New("", "", "", "") != nil {
		t.Error("expected open access")
	}
	if _, ok := New("tok", "", "", "").(*SharedToken); !ok {
		t.Error("expected shared token")
	}
	if _, ok := New("tok", "secret", "", "").(*JWTAuthenticator); !ok {
		t.Error("expected jwt to win over shared token")
	}
}

func TestSharedToken(t *testing.T) {
	a := &SharedToken{Token: "s3cret"}

	r := httptest.NewRequest("GET", "/ws?token=s3cret", nil)
	if _, err := a.Authenticate(r); err != nil {
		t.Errorf("query token: %v", err)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer s3cret")
	if _, err := a.Authenticate(r); err != nil {
		t.Errorf("bearer: %v", err)
	}

	r = httptest.NewRequest("GET", "/ws?token=nope", nil)
	if _, err := a.Authenticate(r); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong token: %v", err)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	if _, err := a.Authenticate(r); !errors.Is(err, ErrMissingToken) {
		t.Errorf("missing: %v", err)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Basic abc")
	if _, err := a.Authenticate(r); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("basic: %v", err)
	}
}

func TestJWTAuthenticator_Valid(t *testing.T) {
	a := NewJWTAuthenticator(testSecret, "booki-api", "booki-chat")
	token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("cust-1"))

	r := httptest.NewRequest("GET", "/ws?token="+token, nil)
	c, err := a.Authenticate(r)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if c.Subject != "cust-1" || c.Issuer != "booki-api" {
		t.Errorf("claims = %+v", c)
	}
}

func TestJWTAuthenticator_Rejects(t *testing.T) {
	a := NewJWTAuthenticator(testSecret, "booki-api", "booki-chat")

	expired := validClaims("cust-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	wrongAud := validClaims("cust-1")
	wrongAud.Audience = jwt.ClaimStrings{"other"}

	noExp := validClaims("cust-1")
	noExp.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), validClaims("cust-1"))},
		{"expired", sign(t, jwt.SigningMethodHS256, []byte(testSecret), expired)},
		{"wrong audience", sign(t, jwt.SigningMethodHS256, []byte(testSecret), wrongAud)},
		{"no expiry", sign(t, jwt.SigningMethodHS256, []byte(testSecret), noExp)},
		{"no subject", sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(" "))},
		{"other algorithm", sign(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims("cust-1"))},
		{"garbage", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Verify(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v", err)
			}
		})
	}
}
