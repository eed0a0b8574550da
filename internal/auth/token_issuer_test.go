package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestIssuer(t *testing.T, clock func() time.Time) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        "breakdown-sync",
		Audience:      "breakdown-ops",
		TokenTTL:      30 * time.Minute,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return issuer
}

func TestTokenIssuerIssuesOperatorTokens(t *testing.T) {
	issuer := newTestIssuer(t, nil)

	issued, err := issuer.Issue("ops-alice")
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if issued.ExpiresIn != 1800 {
		t.Fatalf("expected 1800 second expiry, got %d", issued.ExpiresIn)
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(issued.Token, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	})
	if err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}
	if claims.Subject != "ops-alice" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Issuer != "breakdown-sync" {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if len(claims.Audience) == 0 || claims.Audience[0] != "breakdown-ops" {
		t.Fatalf("unexpected audience %#v", claims.Audience)
	}
}

func TestTokenIssuerValidatesIssuedTokens(t *testing.T) {
	issuer := newTestIssuer(t, nil)

	issued, err := issuer.Issue("ops-bob")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}
	subject, err := issuer.ValidateToken(issued.Token)
	if err != nil {
		t.Fatalf("expected validation success: %v", err)
	}
	if subject != "ops-bob" {
		t.Fatalf("unexpected subject %s", subject)
	}

	if _, err := issuer.ValidateToken("invalid.token"); err == nil {
		t.Fatalf("expected validation to fail for malformed token")
	}
}

func TestTokenIssuerRejectsExpiredTokens(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, func() time.Time { return now })

	issued, err := issuer.Issue("ops-carol")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}
	now = now.Add(31 * time.Minute)
	if _, err := issuer.ValidateToken(issued.Token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestTokenIssuerRejectsForeignAudience(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	other, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        "breakdown-sync",
		Audience:      "another-service",
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	issued, err := other.Issue("ops-dave")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}
	if _, err := issuer.ValidateToken(issued.Token); err == nil {
		t.Fatalf("expected audience mismatch to fail validation")
	}
}

func TestTokenIssuerRequiresSubject(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	if _, err := issuer.Issue("  "); !errors.Is(err, errMissingSubjectClaim) {
		t.Fatalf("expected missing subject error, got %v", err)
	}
}

func TestNewTokenIssuerValidatesConfig(t *testing.T) {
	valid := TokenIssuerConfig{
		SigningSecret: []byte("secret"),
		Issuer:        "breakdown-sync",
		Audience:      "breakdown-ops",
		TokenTTL:      5 * time.Minute,
	}
	tests := []struct {
		name   string
		mutate func(*TokenIssuerConfig)
		want   error
	}{
		{name: "missing secret", mutate: func(c *TokenIssuerConfig) { c.SigningSecret = nil }, want: errMissingSigningSecret},
		{name: "missing issuer", mutate: func(c *TokenIssuerConfig) { c.Issuer = "" }, want: errMissingIssuer},
		{name: "blank audience", mutate: func(c *TokenIssuerConfig) { c.Audience = " " }, want: errMissingAudience},
		{name: "zero ttl", mutate: func(c *TokenIssuerConfig) { c.TokenTTL = 0 }, want: errInvalidTokenTTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if _, err := NewTokenIssuer(cfg); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
