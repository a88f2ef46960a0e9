package security

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestJWTManagerSignAndParse(t *testing.T) {
	mgr := NewJWTManager("coinwatch", "coinwatch-api", testSecret)

	raw, err := mgr.SignAccessToken(42, "alice@example.com", "user", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := mgr.ParseAccessToken(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Email != "alice@example.com" || claims.Role != "user" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.TokenType != "access" {
		t.Fatalf("unexpected token type: %q", claims.TokenType)
	}

	userID, err := UserIDFromSubject(claims.Subject)
	if err != nil {
		t.Fatalf("parse subject: %v", err)
	}
	if userID != 42 {
		t.Fatalf("expected user 42, got %d", userID)
	}
}

func TestJWTManagerRejectsExpiredToken(t *testing.T) {
	mgr := NewJWTManager("coinwatch", "coinwatch-api", testSecret)
	raw, err := mgr.SignAccessToken(1, "a@b.c", "user", -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := mgr.ParseAccessToken(raw); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestJWTManagerRejectsWrongSecret(t *testing.T) {
	mgr := NewJWTManager("coinwatch", "coinwatch-api", testSecret)
	other := NewJWTManager("coinwatch", "coinwatch-api", "another-secret-another-secret-xx")

	raw, err := mgr.SignAccessToken(1, "a@b.c", "user", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := other.ParseAccessToken(raw); err == nil {
		t.Fatal("expected signature mismatch to be rejected")
	}
}

func TestJWTManagerRejectsWrongIssuerOrAudience(t *testing.T) {
	mgr := NewJWTManager("coinwatch", "coinwatch-api", testSecret)
	wrongIssuer := NewJWTManager("someone-else", "coinwatch-api", testSecret)
	wrongAudience := NewJWTManager("coinwatch", "other-api", testSecret)

	raw, err := wrongIssuer.SignAccessToken(1, "a@b.c", "user", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := mgr.ParseAccessToken(raw); err == nil {
		t.Fatal("expected wrong issuer rejected")
	}

	raw, err = wrongAudience.SignAccessToken(1, "a@b.c", "user", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := mgr.ParseAccessToken(raw); err == nil {
		t.Fatal("expected wrong audience rejected")
	}
}

func TestUserIDFromSubjectRejectsGarbage(t *testing.T) {
	if _, err := UserIDFromSubject("not-a-number"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNewOpaqueTokenShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		tok, err := NewOpaqueToken()
		if err != nil {
			t.Fatalf("new token: %v", err)
		}
		if len(tok) != opaqueTokenBytes*2 {
			t.Fatalf("expected %d hex chars, got %d", opaqueTokenBytes*2, len(tok))
		}
		if strings.ToLower(tok) != tok {
			t.Fatalf("expected lowercase hex, got %q", tok)
		}
		if seen[tok] {
			t.Fatal("duplicate token generated")
		}
		seen[tok] = true
	}
}

func TestHashRefreshTokenDependsOnPepper(t *testing.T) {
	a := HashRefreshToken("raw-token", "pepper-one")
	b := HashRefreshToken("raw-token", "pepper-two")
	if a == b {
		t.Fatal("different peppers must produce different hashes")
	}
	if a != HashRefreshToken("raw-token", "pepper-one") {
		t.Fatal("hash must be deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("expected sha-256 hex digest, got %d chars", len(a))
	}
}
