package security

import (
	"testing"
	"time"
)

func TestGenerateSecureTokenUnique(t *testing.T) {
	first, err := GenerateSecureToken(32)
	if err != nil {
		t.Fatalf("GenerateSecureToken returned error: %v", err)
	}
	second, err := GenerateSecureToken(32)
	if err != nil {
		t.Fatalf("GenerateSecureToken returned error: %v", err)
	}

	if first == "" || second == "" {
		t.Fatal("GenerateSecureToken returned empty value")
	}
	if first == second {
		t.Fatal("GenerateSecureToken returned duplicate values")
	}
}

func TestGenerateSecureTokenRejectsNonPositiveLength(t *testing.T) {
	if _, err := GenerateSecureToken(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestHashTokenDeterministic(t *testing.T) {
	value := "raw-token-value"

	first := HashToken(value)
	second := HashToken(value)
	if first != second {
		t.Fatal("HashToken produced different digests for the same input")
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(first))
	}
	if first == HashToken("other-token-value") {
		t.Fatal("HashToken produced identical digests for different inputs")
	}
}

func TestAccessTokenGenerateAndParse(t *testing.T) {
	gen, err := NewAccessTokenGenerator("unit-test-secret", "account-guard", time.Hour)
	if err != nil {
		t.Fatalf("NewAccessTokenGenerator returned error: %v", err)
	}

	issuedAt := time.Now()
	signed, err := gen.Generate("acct-1", "alice", issuedAt)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	claims, err := gen.Parse(signed)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.Subject != "acct-1" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.Issuer != "account-guard" {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
}

func TestAccessTokenParseRejectsExpired(t *testing.T) {
	gen, err := NewAccessTokenGenerator("unit-test-secret", "account-guard", time.Minute)
	if err != nil {
		t.Fatalf("NewAccessTokenGenerator returned error: %v", err)
	}

	signed, err := gen.Generate("acct-1", "alice", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	if _, err := gen.Parse(signed); err == nil {
		t.Fatal("Parse accepted an expired token")
	}
}

func TestAccessTokenGeneratorRequiresSecret(t *testing.T) {
	if _, err := NewAccessTokenGenerator("", "account-guard", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
