package servicetoken

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestSignAndVerify(t *testing.T) {
	signer, err := NewSigner("gateway", testSecret, 2*time.Second)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	verifier, err := NewVerifier("rag", testSecret, []string{"gateway"}, time.Second)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	token, err := signer.Sign("rag")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	claims, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Issuer != "gateway" {
		t.Fatalf("issuer = %q, want %q", claims.Issuer, "gateway")
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	signer, err := NewSigner("gateway", testSecret, time.Minute)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	verifier, err := NewVerifier("rag", testSecret, []string{"gateway"}, time.Second)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	token, err := signer.Sign("somewhere-else")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := verifier.Verify(token); err == nil {
		t.Fatal("expected audience mismatch to fail")
	}
}

func TestVerifyRejectsUnknownIssuer(t *testing.T) {
	signer, err := NewSigner("intruder", testSecret, time.Minute)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	verifier, err := NewVerifier("rag", testSecret, []string{"gateway"}, time.Second)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	token, err := signer.Sign("rag")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := verifier.Verify(token); err == nil {
		t.Fatal("expected unknown issuer to fail")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signer, err := NewSigner("gateway", strings.Repeat("x", 32), time.Minute)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	verifier, err := NewVerifier("rag", testSecret, []string{"gateway"}, time.Second)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	token, err := signer.Sign("rag")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := verifier.Verify(token); err == nil {
		t.Fatal("expected signature mismatch to fail")
	}
}

func TestNewSignerRejectsShortSecret(t *testing.T) {
	if _, err := NewSigner("gateway", "short", time.Minute); err == nil {
		t.Fatal("expected short secret to fail")
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	if _, ok := BearerToken(r); ok {
		t.Fatal("expected missing header to report false")
	}
	r.Header.Set("Authorization", "Bearer abc")
	token, ok := BearerToken(r)
	if !ok || token != "abc" {
		t.Fatalf("BearerToken = %q, %v, want %q, true", token, ok, "abc")
	}
}
