package jwtclaims

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signEd25519(t *testing.T, key ed25519.PrivateKey, claims AccessClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	raw, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return raw
}

func signHS256(t *testing.T, claims AccessClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return raw
}

func futureClaims(role string) AccessClaims {
	return AccessClaims{
		UID:  "u-1",
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(10 * time.Minute)),
		},
	}
}

func TestDecodeUnverifiedReadsClaims(t *testing.T) {
	dec, err := NewDecoder(nil)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	claims, err := dec.Decode(signHS256(t, futureClaims("ADMIN")))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.Role != "ADMIN" || claims.UID != "u-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestDecodeExpired(t *testing.T) {
	dec, _ := NewDecoder(nil)
	expired := AccessClaims{
		Role: "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	if _, err := dec.Decode(signHS256(t, expired)); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	dec, _ := NewDecoder(nil)
	for _, raw := range []string{"", "garbage", "a.b", "a.b.c"} {
		if _, err := dec.Decode(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Decode(%q): expected ErrMalformed, got %v", raw, err)
		}
	}
}

func TestDecodeVerified(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	dec, err := NewDecoder(pub)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	claims, err := dec.Decode(signEd25519(t, priv, futureClaims("TEACHER")))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.Role != "TEACHER" {
		t.Fatalf("unexpected role %q", claims.Role)
	}

	// A token signed by someone else must not verify.
	_, otherPriv, _ := ed25519.GenerateKey(rand.Reader)
	if _, err := dec.Decode(signEd25519(t, otherPriv, futureClaims("TEACHER"))); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for foreign signature, got %v", err)
	}

	// Verified mode must also reject unsigned algorithm downgrades.
	if _, err := dec.Decode(signHS256(t, futureClaims("TEACHER"))); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for wrong algorithm, got %v", err)
	}
}

func TestDecodeVerifiedExpired(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	dec, _ := NewDecoder(pub)
	expired := AccessClaims{
		Role: "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	if _, err := dec.Decode(signEd25519(t, priv, expired)); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestBadVerifyKeyLength(t *testing.T) {
	if _, err := NewDecoder([]byte("too short")); err == nil {
		t.Fatal("expected key-length error")
	}
}
