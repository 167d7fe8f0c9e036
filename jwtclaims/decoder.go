package jwtclaims

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed is returned when the token cannot be decoded or its
	// signature fails verification. The edge gate treats it the same as an
	// absent token.
	ErrMalformed = errors.New("malformed access token")
	// ErrExpired is returned when the exp claim is in the past.
	ErrExpired = errors.New("access token expired")
)

// AccessClaims is the decoded subset of the access token the client is
// allowed to look at: identity, role, and the registered expiry claims.
type AccessClaims struct {
	UID  string `json:"uid"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Decoder decodes access tokens. The zero value decodes unverified;
// construct through [NewDecoder] to attach a verify key.
type Decoder struct {
	verifyKey ed25519.PublicKey
	leeway    time.Duration
	now       func() time.Time
}

// NewDecoder builds a decoder. verifyKey may be nil (decode-only mode) or a
// raw 32-byte Ed25519 public key.
func NewDecoder(verifyKey []byte) (*Decoder, error) {
	d := &Decoder{now: time.Now}
	if len(verifyKey) > 0 {
		if len(verifyKey) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("verify key must be %d bytes, got %d", ed25519.PublicKeySize, len(verifyKey))
		}
		d.verifyKey = ed25519.PublicKey(verifyKey)
	}
	return d, nil
}

// Decode parses raw and returns its claims. Classification is strict:
// anything undecodable or badly signed is [ErrMalformed]; a decodable token
// past its exp claim is [ErrExpired]. Expiry is checked even in unverified
// mode so the gate can redirect before the server sees the request.
func (d *Decoder) Decode(raw string) (*AccessClaims, error) {
	if raw == "" {
		return nil, ErrMalformed
	}
	claims := &AccessClaims{}
	var err error
	if d.verifyKey != nil {
		parser := jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
			jwt.WithLeeway(d.leeway),
		)
		_, err = parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return d.verifyKey, nil
		})
	} else {
		parser := jwt.NewParser()
		_, _, err = parser.ParseUnverified(raw, claims)
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(d.clock()) {
		return nil, ErrExpired
	}
	return claims, nil
}

func (d *Decoder) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}
