// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.
package helpers

import (
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
)

const testSecret = "abrakadabra"

func parseToken(t *testing.T, signed, secret string) (jwt.MapClaims, error) {
	t.Helper()
	token, err := jwt.Parse(signed, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		t.Fatal("parsed token is not valid")
	}
	return claims, nil
}

func TestCreateAccessTokenRoundTrip(t *testing.T) {
	signed, expiresIn, err := CreateAccessToken(testSecret, 42, "nimble-walrus")
	if err != nil {
		t.Fatalf("CreateAccessToken() error = %v", err)
	}
	if expiresIn != int64(AccessTokenLifetime/time.Second) {
		t.Errorf("CreateAccessToken() expiresIn = %v, want %v", expiresIn,
			int64(AccessTokenLifetime/time.Second))
	}

	claims, err := parseToken(t, signed, testSecret)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if sub, _ := claims["sub"].(string); sub != "42" {
		t.Errorf("sub claim = %v, want 42", claims["sub"])
	}
	if username, _ := claims["username"].(string); username != "nimble-walrus" {
		t.Errorf("username claim = %v, want nimble-walrus", claims["username"])
	}
	exp, ok := claims["exp"].(float64)
	if !ok || int64(exp) <= time.Now().Unix() {
		t.Errorf("exp claim %v is not in the future", claims["exp"])
	}
}

func TestCreateAccessTokenWrongSecret(t *testing.T) {
	signed, _, err := CreateAccessToken(testSecret, 7, "plaid-otter")
	if err != nil {
		t.Fatalf("CreateAccessToken() error = %v", err)
	}
	if _, err := parseToken(t, signed, "not-the-secret"); err == nil {
		t.Error("expected an error parsing with the wrong secret")
	}
}

func TestAccessTokenExpired(t *testing.T) {
	signed, err := signAccessToken(testSecret, 7, "plaid-otter",
		time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("signAccessToken() error = %v", err)
	}
	_, err = parseToken(t, signed, testSecret)
	vErr, ok := err.(*jwt.ValidationError)
	if !ok || vErr.Errors&jwt.ValidationErrorExpired == 0 {
		t.Errorf("expected an expiry validation error, got %v", err)
	}
}
