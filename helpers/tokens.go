// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package helpers

import (
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// AccessTokenLifetime is how long a minted access token stays valid.
const AccessTokenLifetime = 15 * time.Minute

// CreateAccessToken mints a signed HS256 access token for the player.  The
// subject claim carries the player id in decimal.  The returned lifetime is
// whole seconds, for the expires_in response field.
func CreateAccessToken(secret string, playerID int64, username string) (string, int64, error) {
	signed, err := signAccessToken(secret, playerID, username,
		time.Now().Add(AccessTokenLifetime))
	if err != nil {
		return "", 0, err
	}
	return signed, int64(AccessTokenLifetime / time.Second), nil
}

func signAccessToken(secret string, playerID int64, username string, expiry time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      strconv.FormatInt(playerID, 10),
		"username": username,
		"exp":      expiry.Unix(),
	})
	return token.SignedString([]byte(secret))
}
