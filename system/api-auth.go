package system

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgrijalva/jwt-go"
)

// ErrAccessTokenExpired reports a well formed access token past its expiry
// claim.  Clients see the token_expired code only for this case.
var ErrAccessTokenExpired = errors.New("access token expired")

// validateToken checks the Bearer token's signature and expiry and returns
// the player id carried in the subject claim.
func (application *Application) validateToken(authHeader string) (int64, error) {
	apitoken := strings.TrimPrefix(authHeader, "Bearer ")

	JWTtoken, err := jwt.Parse(apitoken, func(token *jwt.Token) (interface{}, error) {
		// validate signing algorithm
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(application.APISecret), nil
	})
	if err != nil {
		if vErr, ok := err.(*jwt.ValidationError); ok &&
			vErr.Errors&jwt.ValidationErrorExpired != 0 {
			return -1, ErrAccessTokenExpired
		}
		return -1, fmt.Errorf("invalid token: %v", err)
	}

	claims, ok := JWTtoken.Claims.(jwt.MapClaims)
	if !ok || !JWTtoken.Valid {
		return -1, errors.New("invalid token")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return -1, errors.New("invalid token subject")
	}
	playerID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return -1, fmt.Errorf("invalid token subject: %v", err)
	}
	return playerID, nil
}
