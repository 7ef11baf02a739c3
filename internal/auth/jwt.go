package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"studenttracker/internal/model"
)

type Claims struct {
	UserID   string `json:"user_id"`
	UserType string `json:"user_type"`
	jwt.RegisteredClaims
}

// ParseToken verifies an access token minted by the identity provider and
// returns its claims. Issuing tokens is not this service's job.
func ParseToken(secret, issuer, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Identity maps verified claims onto the closed Role set. Tokens carrying an
// unknown user_type are treated as invalid rather than passed through.
func (c *Claims) Identity() (model.Identity, error) {
	role, err := model.ParseRole(c.UserType)
	if err != nil {
		return model.Identity{}, jwt.ErrTokenInvalidClaims
	}
	return model.Identity{UserID: c.UserID, Role: role}, nil
}
