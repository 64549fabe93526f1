package utils

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "postdispatch"

// Claims identifies the workspace a session, OAuth state or invoker token acts for.
type Claims struct {
	WorkspaceID string `json:"workspace_id"`
	Scope       string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

const ScopeDispatch = "dispatch"

func (c *Claims) Workspace() (int64, error) {
	id, err := strconv.ParseInt(c.WorkspaceID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid workspace id %q: %w", c.WorkspaceID, err)
	}
	return id, nil
}

func GenerateToken(secretKey, workspaceID, scope string, tokenDuration time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		WorkspaceID: workspaceID,
		Scope:       scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func ValidateToken(secretKey, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid token signing method")
		}
		return []byte(secretKey), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
