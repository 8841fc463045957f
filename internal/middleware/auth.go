package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token body issued by the identity provider. The subject is
// the user id.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserRegistrar records the authenticated user locally.
type UserRegistrar interface {
	Ensure(ctx context.Context, userID, name, email string) error
}

// AuthMiddleware validates an HS256 bearer token and stores its subject as
// userID. Browsers cannot set headers on a websocket upgrade, so a token
// query parameter is accepted as well. When users is set, the account is
// registered from the token claims before the request proceeds.
func AuthMiddleware(secret string, users UserRegistrar) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		raw, err := tokenFromRequest(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		claims, err := parseClaims(raw, key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if users != nil {
			if err := users.Ensure(c.Request.Context(), claims.Subject, claims.Name, claims.Email); err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not register user"})
				return
			}
		}

		c.Set("userID", claims.Subject)
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", errors.New("missing authorization")
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", errors.New("invalid authorization header")
	}
	return token, nil
}

func parseClaims(raw string, key []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
