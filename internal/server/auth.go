package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mineguard/cheatercheck/pkg/messaging"
)

const claimsContextKey = "staffClaims"

// StaffClaims is the JWT claims structure for staff API tokens. Subject
// carries the staff player's UUID; tokens minted for the console leave it
// empty.
type StaffClaims struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// HasPermission reports whether the token carries the given permission.
// A literal "*" grants everything.
func (c *StaffClaims) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm || p == "*" {
			return true
		}
	}
	return false
}

// Auth validates staff API tokens signed with the shared HMAC secret.
type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// Sign mints a staff token. Used by the token subcommand and by tests.
func (a *Auth) Sign(staff messaging.Actor, permissions []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := StaffClaims{
		Name:        staff.Name,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "cheatercheck",
			Subject:   staff.ID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Parse validates a token string and returns its claims.
func (a *Auth) Parse(tokenString string) (*StaffClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StaffClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*StaffClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// Require is a gin middleware that validates the bearer token and checks
// the given permission before letting the request through.
func (a *Auth) Require(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed authorization header"})
			return
		}
		claims, err := a.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		if !claims.HasPermission(permission) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing permission " + permission})
			return
		}
		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// requireSharedToken authenticates the host shim's event stream with the
// static shared token. An empty configured token disables the check for
// local development.
func requireSharedToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got, ok := bearerToken(c)
		if !ok || got != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid host token"})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// actorFrom rebuilds the staff actor from the validated claims. Tokens
// without a player UUID act as the console.
func actorFrom(c *gin.Context) messaging.Actor {
	v, ok := c.Get(claimsContextKey)
	if !ok {
		return messaging.ConsoleActor()
	}
	claims := v.(*StaffClaims)
	id, err := uuid.Parse(claims.Subject)
	if err != nil || id == uuid.Nil {
		actor := messaging.ConsoleActor()
		if claims.Name != "" {
			actor.Name = claims.Name
		}
		return actor
	}
	return messaging.Actor{ID: id, Name: claims.Name}
}
