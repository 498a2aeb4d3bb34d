package testutil

import (
	"strings"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"

	"github.com/kendall-kelly/jersey-repair-api/middleware"
)

// Header names MockAuth reads the caller identity from
const (
	UserHeader  = "X-Test-User"
	ScopeHeader = "X-Test-Scope"
	MockToken   = "mock-token"
)

// MockValidatedClaims creates a mock ValidatedClaims for testing
func MockValidatedClaims(subject, issuer string, scopes []string) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:  issuer,
			Subject: subject,
		},
		CustomClaims: &middleware.CustomClaims{
			Scope: strings.Join(scopes, " "),
		},
	}
}

// SetMockAuthContext sets up a mock authenticated context for testing
func SetMockAuthContext(c *gin.Context, userID string, issuer string, scopes []string) {
	middleware.SetIdentity(c, MockValidatedClaims(userID, issuer, scopes), MockToken)
}

// MockAuth replaces the JWT middleware. Requests without a user header are rejected
// the way a missing bearer token would be.
func MockAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.GetHeader(UserHeader)
		if user == "" {
			c.AbortWithStatusJSON(401, gin.H{
				"success": false,
				"error":   gin.H{"code": "INVALID_TOKEN", "message": "Invalid or missing token"},
			})
			return
		}
		SetMockAuthContext(c, user, "https://test.auth0.com/", strings.Fields(c.GetHeader(ScopeHeader)))
		c.Next()
	}
}
