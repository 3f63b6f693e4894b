// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements operator authentication for routes that override or
// dump the ledger (manual exit, CSV export). Operators present an HS256 JWT
// either as "Authorization: Bearer <token>" or in X-Operator-Token. The
// token subject is stashed in the Gin context and appears in access logs.
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// HeaderOperatorToken is the alternative to the Authorization header for
// clients that cannot set bearer credentials.
const HeaderOperatorToken = "X-Operator-Token"

const ctxKeyOperator = "operator"

// AuthOptions configures OperatorAuth.
type AuthOptions struct {
	// Secret is the HS256 signing key. Empty disables authentication.
	Secret []byte
	// Issuer, when set, must match the token's iss claim.
	Issuer string
	// Leeway tolerates clock skew on exp/nbf/iat. Defaults to 30s.
	Leeway time.Duration
}

// Operator returns the authenticated operator subject, or "".
func Operator(c *gin.Context) string {
	v, ok := c.Get(ctxKeyOperator)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// OperatorAuth rejects requests without a valid operator token with 401.
// Tokens must carry exp and a non-empty sub. When opts.Secret is empty the
// middleware lets every request through.
func OperatorAuth(opts AuthOptions) gin.HandlerFunc {
	if len(opts.Secret) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	leeway := opts.Leeway
	if leeway <= 0 {
		leeway = 30 * time.Second
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	parser := jwt.NewParser(parserOpts...)
	keyFn := func(*jwt.Token) (any, error) { return opts.Secret, nil }

	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			unauthorized(c, "operator token required")
			return
		}
		claims := &jwt.RegisteredClaims{}
		if _, err := parser.ParseWithClaims(raw, claims, keyFn); err != nil {
			msg := "invalid operator token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "operator token expired"
			}
			unauthorized(c, msg)
			return
		}
		if strings.TrimSpace(claims.Subject) == "" {
			unauthorized(c, "operator token has no subject")
			return
		}
		c.Set(ctxKeyOperator, claims.Subject)
		c.Next()
	}
}

// IssueOperatorToken signs an HS256 token for subject valid for ttl from now.
func IssueOperatorToken(secret []byte, issuer, subject string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return strings.TrimSpace(c.GetHeader(HeaderOperatorToken))
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="operator"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
