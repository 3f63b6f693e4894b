// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger used in production.
// Registration plates are personal data, and operator tokens are credentials;
// neither may reach the logs. The logger never records bodies, masks
// credential headers, and replaces the values of plate-bearing query
// parameters (e.g. /events/search?plate=...).
//
// Usage:
//
//	r := gin.New()
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"X-Api-Key"},
//	}))
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const redactedPlate = "[REDACTED:plate]"

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders lists extra headers whose values are replaced with
// "[REDACTED]" (case-insensitive), on top of Authorization, Cookie,
// Set-Cookie and X-Operator-Token.
//
// MaskQuery lists extra query parameter names whose values are replaced,
// on top of "plate" and "q".
type RedactOptions struct {
	MaskHeaders []string
	MaskQuery   []string
}

// RedactingLogger returns a Gin middleware that logs each request with
// sensitive values scrubbed and attaches a request-scoped logger for
// LoggerFrom. Level is info, warn for 4xx and error for 5xx.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization":                      {},
		"cookie":                             {},
		"set-cookie":                         {},
		strings.ToLower(HeaderOperatorToken): {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	params := []string{"plate", "q"}
	for _, p := range opts.MaskQuery {
		if p = strings.TrimSpace(p); p != "" {
			params = append(params, regexp.QuoteMeta(p))
		}
	}
	queryRE := regexp.MustCompile(`(?i)(^|&)(` + strings.Join(params, "|") + `)=[^&]*`)

	redactQuery := func(q string) string {
		if q == "" {
			return q
		}
		return queryRE.ReplaceAllString(q, "${1}${2}="+redactedPlate)
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := truncate(redactQuery(c.Request.URL.RawQuery), maxQueryLogLength)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = strings.Join(vv, ", ")
		}

		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		l := log.With().
			Str("request_id", reqID).
			Str("gate_id", GateID(c)).
			Logger()
		c.Set("logger", &l)

		c.Next()

		status := c.Writer.Status()
		ev := l.Info()
		switch {
		case status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		}

		ev.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Str("operator", Operator(c)).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
