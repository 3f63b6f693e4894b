// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Idempotency-Key support for gate and ledger POSTs.
// Gate controllers retry on timeouts; a retried entry must not be answered
// with a 409 for the session its own first attempt opened. The middleware
// therefore stores the first response under (scope, key) and replays it
// verbatim for later requests carrying the same key.
//
// Scope is "<gate>|<route>", so two gates may reuse a key independently and
// one key never crosses endpoints. Persistence is injected as two narrow
// function types so the package stays free of storage imports.
package middleware

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set to "true" on replayed responses.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // bool: response served from the store
	ctxKeyRateBypass = "rate.bypass" // bool: skip rate limiting
)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the response was served from a stored record.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Defaults to ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Now is the clock used for lookups and saves. Defaults to time.Now.
	Now func() time.Time
}

// IdempotencyLookup returns the stored response for (scope, key) if one is
// still valid at now. Errors are treated as a miss.
type IdempotencyLookup func(ctx context.Context, scope, key string, now time.Time) (status int, body []byte, found bool, err error)

// IdempotencySave persists the response produced for (scope, key). A save
// that loses a race to a concurrent request should return nil or an error;
// either way the current response is still delivered.
type IdempotencySave func(ctx context.Context, scope, key string, status int, body []byte, now time.Time) error

// IdempotencyScope returns the storage scope of the current request.
func IdempotencyScope(c *gin.Context) string {
	gate := GateID(c)
	if gate == "" {
		gate = "-"
	}
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	return gate + "|" + route
}

// IdempotencyValidator validates Idempotency-Key on POST requests, replays a
// stored response when one exists, and otherwise records the response the
// handler produces.
//
//   - No header, or a non-POST method: no-op.
//   - Invalid key: 400 bad_idempotency_key.
//   - Stored response found: written with Idempotency-Replayed: true and the
//     chain aborted; the rate-bypass flag is set.
//   - Otherwise the handler runs; 2xx and 4xx responses except 408 and 429
//     are saved. 5xx and throttling responses are not, so a retry after a
//     transient failure reaches the ledger again.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup, save IdempotencySave) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)
		scope := IdempotencyScope(c)
		ctx := c.Request.Context()

		if lookup != nil {
			if status, body, found, err := lookup(ctx, scope, key, now().UTC()); err == nil && found {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
				c.Header(HeaderIdempotencyReplayed, "true")
				c.Data(status, "application/json; charset=utf-8", body)
				c.Abort()
				return
			} else if err != nil {
				LoggerFrom(c).Warn().Err(err).Str("scope", scope).Msg("idempotency lookup failed")
			}
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		if save == nil || !storable(rec.Status()) {
			return
		}
		if err := save(ctx, scope, key, rec.Status(), rec.buf.Bytes(), now().UTC()); err != nil {
			LoggerFrom(c).Warn().Err(err).Str("scope", scope).Msg("idempotency save failed")
		}
	}
}

func storable(status int) bool {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return false
	case status >= 200 && status < 500:
		return true
	default:
		return false
	}
}

// bodyRecorder tees the response body so it can be stored after the handler.
type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
