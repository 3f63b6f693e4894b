package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func securityRouter(opt SecurityOptions, pre gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestSecurityHeaders_BaselineAndExpose(t *testing.T) {
	r := securityRouter(SecurityOptions{}, nil)
	h := serve(r, httptest.NewRequest(http.MethodGet, "/ok", nil)).Header()

	if h.Get("X-Content-Type-Options") != "nosniff" || h.Get("X-Frame-Options") != "DENY" || h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline headers missing: %v", h)
	}
	if h.Get("Permissions-Policy") != "" || h.Get("Cache-Control") != "" || h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("optional headers set without options: %v", h)
	}
	if got := h.Get("Access-Control-Expose-Headers"); got != "X-Request-ID, Idempotency-Replayed, Retry-After" {
		t.Fatalf("expose headers = %q", got)
	}
}

func TestSecurityHeaders_ExposeMergesWithoutDuplicates(t *testing.T) {
	pre := func(c *gin.Context) {
		c.Header("Access-Control-Expose-Headers", "Content-Length, x-request-id")
		c.Next()
	}
	r := securityRouter(SecurityOptions{ExposeHeaders: []string{"X-Request-ID", "Retry-After"}}, pre)
	h := serve(r, httptest.NewRequest(http.MethodGet, "/ok", nil)).Header()
	if got := h.Get("Access-Control-Expose-Headers"); got != "Content-Length, x-request-id, Retry-After" {
		t.Fatalf("merged expose headers = %q", got)
	}
}

func TestSecurityHeaders_PolicyAndNoStore(t *testing.T) {
	r := securityRouter(SecurityOptions{EnablePolicy: true, NoStore: true}, nil)
	h := serve(r, httptest.NewRequest(http.MethodGet, "/ok", nil)).Header()
	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers missing: %v", h)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("no-store headers missing: %v", h)
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	r := securityRouter(SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour}, nil)

	if got := serve(r, httptest.NewRequest(http.MethodGet, "/ok", nil)).Header().Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("HSTS must not be sent over plain HTTP, got %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Forwarded-Proto", "HTTPS")
	if got := serve(r, req).Header().Get("Strict-Transport-Security"); got != "max-age=3600; includeSubDomains; preload" {
		t.Fatalf("HSTS via proxy = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.TLS = &tls.ConnectionState{}
	rDefault := securityRouter(SecurityOptions{EnableHSTS: true}, nil)
	if got := serve(rDefault, req).Header().Get("Strict-Transport-Security"); got != "max-age=15552000; includeSubDomains; preload" {
		t.Fatalf("default HSTS = %q", got)
	}
}
