package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rojo-studio/rojo-server/internal/models"
)

type fakeBans map[string]*models.IPBan

func (f fakeBans) Active(_ context.Context, ip string) (*models.IPBan, error) {
	return f[ip], nil
}

func TestIPBanMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IPBanMiddleware(fakeBans{"192.0.2.1": {IP: "192.0.2.1", Reason: "spam", ExpiresAt: time.Now().Add(time.Hour)}}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("banned status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "192.0.2.2:1234"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("allowed status = %d", w.Code)
	}
}

func TestLoginThrottle(t *testing.T) {
	throttle := NewLoginThrottle(1, 2)
	if !throttle.Allow("a") || !throttle.Allow("a") {
		t.Fatal("burst should be allowed")
	}
	if throttle.Allow("a") {
		t.Fatal("third attempt should be throttled")
	}
	if !throttle.Allow("b") {
		t.Fatal("other clients are independent")
	}
	throttle.cleanup(time.Now().Add(time.Hour))
	if len(throttle.limiters) != 0 {
		t.Fatalf("limiters = %d", len(throttle.limiters))
	}
}

func TestBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if _, msg := BearerToken(c); msg != "missing authorization header" {
		t.Fatalf("msg = %q", msg)
	}
	c.Request.Header.Set("Authorization", "Bearer abc")
	if token, msg := BearerToken(c); token != "abc" || msg != "" {
		t.Fatalf("token = %q msg = %q", token, msg)
	}
}
