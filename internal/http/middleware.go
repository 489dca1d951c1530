// Package http holds middleware shared by the front and admin APIs.
package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rojo-studio/rojo-server/internal/models"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RequestLogger emits one logrus entry per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    status,
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Warn("request failed")
		case c.Request.URL.Path == "/healthz":
			entry.Debug("request")
		default:
			entry.Info("request")
		}
	}
}

// BearerToken extracts the token from the Authorization header. The second
// return value is the error message to send when extraction fails.
func BearerToken(c *gin.Context) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", "missing authorization header"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return "", "invalid authorization format"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// BanLookup finds the active ban for a client IP.
type BanLookup interface {
	Active(ctx context.Context, ip string) (*models.IPBan, error)
}

// IPBanMiddleware rejects requests from banned client IPs.
func IPBanMiddleware(bans BanLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		if bans == nil {
			c.Next()
			return
		}
		ban, errBan := bans.Active(c.Request.Context(), c.ClientIP())
		if errBan != nil {
			log.WithError(errBan).Warn("ip ban lookup failed")
			c.Next()
			return
		}
		if ban != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":      "Your IP address is banned",
				"reason":     ban.Reason,
				"expires_at": ban.ExpiresAt,
			})
			return
		}
		c.Next()
	}
}

// LoginThrottle limits sign-in attempts per client IP.
type LoginThrottle struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastAccess map[string]time.Time
}

// NewLoginThrottle allows burst attempts, refilled at perMinute per minute.
func NewLoginThrottle(perMinute float64, burst int) *LoginThrottle {
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = 5
	}
	return &LoginThrottle{
		limit:      rate.Limit(perMinute / 60),
		burst:      burst,
		ttl:        30 * time.Minute,
		limiters:   make(map[string]*rate.Limiter),
		lastAccess: make(map[string]time.Time),
	}
}

// Allow reports whether key may attempt another sign-in now.
func (t *LoginThrottle) Allow(key string) bool {
	t.mu.Lock()
	limiter, ok := t.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(t.limit, t.burst)
		t.limiters[key] = limiter
	}
	t.lastAccess[key] = time.Now()
	t.mu.Unlock()
	return limiter.Allow()
}

// Middleware rejects throttled clients with 429.
func (t *LoginThrottle) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !t.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts, try again later"})
			return
		}
		c.Next()
	}
}

// Start drops idle limiters until ctx ends.
func (t *LoginThrottle) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.cleanup(time.Now())
			}
		}
	}()
}

func (t *LoginThrottle) cleanup(now time.Time) {
	cutoff := now.Add(-t.ttl)
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, last := range t.lastAccess {
		if last.Before(cutoff) {
			delete(t.lastAccess, key)
			delete(t.limiters, key)
		}
	}
}
