package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for malformed, expired or mis-signed tokens.
var ErrInvalidToken = errors.New("invalid token")

const tokenIssuer = "rojo-studio"

// Claims are carried by session tokens.
type Claims struct {
	UserID  uint64 `json:"uid"`
	IsAdmin bool   `json:"adm,omitempty"`
	// MFAAt is the unix time of the last second-factor verification, 0 if none.
	MFAAt int64 `json:"mfa,omitempty"`
	jwt.RegisteredClaims
}

// MFAVerifiedWithin reports whether a second factor was verified within ttl of now.
func (c *Claims) MFAVerifiedWithin(now time.Time, ttl time.Duration) bool {
	if c == nil || c.MFAAt <= 0 {
		return false
	}
	return now.Sub(time.Unix(c.MFAAt, 0)) <= ttl
}

// TokenRequest describes a token to issue.
type TokenRequest struct {
	UserID  uint64
	IsAdmin bool
	MFAAt   time.Time
	Expiry  time.Duration
	Now     time.Time
}

// IssueToken signs an HS256 session token.
func IssueToken(secret string, req TokenRequest) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, fmt.Errorf("issue token: empty secret")
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	expiry := req.Expiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	expiresAt := now.Add(expiry).UTC()
	claims := Claims{
		UserID:  req.UserID,
		IsAdmin: req.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatUint(req.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if !req.MFAAt.IsZero() {
		claims.MFAAt = req.MFAAt.Unix()
	}
	signed, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if errSign != nil {
		return "", time.Time{}, fmt.Errorf("issue token: %w", errSign)
	}
	return signed, expiresAt, nil
}

// ParseToken validates token and returns its claims.
func ParseToken(secret, token string) (*Claims, error) {
	claims := &Claims{}
	parsed, errParse := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if errParse != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
