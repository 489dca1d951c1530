package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/pquerna/otp/totp"
	"github.com/rojo-studio/rojo-server/internal/kvstore"
	"github.com/rojo-studio/rojo-server/internal/models"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret-pass")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !CheckPassword(hash, "secret-pass") || CheckPassword(hash, "other") {
		t.Fatal("CheckPassword mismatch")
	}
	if _, err = HashPassword("123"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("short password error = %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	now := time.Now()
	token, expiresAt, err := IssueToken("s3cret", TokenRequest{UserID: 42, IsAdmin: true, MFAAt: now, Expiry: time.Hour, Now: now})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if !expiresAt.After(now) {
		t.Fatalf("expiresAt = %v", expiresAt)
	}
	claims, err := ParseToken("s3cret", token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.UserID != 42 || !claims.IsAdmin {
		t.Fatalf("claims = %#v", claims)
	}
	if !claims.MFAVerifiedWithin(now.Add(5*time.Minute), 10*time.Minute) {
		t.Fatal("mfa should be fresh")
	}
	if claims.MFAVerifiedWithin(now.Add(time.Hour), 10*time.Minute) {
		t.Fatal("mfa should be stale")
	}
	if _, err = ParseToken("other", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret error = %v", err)
	}
}

func TestExpiredToken(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	token, _, err := IssueToken("s", TokenRequest{UserID: 1, Expiry: time.Hour, Now: past})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err = ParseToken("s", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token error = %v", err)
	}
}

func TestTOTP(t *testing.T) {
	enrollment, err := GenerateTOTP("Rojo Studio", "admin@example.com")
	if err != nil {
		t.Fatalf("GenerateTOTP() error = %v", err)
	}
	now := time.Now()
	code, err := totp.GenerateCode(enrollment.Secret, now)
	if err != nil {
		t.Fatalf("GenerateCode() error = %v", err)
	}
	if !ValidateTOTP(enrollment.Secret, code, now) {
		t.Fatal("valid code rejected")
	}
	if ValidateTOTP(enrollment.Secret, "", now) {
		t.Fatal("empty code accepted")
	}
}

func TestNewWebAuthnDisabledWithoutOrigins(t *testing.T) {
	if _, err := NewWebAuthn(WebAuthnOptions{RPID: "localhost"}); !errors.Is(err, ErrWebAuthnDisabled) {
		t.Fatalf("error = %v", err)
	}
	w, err := NewWebAuthn(WebAuthnOptions{RPID: "localhost", RPOrigins: []string{"http://localhost:3000"}})
	if err != nil || w == nil {
		t.Fatalf("NewWebAuthn() = %v, %v", w, err)
	}
}

func TestPasskeyUserCredentials(t *testing.T) {
	user := &models.User{ID: 9, Email: "a@example.com", Username: "a"}
	if creds := (PasskeyUser{User: user}).WebAuthnCredentials(); len(creds) != 0 {
		t.Fatalf("creds = %#v", creds)
	}
	cred := &webauthn.Credential{ID: []byte{1, 2}, PublicKey: []byte{3}}
	cred.Authenticator.SignCount = 7
	ApplyCredential(user, cred)
	creds := PasskeyUser{User: user}.WebAuthnCredentials()
	if len(creds) != 1 || creds[0].Authenticator.SignCount != 7 {
		t.Fatalf("creds = %#v", creds)
	}
	if got := (PasskeyUser{User: user}).WebAuthnDisplayName(); got != "a" {
		t.Fatalf("display name = %q", got)
	}
}

func TestSessionStoreTakeIsSingleUse(t *testing.T) {
	sessions := NewSessionStore(kvstore.NewMemoryStore(nil))
	ctx := context.Background()
	if err := sessions.Save(ctx, "register", 5, &webauthn.SessionData{Challenge: "abc"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := sessions.Take(ctx, "register", 5)
	if err != nil || got.Challenge != "abc" {
		t.Fatalf("Take() = %#v, %v", got, err)
	}
	if _, err = sessions.Take(ctx, "register", 5); !errors.Is(err, kvstore.ErrNotFound) {
		t.Fatalf("second Take() error = %v", err)
	}
}
