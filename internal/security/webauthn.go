package security

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/rojo-studio/rojo-server/internal/kvstore"
	"github.com/rojo-studio/rojo-server/internal/models"
)

// ErrWebAuthnDisabled is returned when no relying party is configured.
var ErrWebAuthnDisabled = errors.New("passkeys are not configured")

// WebAuthnOptions configure the relying party.
type WebAuthnOptions struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
}

// NewWebAuthn builds a relying party. It returns ErrWebAuthnDisabled when
// RPID or origins are missing.
func NewWebAuthn(opts WebAuthnOptions) (*webauthn.WebAuthn, error) {
	rpID := strings.TrimSpace(opts.RPID)
	origins := make([]string, 0, len(opts.RPOrigins))
	for _, origin := range opts.RPOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if rpID == "" || len(origins) == 0 {
		return nil, ErrWebAuthnDisabled
	}
	displayName := strings.TrimSpace(opts.RPDisplayName)
	if displayName == "" {
		displayName = "Rojo Studio"
	}
	w, errNew := webauthn.New(&webauthn.Config{
		RPID:          rpID,
		RPDisplayName: displayName,
		RPOrigins:     origins,
	})
	if errNew != nil {
		return nil, fmt.Errorf("webauthn: %w", errNew)
	}
	return w, nil
}

// PasskeyUser adapts models.User to webauthn.User.
type PasskeyUser struct {
	User *models.User
}

// WebAuthnID implements webauthn.User.
func (u PasskeyUser) WebAuthnID() []byte {
	id := make([]byte, 8)
	binary.BigEndian.PutUint64(id, u.User.ID)
	return id
}

// WebAuthnName implements webauthn.User.
func (u PasskeyUser) WebAuthnName() string { return u.User.Email }

// WebAuthnDisplayName implements webauthn.User.
func (u PasskeyUser) WebAuthnDisplayName() string {
	if u.User.Nickname != "" {
		return u.User.Nickname
	}
	return u.User.Username
}

// WebAuthnCredentials implements webauthn.User.
func (u PasskeyUser) WebAuthnCredentials() []webauthn.Credential {
	if len(u.User.PasskeyID) == 0 {
		return nil
	}
	cred := webauthn.Credential{
		ID:        u.User.PasskeyID,
		PublicKey: u.User.PasskeyPublicKey,
	}
	if u.User.PasskeySignCount != nil {
		cred.Authenticator.SignCount = *u.User.PasskeySignCount
	}
	if u.User.PasskeyBackupEligible != nil {
		cred.Flags.BackupEligible = *u.User.PasskeyBackupEligible
	}
	if u.User.PasskeyBackupState != nil {
		cred.Flags.BackupState = *u.User.PasskeyBackupState
	}
	return []webauthn.Credential{cred}
}

// ApplyCredential copies cred into the user's passkey columns.
func ApplyCredential(user *models.User, cred *webauthn.Credential) {
	signCount := cred.Authenticator.SignCount
	backupEligible := cred.Flags.BackupEligible
	backupState := cred.Flags.BackupState
	user.PasskeyID = cred.ID
	user.PasskeyPublicKey = cred.PublicKey
	user.PasskeySignCount = &signCount
	user.PasskeyBackupEligible = &backupEligible
	user.PasskeyBackupState = &backupState
}

// SessionTTL bounds how long a WebAuthn ceremony may take.
const SessionTTL = 5 * time.Minute

// SessionStore keeps WebAuthn ceremony state between the options and verify calls.
type SessionStore struct {
	store  kvstore.Store
	prefix string
}

// NewSessionStore constructs a SessionStore on store.
func NewSessionStore(store kvstore.Store) *SessionStore {
	return &SessionStore{store: store, prefix: "webauthn:session:"}
}

// Save stores session under purpose and userID.
func (s *SessionStore) Save(ctx context.Context, purpose string, userID uint64, session *webauthn.SessionData) error {
	raw, errMarshal := json.Marshal(session)
	if errMarshal != nil {
		return fmt.Errorf("webauthn session: marshal: %w", errMarshal)
	}
	return s.store.Set(ctx, s.key(purpose, userID), raw, SessionTTL)
}

// Take loads and deletes the session for purpose and userID.
func (s *SessionStore) Take(ctx context.Context, purpose string, userID uint64) (*webauthn.SessionData, error) {
	key := s.key(purpose, userID)
	raw, errGet := s.store.Get(ctx, key)
	if errGet != nil {
		return nil, errGet
	}
	_ = s.store.Delete(ctx, key)
	var session webauthn.SessionData
	if errUnmarshal := json.Unmarshal(raw, &session); errUnmarshal != nil {
		return nil, fmt.Errorf("webauthn session: unmarshal: %w", errUnmarshal)
	}
	return &session, nil
}

func (s *SessionStore) key(purpose string, userID uint64) string {
	return fmt.Sprintf("%s%s:%d", s.prefix, purpose, userID)
}
