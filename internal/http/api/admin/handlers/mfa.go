package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/rojo-studio/rojo-server/internal/config"
	"github.com/rojo-studio/rojo-server/internal/kvstore"
	"github.com/rojo-studio/rojo-server/internal/models"
	"github.com/rojo-studio/rojo-server/internal/security"
	internalsettings "github.com/rojo-studio/rojo-server/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	pendingTOTPTTL         = 10 * time.Minute
	passkeyRegisterPurpose = "register"
	passkeyVerifyPurpose   = "verify"
)

// MFAHandler manages admin second factors and step-up verification.
type MFAHandler struct {
	db       *gorm.DB
	jwtCfg   config.JWTConfig
	stepUp   time.Duration
	webAuthn *webauthn.WebAuthn
	sessions *security.SessionStore
	kv       kvstore.Store
	nowFn    func() time.Time
}

// NewMFAHandler constructs an MFAHandler. webAuthn may be nil when passkeys
// are not configured.
func NewMFAHandler(db *gorm.DB, jwtCfg config.JWTConfig, stepUp time.Duration, webAuthn *webauthn.WebAuthn, kv kvstore.Store) *MFAHandler {
	return &MFAHandler{
		db:       db,
		jwtCfg:   jwtCfg,
		stepUp:   stepUp,
		webAuthn: webAuthn,
		sessions: security.NewSessionStore(kv),
		kv:       kv,
		nowFn:    time.Now,
	}
}

func (h *MFAHandler) loadAdmin(c *gin.Context) (*models.User, bool) {
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, adminIDFromContext(c)).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "admin not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	return &user, true
}

// respondVerified issues a token carrying a fresh second-factor claim.
func (h *MFAHandler) respondVerified(c *gin.Context, userID uint64) {
	now := h.nowFn()
	token, expiresAt, errToken := issueAdminToken(h.jwtCfg, userID, now)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":              token,
		"expires_at":         expiresAt,
		"mfa_verified_until": now.Add(h.stepUp).UTC(),
	})
}

// Status reports enrolled factors and whether the session is stepped up.
func (h *MFAHandler) Status(c *gin.Context) {
	user, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	claims := adminClaims(c)
	resp := gin.H{
		"totp_enabled":      user.TOTPSecret != "",
		"passkey_enabled":   len(user.PasskeyID) > 0,
		"passkey_available": h.webAuthn != nil,
		"verified":          claims.MFAVerifiedWithin(h.nowFn(), h.stepUp),
	}
	if claims != nil && claims.MFAAt > 0 {
		resp["mfa_verified_until"] = time.Unix(claims.MFAAt, 0).Add(h.stepUp).UTC()
	}
	c.JSON(http.StatusOK, resp)
}

func pendingTOTPKey(userID uint64) string {
	return fmt.Sprintf("mfa:totp:pending:%d", userID)
}

// PrepareTOTP generates a secret that becomes active once confirmed.
func (h *MFAHandler) PrepareTOTP(c *gin.Context) {
	user, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	if user.TOTPSecret != "" {
		c.JSON(http.StatusConflict, gin.H{"error": "totp already enabled"})
		return
	}
	enrollment, errGenerate := security.GenerateTOTP(internalsettings.SiteName(), user.Email)
	if errGenerate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate totp failed"})
		return
	}
	if errSet := h.kv.Set(c.Request.Context(), pendingTOTPKey(user.ID), []byte(enrollment.Secret), pendingTOTPTTL); errSet != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store totp secret failed"})
		return
	}
	c.JSON(http.StatusOK, enrollment)
}

// totpCodeRequest carries a six-digit TOTP code.
type totpCodeRequest struct {
	Code string `json:"code"`
}

// ConfirmTOTP activates the prepared secret after the first valid code.
func (h *MFAHandler) ConfirmTOTP(c *gin.Context) {
	var body totpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	user, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	secret, errGet := h.kv.Get(ctx, pendingTOTPKey(user.ID))
	if errGet != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no pending totp enrollment"})
		return
	}
	if !security.ValidateTOTP(string(secret), trimCode(body.Code), h.nowFn()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid code"})
		return
	}
	if errUpdate := h.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]any{"totp_secret": string(secret), "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save totp failed"})
		return
	}
	if errDelete := h.kv.Delete(ctx, pendingTOTPKey(user.ID)); errDelete != nil {
		log.WithError(errDelete).Debug("mfa: drop pending totp secret")
	}
	log.WithField("admin_id", user.ID).Info("mfa: totp enabled")
	h.respondVerified(c, user.ID)
}

// DisableTOTP removes the TOTP factor after checking a current code.
func (h *MFAHandler) DisableTOTP(c *gin.Context) {
	var body totpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	user, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	if user.TOTPSecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totp not enabled"})
		return
	}
	if !security.ValidateTOTP(user.TOTPSecret, trimCode(body.Code), h.nowFn()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid code"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]any{"totp_secret": "", "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disable totp failed"})
		return
	}
	log.WithField("admin_id", user.ID).Info("mfa: totp disabled")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Verify steps the session up with a TOTP code.
func (h *MFAHandler) Verify(c *gin.Context) {
	var body totpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	user, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	if user.TOTPSecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totp not enabled"})
		return
	}
	if !security.ValidateTOTP(user.TOTPSecret, trimCode(body.Code), h.nowFn()) {
		log.WithFields(log.Fields{"admin_id": user.ID, "client_ip": c.ClientIP()}).Warn("mfa: invalid step-up code")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}
	h.respondVerified(c, user.ID)
}

func (h *MFAHandler) requireWebAuthn(c *gin.Context) bool {
	if h.webAuthn == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": security.ErrWebAuthnDisabled.Error()})
		return false
	}
	return true
}

// BeginPasskeyRegistration returns credential creation options.
func (h *MFAHandler) BeginPasskeyRegistration(c *gin.Context) {
	if !h.requireWebAuthn(c) {
		return
	}
	user, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	if len(user.PasskeyID) > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "passkey already enabled"})
		return
	}
	creation, session, errBegin := h.webAuthn.BeginRegistration(security.PasskeyUser{User: user})
	if errBegin != nil {
		log.WithError(errBegin).Warn("mfa: begin passkey registration failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "begin passkey registration failed"})
		return
	}
	if errSave := h.sessions.Save(c.Request.Context(), passkeyRegisterPurpose, user.ID, session); errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store passkey session failed"})
		return
	}
	c.JSON(http.StatusOK, creation)
}

// FinishPasskeyRegistration verifies the attestation and stores the credential.
func (h *MFAHandler) FinishPasskeyRegistration(c *gin.Context) {
	if !h.requireWebAuthn(c) {
		return
	}
	user, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	session, errTake := h.sessions.Take(ctx, passkeyRegisterPurpose, user.ID)
	if errTake != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no pending passkey registration"})
		return
	}
	cred, errFinish := h.webAuthn.FinishRegistration(security.PasskeyUser{User: user}, *session, c.Request)
	if errFinish != nil {
		log.WithError(errFinish).WithField("admin_id", user.ID).Warn("mfa: passkey registration rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "passkey verification failed"})
		return
	}
	security.ApplyCredential(user, cred)
	if errUpdate := h.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"passkey_id":              user.PasskeyID,
		"passkey_public_key":      user.PasskeyPublicKey,
		"passkey_sign_count":      user.PasskeySignCount,
		"passkey_backup_eligible": user.PasskeyBackupEligible,
		"passkey_backup_state":    user.PasskeyBackupState,
		"updated_at":              time.Now().UTC(),
	}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save passkey failed"})
		return
	}
	log.WithField("admin_id", user.ID).Info("mfa: passkey enabled")
	h.respondVerified(c, user.ID)
}

// DisablePasskey removes the stored credential.
func (h *MFAHandler) DisablePasskey(c *gin.Context) {
	user, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	if len(user.PasskeyID) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "passkey not enabled"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"passkey_id":              nil,
		"passkey_public_key":      nil,
		"passkey_sign_count":      nil,
		"passkey_backup_eligible": nil,
		"passkey_backup_state":    nil,
		"updated_at":              time.Now().UTC(),
	}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disable passkey failed"})
		return
	}
	log.WithField("admin_id", user.ID).Info("mfa: passkey disabled")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// BeginPasskeyVerify returns assertion options for a step-up.
func (h *MFAHandler) BeginPasskeyVerify(c *gin.Context) {
	if !h.requireWebAuthn(c) {
		return
	}
	user, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	if len(user.PasskeyID) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "passkey not enabled"})
		return
	}
	assertion, session, errBegin := h.webAuthn.BeginLogin(security.PasskeyUser{User: user})
	if errBegin != nil {
		log.WithError(errBegin).Warn("mfa: begin passkey verify failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "begin passkey verification failed"})
		return
	}
	if errSave := h.sessions.Save(c.Request.Context(), passkeyVerifyPurpose, user.ID, session); errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store passkey session failed"})
		return
	}
	c.JSON(http.StatusOK, assertion)
}

// FinishPasskeyVerify checks the assertion and steps the session up.
func (h *MFAHandler) FinishPasskeyVerify(c *gin.Context) {
	if !h.requireWebAuthn(c) {
		return
	}
	user, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	session, errTake := h.sessions.Take(ctx, passkeyVerifyPurpose, user.ID)
	if errTake != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no pending passkey verification"})
		return
	}
	cred, errFinish := h.webAuthn.FinishLogin(security.PasskeyUser{User: user}, *session, c.Request)
	if errFinish != nil {
		log.WithError(errFinish).WithFields(log.Fields{"admin_id": user.ID, "client_ip": c.ClientIP()}).Warn("mfa: passkey assertion rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "passkey verification failed"})
		return
	}
	signCount := cred.Authenticator.SignCount
	if errUpdate := h.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
		Update("passkey_sign_count", signCount).Error; errUpdate != nil {
		log.WithError(errUpdate).WithField("admin_id", user.ID).Warn("mfa: update passkey sign count failed")
	}
	h.respondVerified(c, user.ID)
}

// trimCode strips spaces some authenticator apps insert.
func trimCode(code string) string {
	return strings.ReplaceAll(strings.TrimSpace(code), " ", "")
}
