package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/rojo-studio/rojo-server/internal/config"
	"github.com/rojo-studio/rojo-server/internal/contentfilter"
	"github.com/rojo-studio/rojo-server/internal/db"
	"github.com/rojo-studio/rojo-server/internal/http/api/admin/permissions"
	"github.com/rojo-studio/rojo-server/internal/kvstore"
	"github.com/rojo-studio/rojo-server/internal/models"
	"github.com/rojo-studio/rojo-server/internal/projects"
	"github.com/rojo-studio/rojo-server/internal/ratelimit"
	"github.com/rojo-studio/rojo-server/internal/security"
	"github.com/rojo-studio/rojo-server/internal/store"
	"github.com/rojo-studio/rojo-server/internal/usage"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type adminEnv struct {
	engine  *gin.Engine
	conn    *gorm.DB
	limiter *ratelimit.Limiter
}

func newAdminEnv(t *testing.T) *adminEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "admin.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	flags := store.NewGormFlagStore(conn)
	limiter := ratelimit.NewLimiter(context.Background(), kvstore.NewMemoryStore(nil), ratelimit.Config{
		Window:       time.Hour,
		DefaultLimit: 5,
		MaxInFlight:  3,
	}, nil)

	r := gin.New()
	RegisterAdminRoutes(r, conn,
		config.JWTConfig{Secret: "admin-secret", Expiry: time.Hour},
		config.AdminConfig{MFAStepUpTTL: 10 * time.Minute},
		Services{
			Limiter:  limiter,
			Projects: projects.NewService(store.NewGormProjectRepository(conn), contentfilter.New(flags)),
			Flags:    flags,
			Bans:     store.NewGormBanStore(conn),
			Usage:    usage.NewGormRecorder(conn),
			KV:       kvstore.NewMemoryStore(nil),
		})
	return &adminEnv{engine: r, conn: conn, limiter: limiter}
}

func (e *adminEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var errMarshal error
		raw, errMarshal = json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal: %v", errMarshal)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func (e *adminEnv) createUser(t *testing.T, email string, isAdmin, isSuper bool, perms []string) *models.User {
	t.Helper()
	hash, errHash := security.HashPassword("admin-pass")
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	rawPerms, errPerms := permissions.MarshalPermissions(perms)
	if errPerms != nil {
		t.Fatalf("marshal permissions: %v", errPerms)
	}
	user := &models.User{
		Email:        email,
		Username:     email,
		Password:     hash,
		Role:         models.UserRoleUser,
		IsAdmin:      isAdmin,
		IsSuperAdmin: isSuper,
		Permissions:  datatypes.JSON(rawPerms),
	}
	if errCreate := e.conn.Create(user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return user
}

func (e *adminEnv) login(t *testing.T, email string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v0/admin/login", "", map[string]string{"email": email, "password": "admin-pass"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", rec.Code, rec.Body.String())
	}
	return decodeToken(t, rec)
}

func decodeToken(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Token string `json:"token"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode token: %v", errDecode)
	}
	if resp.Token == "" {
		t.Fatalf("missing token in %s", rec.Body.String())
	}
	return resp.Token
}

// enrollTOTP runs the prepare/confirm flow and returns the stepped-up token.
func (e *adminEnv) enrollTOTP(t *testing.T, token string) (string, string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v0/admin/mfa/totp/prepare", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("prepare status = %d body=%s", rec.Code, rec.Body.String())
	}
	var enrollment security.TOTPEnrollment
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &enrollment); errDecode != nil {
		t.Fatalf("decode enrollment: %v", errDecode)
	}
	code, errCode := totp.GenerateCode(enrollment.Secret, time.Now())
	if errCode != nil {
		t.Fatalf("generate code: %v", errCode)
	}
	rec = e.do(t, http.MethodPost, "/v0/admin/mfa/totp/confirm", token, map[string]string{"code": code})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d body=%s", rec.Code, rec.Body.String())
	}
	return decodeToken(t, rec), enrollment.Secret
}

func TestAdminLoginRejectsNonAdmin(t *testing.T) {
	env := newAdminEnv(t)
	env.createUser(t, "player@example.com", false, false, nil)

	rec := env.do(t, http.MethodPost, "/v0/admin/login", "", map[string]string{"email": "player@example.com", "password": "admin-pass"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/v0/admin/login", "", map[string]string{"email": "player@example.com", "password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	env := newAdminEnv(t)
	if rec := env.do(t, http.MethodGet, "/v0/admin/users", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/v0/admin/users", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAdminPermissionCheck(t *testing.T) {
	env := newAdminEnv(t)
	env.createUser(t, "mod@example.com", true, false, []string{permissions.Key(http.MethodGet, "/v0/admin/users")})
	token := env.login(t, "mod@example.com")

	if rec := env.do(t, http.MethodGet, "/v0/admin/users", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("list users status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec := env.do(t, http.MethodGet, "/v0/admin/bans", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("list bans status = %d, want 403", rec.Code)
	}
}

func TestAdminMutationsRequireStepUp(t *testing.T) {
	env := newAdminEnv(t)
	env.createUser(t, "root@example.com", true, true, nil)
	token := env.login(t, "root@example.com")

	body := map[string]any{"message": "Maintenance tonight", "type": "warning"}
	rec := env.do(t, http.MethodPost, "/v0/admin/global-messages", token, body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("mfa enrollment required")) {
		t.Fatalf("body = %s", rec.Body.String())
	}

	verified, secret := env.enrollTOTP(t, token)

	// A fresh login is enrolled but not verified.
	fresh := env.login(t, "root@example.com")
	rec = env.do(t, http.MethodPost, "/v0/admin/global-messages", fresh, body)
	if rec.Code != http.StatusForbidden || !bytes.Contains(rec.Body.Bytes(), []byte("mfa verification required")) {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/v0/admin/global-messages", verified, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body.String())
	}

	code, errCode := totp.GenerateCode(secret, time.Now())
	if errCode != nil {
		t.Fatalf("generate code: %v", errCode)
	}
	rec = env.do(t, http.MethodPost, "/v0/admin/mfa/verify", fresh, map[string]string{"code": code})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d body=%s", rec.Code, rec.Body.String())
	}
	stepped := decodeToken(t, rec)
	rec = env.do(t, http.MethodPost, "/v0/admin/changelogs", stepped, map[string]string{
		"version": "1.2.0",
		"title":   "Explorer",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("changelog status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/v0/admin/mfa/verify", fresh, map[string]string{"code": "000000x"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad code status = %d, want 401", rec.Code)
	}
}

func TestAdminRateLimitControls(t *testing.T) {
	env := newAdminEnv(t)
	env.createUser(t, "root@example.com", true, true, nil)
	player := env.createUser(t, "player@example.com", false, false, nil)
	token, _ := env.enrollTOTP(t, env.login(t, "root@example.com"))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if ok, _ := env.limiter.Admit(ctx, player.ID); !ok {
			t.Fatalf("admit %d refused", i)
		}
	}

	path := "/v0/admin/rate-limits/" + itoa(player.ID)
	rec := env.do(t, http.MethodPost, path+"/bonus", token, map[string]int{"count": 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("bonus status = %d body=%s", rec.Code, rec.Body.String())
	}
	var status ratelimit.Status
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &status); errDecode != nil {
		t.Fatalf("decode status: %v", errDecode)
	}
	if status.Limit != 8 || status.Used != 5 {
		t.Fatalf("status = %+v, want limit 8 used 5", status)
	}

	rec = env.do(t, http.MethodPost, path+"/bonus", token, map[string]int{"count": 0})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("zero bonus status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPost, path+"/reset", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := env.limiter.Status(player.ID); got.Used != 0 || got.Limit != 8 {
		t.Fatalf("after reset = %+v", got)
	}
}

func TestAdminDeleteUserCleansUp(t *testing.T) {
	env := newAdminEnv(t)
	env.createUser(t, "root@example.com", true, true, nil)
	player := env.createUser(t, "player@example.com", false, false, nil)
	token, _ := env.enrollTOTP(t, env.login(t, "root@example.com"))

	flags := store.NewGormFlagStore(env.conn)
	if errFlag := flags.RecordFlag(context.Background(), player.ID, "bad", "test"); errFlag != nil {
		t.Fatalf("record flag: %v", errFlag)
	}

	rec := env.do(t, http.MethodDelete, "/v0/admin/users/"+itoa(player.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d body=%s", rec.Code, rec.Body.String())
	}
	var count int64
	env.conn.Model(&models.FlaggedMessage{}).Where("user_id = ?", player.ID).Count(&count)
	if count != 0 {
		t.Fatalf("flags left = %d", count)
	}
	if rec = env.do(t, http.MethodGet, "/v0/admin/users/"+itoa(player.ID), token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted status = %d, want 404", rec.Code)
	}
}

func itoa(id uint64) string {
	return strconv.FormatUint(id, 10)
}
