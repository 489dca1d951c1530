package front

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rojo-studio/rojo-server/internal/chat"
	"github.com/rojo-studio/rojo-server/internal/config"
	"github.com/rojo-studio/rojo-server/internal/contentfilter"
	"github.com/rojo-studio/rojo-server/internal/db"
	"github.com/rojo-studio/rojo-server/internal/kvstore"
	"github.com/rojo-studio/rojo-server/internal/models"
	"github.com/rojo-studio/rojo-server/internal/projects"
	"github.com/rojo-studio/rojo-server/internal/ratelimit"
	"github.com/rojo-studio/rojo-server/internal/store"
	"github.com/rojo-studio/rojo-server/internal/usage"
	"gorm.io/gorm"
)

type testEnv struct {
	engine  *gin.Engine
	conn    *gorm.DB
	limiter *ratelimit.Limiter
	bans    *store.GormBanStore
}

func newTestEnv(t *testing.T, upstream http.HandlerFunc) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "front.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	apiKey := ""
	baseURL := ""
	if upstream != nil {
		srv := httptest.NewServer(upstream)
		t.Cleanup(srv.Close)
		apiKey = "test-key"
		baseURL = srv.URL
	}

	flags := store.NewGormFlagStore(conn)
	filter := contentfilter.New(flags)
	limiter := ratelimit.NewLimiter(context.Background(), kvstore.NewMemoryStore(nil), ratelimit.Config{
		Window:       time.Hour,
		DefaultLimit: 2,
		MaxInFlight:  3,
	}, nil)
	bans := store.NewGormBanStore(conn)

	r := gin.New()
	RegisterFrontRoutes(r, conn, config.JWTConfig{Secret: "front-secret", Expiry: time.Hour}, Services{
		Projects: projects.NewService(store.NewGormProjectRepository(conn), filter),
		Limiter:  limiter,
		Filter:   filter,
		Chat:     chat.NewClient(chat.Options{BaseURL: baseURL, APIKey: apiKey}),
		Usage:    usage.NewGormRecorder(conn),
		Bans:     bans,
	})
	return &testEnv{engine: r, conn: conn, limiter: limiter, bans: bans}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal: %v", errMarshal)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) signup(t *testing.T, email string) (string, uint64) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email":    email,
		"username": strings.Split(email, "@")[0],
		"password": "secret-pass",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID uint64 `json:"id"`
		} `json:"user"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode signup: %v", errDecode)
	}
	return resp.Token, resp.User.ID
}

func streamOK(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, part := range []string{"Hello", " world"} {
		fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func TestSignupLoginAndDuplicateEmail(t *testing.T) {
	env := newTestEnv(t, nil)
	token, _ := env.signup(t, "ana@example.com")

	rec := env.do(t, http.MethodGet, "/v1/auth/me", token, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ana@example.com") {
		t.Fatalf("me status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email": "ANA@example.com", "username": "ana2", "password": "secret-pass",
	})
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Email already registered") {
		t.Fatalf("duplicate status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "ana@example.com", "password": "wrong-pass"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "ana@example.com", "password": "secret-pass"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", rec.Code, rec.Body.String())
	}

	if rec = env.do(t, http.MethodGet, "/v1/auth/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous me status = %d", rec.Code)
	}
}

func TestBannedIPRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, errBan := env.bans.Ban(context.Background(), "192.0.2.1", nil, "spam", 1, time.Hour); errBan != nil {
		t.Fatalf("ban: %v", errBan)
	}
	rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "a@example.com", "password": "x"})
	if rec.Code != http.StatusForbidden || !strings.Contains(rec.Body.String(), "Your IP address is banned") {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestProjectFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	owner, _ := env.signup(t, "owner@example.com")
	guest, _ := env.signup(t, "guest@example.com")

	rec := env.do(t, http.MethodPost, "/v1/projects", owner, map[string]string{"name": "Obby"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body.String())
	}
	var created struct {
		Project projects.Project `json:"project"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &created); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	projectPath := fmt.Sprintf("/v1/projects/%d", created.Project.ID)

	if rec = env.do(t, http.MethodGet, projectPath, guest, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("guest get status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/v1/projects/join", guest, map[string]string{"inviteCode": strings.ToLower(created.Project.InviteCode)})
	if rec.Code != http.StatusOK {
		t.Fatalf("join status = %d body=%s", rec.Code, rec.Body.String())
	}
	if rec = env.do(t, http.MethodGet, projectPath, guest, nil); rec.Code != http.StatusOK {
		t.Fatalf("guest get after join status = %d", rec.Code)
	}

	threadID := created.Project.ActiveThreadID
	answer := "ANSWER:\n{\"type\":\"file_operations\",\"operations\":[{\"action\":\"create\",\"itemType\":\"script\",\"name\":\"Spawner\",\"location\":\"game.ServerScriptService\"}],\"explanation\":\"adds a spawner\"}"
	rec = env.do(t, http.MethodPost, projectPath+"/threads/"+threadID+"/messages", owner, map[string]string{"role": "assistant", "content": answer})
	if rec.Code != http.StatusCreated {
		t.Fatalf("append status = %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "game.ServerScriptService.Spawner") {
		t.Fatalf("expected created script in response: %s", rec.Body.String())
	}

	if rec = env.do(t, http.MethodDelete, projectPath, guest, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("guest delete status = %d", rec.Code)
	}
	if rec = env.do(t, http.MethodDelete, projectPath, owner, nil); rec.Code != http.StatusOK {
		t.Fatalf("owner delete status = %d", rec.Code)
	}
	if rec = env.do(t, http.MethodGet, projectPath, owner, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted status = %d", rec.Code)
	}
}

func TestChatRelayStreamsFragments(t *testing.T) {
	env := newTestEnv(t, streamOK)
	token, userID := env.signup(t, "dev@example.com")

	rec := env.do(t, http.MethodPost, "/v1/chat", token, map[string]any{"message": "make a leaderboard"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}
	want := "data: {\"content\":\"Hello\"}\n\ndata: {\"content\":\" world\"}\n\n"
	if rec.Body.String() != want {
		t.Fatalf("body = %q, want %q", rec.Body.String(), want)
	}
	if env.limiter.InFlight() != 0 {
		t.Fatalf("in flight = %d, want 0", env.limiter.InFlight())
	}
	if status := env.limiter.Status(userID); status.Used != 1 {
		t.Fatalf("used = %d, want 1", status.Used)
	}

	var rows []models.ChatUsage
	if errFind := env.conn.Find(&rows).Error; errFind != nil {
		t.Fatalf("find usage: %v", errFind)
	}
	if len(rows) != 1 || rows[0].Fragments != 2 || rows[0].Failed {
		t.Fatalf("usage rows = %+v", rows)
	}
}

func TestChatRelayRejectsFlaggedMessage(t *testing.T) {
	env := newTestEnv(t, streamOK)
	token, userID := env.signup(t, "kid@example.com")

	rec := env.do(t, http.MethodPost, "/v1/chat", token, map[string]any{"message": "how do I hack other players"})
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), contentfilter.ReplacementMessage) {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var count int64
	if errCount := env.conn.Model(&models.FlaggedMessage{}).Where("user_id = ?", userID).Count(&count).Error; errCount != nil {
		t.Fatalf("count flags: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("flags = %d, want 1", count)
	}
	if status := env.limiter.Status(userID); status.Used != 0 {
		t.Fatalf("rejected message consumed quota: %+v", status)
	}
}

func TestChatRelayRateLimited(t *testing.T) {
	env := newTestEnv(t, streamOK)
	token, _ := env.signup(t, "busy@example.com")

	for i := 0; i < 2; i++ {
		if rec := env.do(t, http.MethodPost, "/v1/chat", token, map[string]any{"message": "hi"}); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := env.do(t, http.MethodPost, "/v1/chat", token, map[string]any{"message": "hi"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		RateLimit ratelimit.Status `json:"rateLimit"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if !resp.RateLimit.InQueue || resp.RateLimit.QueuePosition != 1 || resp.RateLimit.Used != 2 {
		t.Fatalf("rate limit = %+v", resp.RateLimit)
	}

	rec = env.do(t, http.MethodGet, "/v1/rate-limit", token, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"queue_position":1`) {
		t.Fatalf("status endpoint = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestChatRelayUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusInternalServerError)
	})
	token, _ := env.signup(t, "fail@example.com")

	rec := env.do(t, http.MethodPost, "/v1/chat", token, map[string]any{"message": "hi"})
	if rec.Code != http.StatusBadGateway || !strings.Contains(rec.Body.String(), "Failed to get AI response") {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if env.limiter.InFlight() != 0 {
		t.Fatalf("in flight = %d, want 0", env.limiter.InFlight())
	}
}

func TestChatRelayNotConfigured(t *testing.T) {
	env := newTestEnv(t, nil)
	token, _ := env.signup(t, "nokey@example.com")
	if rec := env.do(t, http.MethodPost, "/v1/chat", token, map[string]any{"message": "hi"}); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAnnouncementsPublic(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/v1/global-messages/latest", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"message":null`) {
		t.Fatalf("empty latest = %d body=%s", rec.Code, rec.Body.String())
	}
	msg := models.GlobalMessage{Message: "Maintenance tonight", Type: models.GlobalMessageWarning, CreatedBy: 1}
	if errCreate := env.conn.Create(&msg).Error; errCreate != nil {
		t.Fatalf("create message: %v", errCreate)
	}
	rec = env.do(t, http.MethodGet, "/v1/global-messages/latest", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Maintenance tonight") {
		t.Fatalf("latest = %d body=%s", rec.Code, rec.Body.String())
	}
	if rec = env.do(t, http.MethodGet, "/v1/changelogs?limit=0", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid limit status = %d", rec.Code)
	}
}
