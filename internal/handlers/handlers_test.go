package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hzblue/lottery-backend/internal/config"
	"github.com/hzblue/lottery-backend/internal/handlers"
	"github.com/hzblue/lottery-backend/internal/ledger"
	"github.com/hzblue/lottery-backend/internal/lottery"
	"github.com/hzblue/lottery-backend/internal/store"
)

type testServer struct {
	router *gin.Engine
	store  *store.Store
	ledger *ledger.MemoryLedger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	st := store.New(db)
	require.NoError(t, st.AutoMigrate())

	cfg := config.Config{
		JWTSecret:     "test-secret",
		AdminUsername: "admin",
		AdminPassword: "admin-pw",
		DrawCooldown:  time.Minute,
	}

	led := ledger.NewMemoryLedger()
	cache := lottery.NewPrizeCache(st)
	svc := lottery.NewService(st, led, cache, lottery.NewSelector(rand.NewSource(1)), cfg.DrawCooldown)
	rec := lottery.NewReconciler(st, led)

	r := gin.New()
	handlers.New(st, svc, rec, cfg).RegisterRoutes(r)
	return &testServer{router: r, store: st, ledger: led}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (ts *testServer) registerUser(t *testing.T, username string) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": username,
		"password": "password1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	return decode(t, w)["token"].(string)
}

func (ts *testServer) adminToken(t *testing.T) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/admin/api/login", "", gin.H{
		"username": "admin",
		"password": "admin-pw",
	})
	require.Equal(t, http.StatusOK, w.Code)
	return decode(t, w)["token"].(string)
}

func (ts *testServer) createPrize(t *testing.T, admin string, weight int, total int64) uuid.UUID {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/admin/api/activities", admin, gin.H{
		"name":      "launch",
		"startTime": time.Now().Format(time.RFC3339),
		"endTime":   time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, w.Code)
	activityID := decode(t, w)["id"].(string)

	w = ts.do(t, http.MethodPost, "/admin/api/prizes", admin, gin.H{
		"activityId": activityID,
		"name":       "plush toy",
		"totalCount": total,
		"weight":     weight,
		"enabled":    true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	id, err := uuid.Parse(decode(t, w)["id"].(string))
	require.NoError(t, err)
	return id
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	t.Run("short password", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
			"username": "eve", "password": "short",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("duplicate username", func(t *testing.T) {
		ts.registerUser(t, "frank")
		w := ts.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
			"username": "frank", "password": "password1",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.registerUser(t, "grace")

	w := ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "grace", "password": "password1",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["token"])

	w = ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "grace", "password": "wrong-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "nobody", "password": "password1",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDrawRequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/lottery/draw", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/api/lottery/draw", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminGuard(t *testing.T) {
	ts := newTestServer(t)
	user := ts.registerUser(t, "mallory")

	w := ts.do(t, http.MethodGet, "/admin/api/prizes", user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPost, "/admin/api/login", "", gin.H{
		"username": "admin", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDrawFlow(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.adminToken(t)
	prizeID := ts.createPrize(t, admin, 100, 3)

	// prize creation must seed the fast-path stock counter
	stock, err := ts.ledger.Stock(context.Background(), prizeID)
	require.NoError(t, err)
	require.Equal(t, int64(3), stock)

	token := ts.registerUser(t, "henry")
	w := ts.do(t, http.MethodPost, "/api/lottery/draw", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["won"])
	assert.Equal(t, "plush toy", body["prize_name"])

	// immediate retry is throttled
	w = ts.do(t, http.MethodPost, "/api/lottery/draw", token, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// record becomes visible off the critical path
	require.Eventually(t, func() bool {
		w := ts.do(t, http.MethodGet, "/api/user/lottery-history", token, nil)
		if w.Code != http.StatusOK {
			return false
		}
		records, ok := decode(t, w)["records"].([]any)
		return ok && len(records) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPrizeListingAndToggle(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.adminToken(t)
	prizeID := ts.createPrize(t, admin, 50, 5)

	w := ts.do(t, http.MethodGet, "/api/lottery/prizes", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	prizes := decode(t, w)["prizes"].([]any)
	require.Len(t, prizes, 1)

	path := fmt.Sprintf("/admin/api/prizes/%s/enabled", prizeID)
	w = ts.do(t, http.MethodPatch, path, admin, gin.H{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/lottery/prizes", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["prizes"])
}

func TestGlobalHistoryPublic(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/lottery/global-history", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProfile(t *testing.T) {
	ts := newTestServer(t)
	token := ts.registerUser(t, "ivy")

	w := ts.do(t, http.MethodGet, "/api/user/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ivy", body["username"])
	assert.Nil(t, body["lastDrawAt"])
}
