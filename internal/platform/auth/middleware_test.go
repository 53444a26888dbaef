package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("unit-test-secret")

func mintToken(t *testing.T, secret []byte, sub, role string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  exp.Unix(),
	})
	s, err := token.SignedString(secret)
	require.NoError(t, err)
	return s
}

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	authed := r.Group("", RequireAuth(testSecret))
	authed.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString(CtxUserIDKey),
			"role":    c.GetString(CtxRoleKey),
		})
	})
	admin := authed.Group("", RequireRole(RoleAdmin))
	admin.GET("/admin-only", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doGet(r *gin.Engine, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	r := testRouter()

	t.Run("valid token passes and populates context", func(t *testing.T) {
		tok := mintToken(t, testSecret, "siswa-01", RoleStudent, time.Now().Add(time.Hour))
		w := doGet(r, "/whoami", "Bearer "+tok)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"user_id":"siswa-01"`)
		assert.Contains(t, w.Body.String(), `"role":"student"`)
	})

	t.Run("missing header", func(t *testing.T) {
		w := doGet(r, "/whoami", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		w := doGet(r, "/whoami", "Token abc")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		tok := mintToken(t, testSecret, "siswa-01", RoleStudent, time.Now().Add(-time.Hour))
		w := doGet(r, "/whoami", "Bearer "+tok)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		tok := mintToken(t, []byte("other-secret"), "siswa-01", RoleStudent, time.Now().Add(time.Hour))
		w := doGet(r, "/whoami", "Bearer "+tok)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	r := testRouter()

	t.Run("admin passes", func(t *testing.T) {
		tok := mintToken(t, testSecret, "admin-01", RoleAdmin, time.Now().Add(time.Hour))
		w := doGet(r, "/admin-only", "Bearer "+tok)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("student is forbidden", func(t *testing.T) {
		tok := mintToken(t, testSecret, "siswa-01", RoleStudent, time.Now().Add(time.Hour))
		w := doGet(r, "/admin-only", "Bearer "+tok)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
