package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/auth"
	"github.com/soundbay/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

type stubValidator map[string]*models.User

func (s stubValidator) ValidateToken(_ context.Context, token string) (*models.User, error) {
	if token == "banned" {
		return nil, auth.ErrUserBanned
	}
	if u, ok := s[token]; ok {
		return u, nil
	}
	return nil, auth.ErrInvalidToken
}

func authRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	v := stubValidator{
		"user":  {ID: "u1", Username: "listener"},
		"admin": {ID: "a1", Username: "mod", IsAdmin: true},
	}
	router := gin.New()
	whoami := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id")})
	}
	router.GET("/private", RequireAuth(v), whoami)
	router.GET("/public", OptionalAuth(v), whoami)
	router.GET("/admin", RequireAuth(v), RequireAdmin(), whoami)
	return router
}

func request(router http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	router := authRouter()

	assert.Equal(t, http.StatusUnauthorized, request(router, "/private", "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(router, "/private", "bogus").Code)
	assert.Equal(t, http.StatusForbidden, request(router, "/private", "banned").Code)

	w := request(router, "/private", "user")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"u1"}`, w.Body.String())
}

func TestOptionalAuth(t *testing.T) {
	router := authRouter()

	assert.JSONEq(t, `{"user_id":""}`, request(router, "/public", "").Body.String())
	assert.JSONEq(t, `{"user_id":""}`, request(router, "/public", "bogus").Body.String())
	assert.JSONEq(t, `{"user_id":"u1"}`, request(router, "/public", "user").Body.String())
}

func TestRequireAdmin(t *testing.T) {
	router := authRouter()

	assert.Equal(t, http.StatusUnauthorized, request(router, "/admin", "").Code)
	assert.Equal(t, http.StatusForbidden, request(router, "/admin", "user").Code)
	assert.Equal(t, http.StatusOK, request(router, "/admin", "admin").Code)
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := get(router, "/", "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Body.String())
}
