package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(reg *Registry) *gin.Engine {
	router := gin.New()
	RegisterRoutes(router, reg)
	return router
}

func get(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleReady_OKWhenAllCheckersPass(t *testing.T) {
	reg := NewRegistry(time.Second, CheckerFunc{CheckerName: "db", Fn: func(ctx context.Context) error { return nil }})
	rec := get(t, newRouter(reg), "/healthz/ready")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReady_FailsWhenACheckerFails(t *testing.T) {
	reg := NewRegistry(time.Second,
		CheckerFunc{CheckerName: "db", Fn: func(ctx context.Context) error { return nil }},
		CheckerFunc{CheckerName: "bus", Fn: func(ctx context.Context) error { return errors.New("unreachable") }},
	)
	rec := get(t, newRouter(reg), "/healthz/ready")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleStartup_StaysHealthyAfterFirstSuccessEvenIfDepsLaterFail(t *testing.T) {
	healthy := true
	reg := NewRegistry(time.Second, CheckerFunc{CheckerName: "db", Fn: func(ctx context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	}})
	router := newRouter(reg)

	require.Equal(t, http.StatusOK, get(t, router, "/healthz/startup").Code)

	healthy = false
	require.Equal(t, http.StatusOK, get(t, router, "/healthz/startup").Code, "startup probe doesn't flap once it has succeeded")
}

func TestHandleStartup_FailsUntilFirstSuccess(t *testing.T) {
	reg := NewRegistry(time.Second, CheckerFunc{CheckerName: "db", Fn: func(ctx context.Context) error { return errors.New("down") }})
	rec := get(t, newRouter(reg), "/healthz/startup")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleLive_ReflectsSetLive(t *testing.T) {
	reg := NewRegistry(time.Second)
	router := newRouter(reg)

	require.Equal(t, http.StatusOK, get(t, router, "/healthz/live").Code)

	reg.SetLive(false)
	require.Equal(t, http.StatusServiceUnavailable, get(t, router, "/healthz/live").Code)
}
