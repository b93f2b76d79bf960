package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/buoy-console/internal/gateway"
)

func loginURL(next string) string { return "/backend/login/?next=" + url.QueryEscape(next) }

func newUnauthorizedRouter(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/manage", HandleUnauthorized(loginURL, "/manage/api"))
	g.GET("/dataset/:slug/", handler)
	g.GET("/api/datasets", handler)
	return r
}

func TestHandleUnauthorizedRedirectsPages(t *testing.T) {
	r := newUnauthorizedRouter(func(c *gin.Context) {
		_ = c.Error(&gateway.UnauthorizedError{})
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/manage/dataset/buoy_a/", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status got=%d want=%d", rec.Code, http.StatusFound)
	}
	if got, want := rec.Header().Get("Location"), "/backend/login/?next=%2Fmanage%2Fdataset%2Fbuoy_a%2F"; got != want {
		t.Fatalf("location got=%q want=%q", got, want)
	}
}

func TestHandleUnauthorizedAnswersAPIWith401(t *testing.T) {
	r := newUnauthorizedRouter(func(c *gin.Context) {
		_ = c.Error(errors.Join(errors.New("load datasets"), &gateway.UnauthorizedError{}))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/manage/api/datasets", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status got=%d want=%d", rec.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(rec.Body.String(), `"login_url":"/backend/login/?next=%2Fmanage%2Fapi%2Fdatasets"`) {
		t.Fatalf("login_url missing: %s", rec.Body.String())
	}
}

func TestHandleUnauthorizedLeavesWrittenResponses(t *testing.T) {
	r := newUnauthorizedRouter(func(c *gin.Context) {
		_ = c.Error(errors.New("backend down"))
		c.String(http.StatusBadGateway, "down")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/manage/dataset/buoy_a/", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status got=%d want=%d", rec.Code, http.StatusBadGateway)
	}
	if got := rec.Header().Get("Location"); got != "" {
		t.Fatalf("unexpected redirect to %q", got)
	}
}
