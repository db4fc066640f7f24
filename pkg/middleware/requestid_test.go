package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TestRequestID はRequestIDミドルウェアを検証する。
func TestRequestID(t *testing.T) {
	t.Parallel()

	newRouter := func(seen *string) *gin.Engine {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/loans", func(c *gin.Context) {
			*seen = GetRequestID(c)
			c.Status(http.StatusOK)
		})
		return router
	}

	t.Run("ヘッダーが無い場合はUUIDを生成すること", func(t *testing.T) {
		t.Parallel()

		var seen string
		w := httptest.NewRecorder()
		newRouter(&seen).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/loans", nil))

		if _, err := uuid.Parse(seen); err != nil {
			t.Errorf("リクエストIDがUUIDではない: %q", seen)
		}
		if got := w.Header().Get(HeaderRequestID); got != seen {
			t.Errorf("%s = %q, want %q", HeaderRequestID, got, seen)
		}
	})

	t.Run("クライアントが送った値を引き継ぐこと", func(t *testing.T) {
		t.Parallel()

		var seen string
		req := httptest.NewRequest(http.MethodGet, "/loans", nil)
		req.Header.Set(HeaderRequestID, "client-req-42")
		w := httptest.NewRecorder()
		newRouter(&seen).ServeHTTP(w, req)

		if seen != "client-req-42" {
			t.Errorf("リクエストID = %q, want %q", seen, "client-req-42")
		}
	})

	t.Run("長すぎる値は置き換えられること", func(t *testing.T) {
		t.Parallel()

		var seen string
		req := httptest.NewRequest(http.MethodGet, "/loans", nil)
		req.Header.Set(HeaderRequestID, strings.Repeat("x", maxRequestIDLength+1))
		w := httptest.NewRecorder()
		newRouter(&seen).ServeHTTP(w, req)

		if _, err := uuid.Parse(seen); err != nil {
			t.Errorf("リクエストIDがUUIDではない: %q", seen)
		}
	})

	t.Run("ミドルウェア未適用の場合は空文字列を返すこと", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		if got := GetRequestID(c); got != "" {
			t.Errorf("GetRequestID() = %q, want empty", got)
		}
	})
}
