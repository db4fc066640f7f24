package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AnyOrigin は全オリジンを許可する指定。
const AnyOrigin = "*"

const (
	corsAllowMethods  = "GET, POST, PUT, DELETE, HEAD, OPTIONS"
	corsAllowHeaders  = "Content-Type, " + HeaderRequestID
	corsExposeHeaders = HeaderRequestID
)

// CORS は指定されたオリジンからのクロスオリジンリクエストを許可するGinミドルウェアを返す。
// allowedOrigins に "*" を含めると全オリジンを許可する。
// OPTIONSリクエストはプリフライトとして204で応答し、ハンドラには渡さない。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	anyOrigin := false
	originsSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == AnyOrigin {
			anyOrigin = true
			continue
		}
		originsSet[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			allowed := anyOrigin
			if _, ok := originsSet[origin]; ok {
				allowed = true
			}
			if allowed {
				if anyOrigin {
					c.Header("Access-Control-Allow-Origin", AnyOrigin)
				} else {
					c.Header("Access-Control-Allow-Origin", origin)
					c.Header("Vary", "Origin")
				}
				c.Header("Access-Control-Allow-Methods", corsAllowMethods)
				headers := c.GetHeader("Access-Control-Request-Headers")
				if headers == "" {
					headers = corsAllowHeaders
				}
				c.Header("Access-Control-Allow-Headers", headers)
				c.Header("Access-Control-Expose-Headers", corsExposeHeaders)
				c.Header("Access-Control-Max-Age", "1800")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
