package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/lmsgateway/pkg/discovery"
	"github.com/nao1215/lmsgateway/pkg/httpclient"
	"github.com/nao1215/lmsgateway/pkg/middleware"
)

// forwarder はルート定義に従ってリクエストを下流サービスに中継する。
// 状態を持たないため、全リクエストで共有できる。
type forwarder struct {
	// registry はサービス名からインスタンスURLを解決する。
	registry *discovery.Registry
	// client は全リクエストで共有する下流呼び出し用クライアント。
	client *httpclient.Client
	// validate がtrueの場合、2xxレスポンスを宣言した型と照合する。
	validate bool
}

// handle はルートを中継するハンドラを返す。
// method は下流に送るHTTPメソッドで、HEADの登録ではroute.Methodと異なる。
func (f *forwarder) handle(route Route, method string) gin.HandlerFunc {
	return func(c *gin.Context) {
		params, err := pathParams(c.FullPath(), c.Request.URL.EscapedPath())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		target, err := expandTarget(route.Target, params)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ルート定義が不正です"})
			log.Printf("[Gateway] ルート展開エラー: route=%s, error=%v", route.Name, err)
			return
		}

		rawQuery := c.Request.URL.RawQuery
		var body io.Reader = c.Request.Body
		contentLength := c.Request.ContentLength
		header := http.Header{}
		httpclient.CopyEndToEndHeaders(header, c.Request.Header)
		header.Del("Content-Length")

		if route.Query != nil {
			bound, err := bindQuery(c.Request.URL.Query(), route.Query)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			rawQuery = bound.Encode()
			if route.BodyFrom != nil {
				payload, err := route.BodyFrom(bound)
				if err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
				rawQuery = ""
				body = bytes.NewReader(payload)
				contentLength = int64(len(payload))
				header.Set("Content-Type", "application/json")
			}
		}

		base, err := f.registry.Resolve(route.Service)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "下流サービスを解決できません"})
			log.Printf("[Gateway] サービス解決エラー: route=%s, error=%v", route.Name, err)
			return
		}
		targetURL := base + target
		if rawQuery != "" {
			targetURL += "?" + rawQuery
		}
		if requestID := middleware.GetRequestID(c); requestID != "" {
			header.Set(middleware.HeaderRequestID, requestID)
		}
		if contentLength == 0 {
			body = nil
		}

		resp, err := f.client.Exchange(c.Request.Context(), httpclient.Request{
			Service:       route.Service,
			Method:        method,
			URL:           targetURL,
			Header:        header,
			Body:          body,
			ContentLength: contentLength,
		})
		if err != nil {
			var statusErr *httpclient.StatusError
			if errors.As(err, &statusErr) {
				c.JSON(http.StatusBadGateway, gin.H{
					"error":   "下流サービスがエラーを返しました",
					"service": statusErr.Service,
					"status":  statusErr.StatusCode,
				})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": "内部サービスとの通信に失敗しました"})
			log.Printf("[Gateway] プロキシエラー: route=%s, url=%s, error=%v", route.Name, targetURL, err)
			return
		}

		if f.validate {
			checkSchema(route, resp)
		}
		relay(c, resp)
	}
}

// relay は下流のレスポンスをそのまま呼び出し元に書き出す。
// ゲートウェイ自身が設定済みのヘッダー（CORS、リクエストID）は上書きしない。
func relay(c *gin.Context, resp *httpclient.Response) {
	upstream := http.Header{}
	httpclient.CopyEndToEndHeaders(upstream, resp.Header)

	h := c.Writer.Header()
	for k, vv := range upstream {
		if _, exists := h[k]; exists {
			continue
		}
		h[k] = vv
	}
	if upstream.Get("Content-Type") == "" {
		// 下流が付けていないContent-Typeを推測で付与しない
		h["Content-Type"] = nil
	}
	c.Status(resp.StatusCode)
	c.Writer.WriteHeaderNow()
	if _, err := c.Writer.Write(resp.Body); err != nil {
		log.Printf("[Gateway] レスポンスの書き込みに失敗: path=%s, error=%v", c.Request.URL.Path, err)
	}
}

// checkSchema は2xxのJSONレスポンスがルートの宣言した型に一致するかを確認する。
// 一致しない場合はログに残すだけで、レスポンスは変更しない。
func checkSchema(route Route, resp *httpclient.Response) {
	if route.Schema == nil || resp.StatusCode < 200 || resp.StatusCode >= 300 || len(resp.Body) == 0 {
		return
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || (mediaType != "application/json" && mediaType != "application/problem+json") {
		return
	}

	dec := json.NewDecoder(bytes.NewReader(resp.Body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(route.Schema()); err != nil {
		log.Printf("[Gateway] レスポンスが宣言した型に一致しません: route=%s, service=%s, error=%v", route.Name, route.Service, err)
	}
}
