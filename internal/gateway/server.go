package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/lmsgateway/pkg/discovery"
	"github.com/nao1215/lmsgateway/pkg/httpclient"
	"github.com/nao1215/lmsgateway/pkg/middleware"
)

// shutdownTimeout は停止時に処理中のリクエストを待つ最大時間。
const shutdownTimeout = 10 * time.Second

// Server はAPI GatewayのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// routes は登録済みのルーティング表。起動後は変更しない。
	routes []Route
	// forwarder は全ルートで共有する中継処理。
	forwarder *forwarder
}

// NewServer は設定からGatewayサーバーを生成する。
func NewServer(cfg Config) (*Server, error) {
	registry, err := discovery.NewRegistry(cfg.Services)
	if err != nil {
		return nil, fmt.Errorf("サービスレジストリの初期化に失敗: %w", err)
	}

	policy, err := httpclient.ParseErrorPolicy(cfg.ErrorPolicy)
	if err != nil {
		return nil, err
	}
	client := httpclient.New(
		httpclient.WithTimeout(cfg.UpstreamTimeout),
		httpclient.WithErrorPolicy(policy),
	)

	return newServer(cfg, registry, client)
}

// newServer はレジストリとクライアントを受け取ってサーバーを組み立てる。
func newServer(cfg Config, registry *discovery.Registry, client *httpclient.Client) (*Server, error) {
	routes := Routes()
	if err := validateRoutes(routes); err != nil {
		return nil, err
	}
	for _, r := range routes {
		if !registry.Has(r.Service) {
			return nil, fmt.Errorf("ルート %s のサービス %q が登録されていません", r.Name, r.Service)
		}
	}

	router := gin.New()
	// "/authors" と "/authors/" は両方とも明示的に登録する
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	// %2F を含むパスパラメータを1セグメントとして扱う。デコードは中継処理で行う
	router.UseRawPath = true
	router.UnescapePathValues = false

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	s := &Server{
		router: router,
		port:   cfg.Port,
		routes: routes,
		forwarder: &forwarder{
			registry: registry,
			client:   client,
			validate: cfg.ValidateResponses,
		},
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるまで待つ。
// キャンセル後は処理中のリクエストの完了を待ってから戻る。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("サーバーの停止に失敗: %w", err)
		}
		return nil
	}
}

// setupRoutes はルーティング表をGinに登録する。
func (s *Server) setupRoutes() {
	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})

	for _, r := range s.routes {
		s.register(r.Method, r, r.Method)
		// GETのルートはHEADでも受け付ける
		if r.Method == http.MethodGet {
			s.register(http.MethodHead, r, http.MethodHead)
		}
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "ルートが見つかりません"})
	})

	log.Printf("[Gateway] %d件のルートを登録しました", len(s.routes))
}

// register はパターンとその末尾スラッシュ付きの両方にハンドラを登録する。
func (s *Server) register(method string, r Route, downstreamMethod string) {
	handler := s.forwarder.handle(r, downstreamMethod)
	s.router.Handle(method, r.Pattern, handler)
	s.router.Handle(method, r.Pattern+"/", handler)
}
