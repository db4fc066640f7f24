package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// tracerName はクライアントが生成するスパンの計装名。
const tracerName = "github.com/nao1215/lmsgateway/pkg/httpclient"

// DefaultTimeout は下流サービス呼び出しの既定タイムアウト。
const DefaultTimeout = 30 * time.Second

// Client は下流サービスへの中継用HTTPクライアント。
// 複数のゴルーチンから同時に使用できる。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// policy はレスポンスをエラーとみなす条件。
	policy ErrorPolicy
	// tracer は呼び出しごとのスパンを生成する。
	tracer trace.Tracer
}

// Option はClientの設定を変更する。
type Option func(*Client)

// WithTimeout は1回の呼び出しのタイムアウトを設定する。0はタイムアウトなし。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithErrorPolicy はレスポンスのエラー判定ポリシーを設定する。
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithTransport は下位のRoundTripperを差し替える。
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = rt }
}

// WithTracerProvider はスパンの生成に使うTracerProviderを設定する。
// 指定しない場合はグローバルのTracerProviderを使う。
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// New は新しい中継用HTTPクライアントを生成する。
// 既定ではタイムアウト30秒、PassThroughポリシー。
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			// リダイレクトは呼び出し元にそのまま返す
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		policy: PassThrough{},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request は下流サービスに送るリクエスト。
type Request struct {
	// Service は呼び出し先のサービス名。スパン属性とエラーに使う。
	Service string
	// Method はHTTPメソッド。
	Method string
	// URL は呼び出し先の完全なURL。
	URL string
	// Header は送信するヘッダー。
	Header http.Header
	// Body はリクエストボディ。nilの場合はボディなし。
	Body io.Reader
	// ContentLength はボディの長さ。不明な場合は-1。
	ContentLength int64
}

// Response は下流サービスから受け取ったレスポンス。
type Response struct {
	// StatusCode はステータスコード。
	StatusCode int
	// Header はレスポンスヘッダー。
	Header http.Header
	// Body はレスポンスボディ。
	Body []byte
}

// Exchange はリクエストを1回だけ送信し、レスポンスを読み切って返す。
// 通信に失敗した場合はエラーを返す。ErrorPolicyがエラーと判定した場合は
// レスポンスと共に *StatusError を返す。
func (c *Client) Exchange(ctx context.Context, r Request) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("%s %s", r.Method, r.Service),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.full", r.URL),
			attribute.String("peer.service", r.Service),
		),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, r.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "リクエスト作成失敗")
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	if r.Body != nil && r.ContentLength >= 0 {
		req.ContentLength = r.ContentLength
	}
	for k, vv := range r.Header {
		req.Header[k] = append([]string(nil), vv...)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "送信失敗")
		return nil, fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "レスポンス読み取り失敗")
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}
	if c.policy.HasError(out) {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return out, &StatusError{Service: r.Service, StatusCode: resp.StatusCode, Body: body}
	}
	return out, nil
}
