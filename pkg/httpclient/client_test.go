package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testRequest はテストサーバーが受け取ったリクエスト情報を保持する構造体。
type testRequest struct {
	// Method はHTTPメソッド。
	Method string
	// Path はリクエストパス。
	Path string
	// Body はリクエストボディ。
	Body []byte
	// Headers はリクエストヘッダー。
	Headers http.Header
}

// TestNew はNew関数でクライアントが正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("既定値で生成されること", func(t *testing.T) {
		t.Parallel()

		client := New()
		if client.httpClient == nil {
			t.Fatal("httpClientがnil")
		}
		if client.httpClient.Timeout != DefaultTimeout {
			t.Errorf("Timeout = %v, want %v", client.httpClient.Timeout, DefaultTimeout)
		}
		if _, ok := client.policy.(PassThrough); !ok {
			t.Errorf("policy = %T, want PassThrough", client.policy)
		}
	})

	t.Run("オプションが反映されること", func(t *testing.T) {
		t.Parallel()

		client := New(WithTimeout(0), WithErrorPolicy(ServerErrors{}))
		if client.httpClient.Timeout != 0 {
			t.Errorf("Timeout = %v, want 0", client.httpClient.Timeout)
		}
		if _, ok := client.policy.(ServerErrors); !ok {
			t.Errorf("policy = %T, want ServerErrors", client.policy)
		}
	})
}

// TestExchange はExchangeを検証する。
func TestExchange(t *testing.T) {
	t.Parallel()

	t.Run("メソッド・ボディ・ヘッダーがそのまま送信されること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received.Method = r.Method
			received.Path = r.URL.Path
			received.Body, _ = io.ReadAll(r.Body)
			received.Headers = r.Header
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": 1}`))
		}))
		defer ts.Close()

		body := `{"name":"Main Branch"}`
		header := http.Header{}
		header.Set("Content-Type", "application/json")
		header.Set("X-Request-ID", "req-1")

		resp, err := New().Exchange(context.Background(), Request{
			Service:       "admin",
			Method:        http.MethodPost,
			URL:           ts.URL + "/branch",
			Header:        header,
			Body:          strings.NewReader(body),
			ContentLength: int64(len(body)),
		})
		if err != nil {
			t.Fatalf("Exchange()でエラーが発生: %v", err)
		}

		if received.Method != http.MethodPost {
			t.Errorf("Method = %q, want %q", received.Method, http.MethodPost)
		}
		if received.Path != "/branch" {
			t.Errorf("Path = %q, want %q", received.Path, "/branch")
		}
		if string(received.Body) != body {
			t.Errorf("Body = %q, want %q", received.Body, body)
		}
		if got := received.Headers.Get("X-Request-ID"); got != "req-1" {
			t.Errorf("X-Request-ID = %q, want %q", got, "req-1")
		}
		if resp.StatusCode != http.StatusCreated {
			t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusCreated)
		}
		if string(resp.Body) != `{"id": 1}` {
			t.Errorf("Body = %q", resp.Body)
		}
	})

	t.Run("PassThroughでは500もエラーにならないこと", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"rollback failed"}`))
		}))
		defer ts.Close()

		resp, err := New().Exchange(context.Background(), Request{Service: "borrower-service", Method: http.MethodGet, URL: ts.URL})
		if err != nil {
			t.Fatalf("Exchange()でエラーが発生: %v", err)
		}
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
		}
	})

	t.Run("ServerErrorsでは500がStatusErrorになること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		resp, err := New(WithErrorPolicy(ServerErrors{})).Exchange(context.Background(), Request{Service: "admin", Method: http.MethodGet, URL: ts.URL})
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("error = %v, want *StatusError", err)
		}
		if statusErr.StatusCode != http.StatusServiceUnavailable || statusErr.Service != "admin" {
			t.Errorf("StatusError = %+v", statusErr)
		}
		if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("リダイレクトを追跡せずそのまま返すこと", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/elsewhere", http.StatusFound)
		}))
		defer ts.Close()

		resp, err := New().Exchange(context.Background(), Request{Service: "admin", Method: http.MethodGet, URL: ts.URL + "/authors"})
		if err != nil {
			t.Fatalf("Exchange()でエラーが発生: %v", err)
		}
		if resp.StatusCode != http.StatusFound {
			t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusFound)
		}
		if got := resp.Header.Get("Location"); got != "/elsewhere" {
			t.Errorf("Location = %q", got)
		}
	})

	t.Run("接続できない場合はエラーが返ること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		url := ts.URL
		ts.Close()

		if _, err := New().Exchange(context.Background(), Request{Service: "admin", Method: http.MethodGet, URL: url}); err == nil {
			t.Fatal("Exchange()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("タイムアウトでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			<-release
		}))
		defer ts.Close()
		defer close(release)

		_, err := New(WithTimeout(50*time.Millisecond)).Exchange(context.Background(), Request{Service: "admin", Method: http.MethodGet, URL: ts.URL})
		if err == nil {
			t.Fatal("Exchange()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("キャンセルされたコンテキストでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := New().Exchange(ctx, Request{Service: "admin", Method: http.MethodGet, URL: ts.URL}); err == nil {
			t.Fatal("Exchange()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("クライアントスパンが記録されること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer ts.Close()

		sr := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

		if _, err := New(WithTracerProvider(tp)).Exchange(context.Background(), Request{Service: "librarian-service", Method: http.MethodGet, URL: ts.URL}); err != nil {
			t.Fatalf("Exchange()でエラーが発生: %v", err)
		}

		spans := sr.Ended()
		if len(spans) != 1 {
			t.Fatalf("スパン数 = %d, want 1", len(spans))
		}
		if got := spans[0].Name(); got != "GET librarian-service" {
			t.Errorf("span name = %q", got)
		}
		var status int64
		for _, kv := range spans[0].Attributes() {
			if kv.Key == attribute.Key("http.response.status_code") {
				status = kv.Value.AsInt64()
			}
		}
		if status != http.StatusNotFound {
			t.Errorf("http.response.status_code = %d, want %d", status, http.StatusNotFound)
		}
	})
}

// TestParseErrorPolicy は設定値からのポリシー生成を検証する。
func TestParseErrorPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    ErrorPolicy
		wantErr bool
	}{
		{in: "", want: PassThrough{}},
		{in: "passthrough", want: PassThrough{}},
		{in: " Server-Errors ", want: ServerErrors{}},
		{in: "strict", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseErrorPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseErrorPolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseErrorPolicy(%q) = %T, want %T", tt.in, got, tt.want)
		}
	}
}

// TestCopyEndToEndHeaders はhop-by-hopヘッダーの除外を検証する。
func TestCopyEndToEndHeaders(t *testing.T) {
	t.Parallel()

	src := http.Header{}
	src.Set("Content-Type", "application/json")
	src.Set("Connection", "keep-alive, X-Internal")
	src.Set("X-Internal", "secret")
	src.Set("Transfer-Encoding", "chunked")
	src.Add("Set-Cookie", "a=1")
	src.Add("Set-Cookie", "b=2")

	dst := http.Header{}
	CopyEndToEndHeaders(dst, src)

	if got := dst.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	for _, h := range []string{"Connection", "X-Internal", "Transfer-Encoding"} {
		if dst.Get(h) != "" {
			t.Errorf("%s が転送された", h)
		}
	}
	if got := dst.Values("Set-Cookie"); len(got) != 2 {
		t.Errorf("Set-Cookie = %v, want 2 values", got)
	}
}
