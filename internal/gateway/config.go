package gateway

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/lmsgateway/pkg/discovery"
	"github.com/nao1215/lmsgateway/pkg/httpclient"
	"github.com/nao1215/lmsgateway/pkg/middleware"
)

// serviceEnvKeys はサービスごとのインスタンスURLを指定する環境変数。
// 値はカンマ区切りで複数指定できる。
var serviceEnvKeys = map[string]string{
	ServiceAdmin:     "ADMIN_URL",
	ServiceBorrower:  "BORROWER_SERVICE_URL",
	ServiceLibrarian: "LIBRARIAN_SERVICE_URL",
}

// Config はゲートウェイの設定。
type Config struct {
	// Port はサーバーのリッスンポート。
	Port string
	// AllowedOrigins はCORSで許可するオリジン。"*" で全オリジン。
	AllowedOrigins []string
	// Services はサービス名ごとのインスタンスURL。
	Services map[string][]string
	// UpstreamTimeout は下流サービス呼び出しのタイムアウト。0はタイムアウトなし。
	UpstreamTimeout time.Duration
	// ErrorPolicy は下流のレスポンスをエラーとみなす条件（"passthrough" か "server-errors"）。
	ErrorPolicy string
	// ValidateResponses がtrueの場合、2xxレスポンスを宣言した型と照合してログに残す。
	ValidateResponses bool
	// OTLPEndpoint はトレースの送信先。空の場合は送信しない。
	OTLPEndpoint string
}

// LoadConfig は環境変数から設定を読み込む。
// servicesFile が空でなければYAMLのサービス定義を読み込み、
// そのうえで *_URL 環境変数が指定されたサービスを上書きする。
func LoadConfig(servicesFile string) (Config, error) {
	services := map[string][]string{}
	if servicesFile != "" {
		loaded, err := discovery.LoadFile(servicesFile)
		if err != nil {
			return Config{}, err
		}
		services = loaded
	}
	for name, key := range serviceEnvKeys {
		if v := os.Getenv(key); v != "" {
			services[name] = discovery.SplitInstances(v)
			continue
		}
		if _, ok := services[name]; !ok {
			services[name] = []string{"http://" + name}
		}
	}

	timeout, err := parseTimeout(getEnvOr("GATEWAY_UPSTREAM_TIMEOUT", httpclient.DefaultTimeout.String()))
	if err != nil {
		return Config{}, err
	}

	validate, err := strconv.ParseBool(getEnvOr("GATEWAY_VALIDATE_RESPONSES", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("GATEWAY_VALIDATE_RESPONSES が不正: %w", err)
	}

	return Config{
		Port:              getEnvOr("PORT", "8080"),
		AllowedOrigins:    splitList(getEnvOr("CORS_ALLOWED_ORIGINS", middleware.AnyOrigin)),
		Services:          services,
		UpstreamTimeout:   timeout,
		ErrorPolicy:       getEnvOr("GATEWAY_ERROR_POLICY", "passthrough"),
		ValidateResponses: validate,
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

// parseTimeout は "30s" のような期間か、秒数の整数を解析する。
func parseTimeout(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("GATEWAY_UPSTREAM_TIMEOUT は0以上である必要があります: %q", s)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("GATEWAY_UPSTREAM_TIMEOUT が不正: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("GATEWAY_UPSTREAM_TIMEOUT は0以上である必要があります: %q", s)
	}
	return d, nil
}

// splitList はカンマ区切りの文字列を分割する。空要素は無視する。
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
