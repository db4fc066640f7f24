package httpclient

import (
	"fmt"
	"strings"
)

// ErrorPolicy は下流サービスのレスポンスをエラーとして扱うかどうかを判定する。
type ErrorPolicy interface {
	// HasError はレスポンスがエラーであればtrueを返す。
	HasError(resp *Response) bool
}

// PassThrough はすべてのレスポンスを正常とみなすポリシー。
// 下流の4xx/5xxはそのまま呼び出し元に返る。
type PassThrough struct{}

// HasError は常にfalseを返す。
func (PassThrough) HasError(*Response) bool { return false }

// ServerErrors は5xxレスポンスのみをエラーとみなすポリシー。
type ServerErrors struct{}

// HasError はステータスコードが500以上の場合にtrueを返す。
func (ServerErrors) HasError(resp *Response) bool {
	return resp.StatusCode >= 500
}

// ParseErrorPolicy は設定値からポリシーを生成する。
// 空文字列は "passthrough" として扱う。
func ParseErrorPolicy(name string) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "passthrough":
		return PassThrough{}, nil
	case "server-errors":
		return ServerErrors{}, nil
	default:
		return nil, fmt.Errorf("不明なエラーポリシー: %q", name)
	}
}

// StatusError はErrorPolicyがエラーと判定したレスポンスを表す。
type StatusError struct {
	// Service は呼び出し先のサービス名。
	Service string
	// StatusCode は下流サービスが返したステータスコード。
	StatusCode int
	// Body は下流サービスが返したボディ。
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("下流サービスがエラーを返した: service=%s, status=%d", e.Service, e.StatusCode)
}
