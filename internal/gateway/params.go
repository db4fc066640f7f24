package gateway

import (
	"fmt"
	"net/url"
	"strconv"
)

// Params はリクエストパラメータを組み立てるビルダー。
// 同じキーでEntryを呼ぶと値を上書きする。
type Params struct {
	values url.Values
}

// NewParams は空のParamsを生成する。
func NewParams() *Params {
	return &Params{values: url.Values{}}
}

// Entry はキーと値を追加する。
func (p *Params) Entry(key, value string) *Params {
	p.values.Set(key, value)
	return p
}

// Build はここまでに追加したパラメータのコピーを返す。
// 戻り値を変更してもビルダーには影響しない。
func (p *Params) Build() url.Values {
	out := make(url.Values, len(p.values))
	for k, vv := range p.values {
		out[k] = append([]string(nil), vv...)
	}
	return out
}

// queryParam はルートが受け付けるクエリパラメータの定義。
type queryParam struct {
	name       string
	required   bool
	hasDefault bool
	def        string
	check      func(string) error
}

// required は必須の文字列パラメータ。
func required(name string) queryParam {
	return queryParam{name: name, required: true}
}

// optional は指定された場合のみ転送するパラメータ。
func optional(name string) queryParam {
	return queryParam{name: name}
}

// withDefault は省略時に既定値を転送するパラメータ。
func withDefault(name, def string) queryParam {
	return queryParam{name: name, hasDefault: true, def: def}
}

// requiredInt は整数でなければならない必須パラメータ。
func requiredInt(name string) queryParam {
	return queryParam{name: name, required: true, check: func(v string) error {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("パラメータ %s は整数である必要があります: %q", name, v)
		}
		return nil
	}}
}

// requiredDate はISO-8601の日付でなければならない必須パラメータ。
func requiredDate(name string) queryParam {
	return queryParam{name: name, required: true, check: func(v string) error {
		if _, err := ParseDate(v); err != nil {
			return fmt.Errorf("パラメータ %s: %w", name, err)
		}
		return nil
	}}
}

// bindError はクエリパラメータの束縛に失敗したことを表す。
type bindError struct {
	msg string
}

func (e *bindError) Error() string { return e.msg }

// bindQuery は定義に従ってクエリパラメータを取り出す。
// 定義にないパラメータは捨てる。
func bindQuery(query url.Values, defs []queryParam) (url.Values, error) {
	p := NewParams()
	for _, qp := range defs {
		v, ok := query[qp.name]
		switch {
		case ok && len(v) > 0:
			if qp.check != nil {
				if err := qp.check(v[0]); err != nil {
					return nil, &bindError{msg: err.Error()}
				}
			}
			p.Entry(qp.name, v[0])
		case qp.required:
			return nil, &bindError{msg: fmt.Sprintf("必須パラメータ %s がありません", qp.name)}
		case qp.hasDefault:
			p.Entry(qp.name, qp.def)
		}
	}
	return p.Build(), nil
}
