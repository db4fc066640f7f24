package discovery

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
)

// ErrUnknownService は未登録のサービス名が指定されたことを表す。
var ErrUnknownService = errors.New("未登録のサービスです")

// Registry はサービス名とインスタンスURLの対応表。
// 複数のゴルーチンから同時に使用できる。
type Registry struct {
	// services はサービス名ごとのロードバランサ。
	services map[string]*balancer
}

// balancer は1サービス分のインスタンス一覧とラウンドロビンカウンタ。
type balancer struct {
	instances []string
	next      atomic.Uint64
}

// NewRegistry はサービス名とインスタンスURL一覧から Registry を生成する。
// インスタンスURLは http/https のスキームとホストを持つ必要がある。
// 末尾のスラッシュは取り除かれる。
func NewRegistry(services map[string][]string) (*Registry, error) {
	r := &Registry{services: make(map[string]*balancer, len(services))}
	for name, instances := range services {
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("サービス名が空です")
		}
		if len(instances) == 0 {
			return nil, fmt.Errorf("サービス %q にインスタンスがありません", name)
		}

		b := &balancer{instances: make([]string, 0, len(instances))}
		for _, raw := range instances {
			base, err := normalizeBaseURL(raw)
			if err != nil {
				return nil, fmt.Errorf("サービス %q のURLが不正: %w", name, err)
			}
			b.instances = append(b.instances, base)
		}
		r.services[name] = b
	}
	return r, nil
}

// Resolve はサービス名に対応するインスタンスのベースURLを返す。
// インスタンスが複数ある場合は呼び出しごとに順番に切り替わる。
func (r *Registry) Resolve(name string) (string, error) {
	b, ok := r.services[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	n := b.next.Add(1) - 1
	return b.instances[n%uint64(len(b.instances))], nil
}

// Has はサービス名が登録済みかどうかを返す。
func (r *Registry) Has(name string) bool {
	_, ok := r.services[name]
	return ok
}

// Names は登録済みのサービス名を昇順で返す。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instances はサービスに登録されたインスタンスURLのコピーを返す。
func (r *Registry) Instances(name string) []string {
	b, ok := r.services[name]
	if !ok {
		return nil
	}
	return append([]string(nil), b.instances...)
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("スキームは http か https である必要があります: %q", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("ホストがありません: %q", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("クエリやフラグメントは指定できません: %q", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}
