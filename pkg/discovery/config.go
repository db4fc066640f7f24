package discovery

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// fileConfig はサービス定義ファイルのトップレベル構造。
//
//	services:
//	  admin:
//	    instances:
//	      - http://admin-1:8080
//	      - http://admin-2:8080
type fileConfig struct {
	Services map[string]serviceConfig `yaml:"services"`
}

// serviceConfig は1サービス分の定義。
type serviceConfig struct {
	Instances []string `yaml:"instances"`
}

// LoadFile はYAML形式のサービス定義ファイルを読み込む。
func LoadFile(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("サービス定義ファイルの読み込みに失敗: %w", err)
	}
	return Parse(data)
}

// Parse はYAML形式のサービス定義を解析する。
func Parse(data []byte) (map[string][]string, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("サービス定義の解析に失敗: %w", err)
	}

	services := make(map[string][]string, len(cfg.Services))
	for name, svc := range cfg.Services {
		services[name] = append([]string(nil), svc.Instances...)
	}
	return services, nil
}

// SplitInstances はカンマ区切りのインスタンスURL一覧を分割する。
// 空要素は無視する。
func SplitInstances(s string) []string {
	var instances []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			instances = append(instances, p)
		}
	}
	return instances
}
