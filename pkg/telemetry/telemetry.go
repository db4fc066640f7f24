// Package telemetry はOpenTelemetryのトレース出力を初期化する。
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config はトレース出力の設定。
type Config struct {
	// ServiceName はスパンに付与するサービス名。
	ServiceName string
	// Endpoint はOTLP/HTTPの送信先URL（例: "http://otel-collector:4318"）。
	// 空の場合はエクスポータを作らない。
	Endpoint string
}

// ShutdownFunc はTracerProviderを停止し、未送信のスパンを書き出す。
type ShutdownFunc func(context.Context) error

// Setup はグローバルのTracerProviderとプロパゲータを設定する。
// Endpointが空の場合はW3C Trace Contextの伝播のみ有効にする。
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("OTLPエクスポータの作成に失敗: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
		)),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
