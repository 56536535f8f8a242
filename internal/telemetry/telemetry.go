package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/BaSui01/policyqa/config"
)

// DefaultServiceName 未配置服务名时使用
const DefaultServiceName = "policyqa"

// 资源属性：描述这个实例服务的是哪份政策索引、用哪些模型
const (
	AttrIndexStore     = attribute.Key("policyqa.index.store")
	AttrIndexName      = attribute.Key("policyqa.index.name")
	AttrEmbeddingModel = attribute.Key("policyqa.embedding.model")
	AttrLLMModel       = attribute.Key("policyqa.llm.model")
	AttrTopK           = attribute.Key("policyqa.retrieval.top_k")
)

// Providers holds the OTel SDK TracerProvider and MeterProvider.
// When telemetry is disabled both fields are nil and Shutdown is a no-op.
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init 初始化 OTel SDK。禁用时返回 noop Providers，不连接任何外部服务；
// rag 与 policy 中的 span 在这种情况下由全局 noop tracer 吸收。
func Init(cfg *config.Config, version string, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tc := cfg.Telemetry
	if !tc.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}
	if version == "" {
		version = buildVersion()
	}

	ctx := context.Background()
	res, err := resource.New(ctx, resource.WithAttributes(resourceAttributes(cfg, version)...))
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(tc.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(tc.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tc.SampleRate))),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", tc.OTLPEndpoint),
		zap.String("service_name", serviceName(tc)),
		zap.String("version", version),
		zap.String("index_store", cfg.Index.Store),
		zap.Float64("sample_rate", tc.SampleRate),
	)
	return &Providers{tp: tp, mp: mp}, nil
}

func serviceName(tc config.TelemetryConfig) string {
	if tc.ServiceName == "" {
		return DefaultServiceName
	}
	return tc.ServiceName
}

// resourceAttributes 服务标识 + 索引后端 + 模型。sql 后端额外带 db.system。
func resourceAttributes(cfg *config.Config, version string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(serviceName(cfg.Telemetry)),
		semconv.ServiceVersionKey.String(version),
		AttrIndexStore.String(cfg.Index.Store),
		AttrIndexName.String(cfg.Index.Name),
		AttrEmbeddingModel.String(cfg.Embedding.Model),
		AttrLLMModel.String(cfg.LLM.Model),
		AttrTopK.Int(cfg.Retrieval.TopK),
	}
	if cfg.Index.Store == "sql" {
		attrs = append(attrs, semconv.DBSystemKey.String(dbSystem(cfg.Index.Database.Driver)))
	}
	return attrs
}

// dbSystem 驱动名 → semconv db.system 取值
func dbSystem(driver string) string {
	switch d := strings.ToLower(driver); d {
	case "postgres", "postgresql":
		return "postgresql"
	case "", "sqlite", "sqlite3":
		return "sqlite"
	default:
		return d
	}
}

// Shutdown flushes pending spans and metrics and closes exporters.
// Safe to call on noop or nil Providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// buildVersion 读取模块版本，不可用时返回 "dev"
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
