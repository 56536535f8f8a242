// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，为 PolicyQA 提供
// 集中式的 TracerProvider 和 MeterProvider 配置。
// 资源上附带索引后端、索引名和模型等属性，便于按部署筛选 trace。
// 遥测禁用时使用 noop 实现，不连接任何外部服务。
package telemetry
