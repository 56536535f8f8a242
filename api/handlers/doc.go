// Copyright (c) PolicyQA Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 PolicyQA HTTP API 的请求处理器实现。

# 核心类型

  - PolicyHandler: 摄入、批量摄入、问答、状态与推荐问题
  - HealthHandler: 服务健康检查（/health, /healthz, /ready, /version）
  - Response: 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo: 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter: 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck: 可插拔健康检查接口（向量索引、Redis、数据库）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteErr / WriteJSON
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码映射，例如 INDEX_NOT_READY → 409
*/
package handlers
