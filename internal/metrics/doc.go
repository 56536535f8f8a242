// Copyright (c) PolicyQA Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力。

Collector 通过 promauto 注册到默认 registry，并直接实现各层的观察者接口：

  - HTTP：请求总数、耗时、响应体大小，状态码归类为 2xx/3xx/4xx/5xx
  - 外部能力：embedding / generation 调用次数与耗时（含重试），按 kind/provider/model/status 分组
  - RAG：回答结果分布、检索片段数、索引向量数、摄入次数与片段数
  - 缓存：嵌入缓存命中与未命中
  - 数据库：SQL 索引存储的连接池状态
*/
package metrics
