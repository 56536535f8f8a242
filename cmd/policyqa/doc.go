// Copyright (c) PolicyQA Authors.
// Licensed under the MIT License.

/*
Package main 提供 PolicyQA 服务端与命令行入口。

# 概述

cmd/policyqa 组装政策问答核心（切分、嵌入、向量索引、改写、检索、合成），
并通过子命令提供 HTTP API 服务、文档摄入、直接提问、索引状态与健康检查。

# 核心类型

  - App: 按配置组装的组件集合，持有 Redis / 数据库连接
  - Server: API 与 Metrics 双端口、投递目录监听，errgroup 统一生命周期
  - Middleware: HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、index、index-dir、ask、status、version、health
  - 中间件链：Recovery、RequestID、OTelTracing、SecurityHeaders、
    RequestLogger、MetricsMiddleware、CORS、RateLimiter（基于 IP）
  - 存储后端：file（本地 JSON 快照）或 sql（sqlite / postgres / mysql）
  - 嵌入缓存：可选 Redis，不可用时直接访问嵌入服务
  - 优雅关闭：SIGINT / SIGTERM 取消根 context，各服务器依次关闭
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
