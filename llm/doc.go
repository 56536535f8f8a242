// Copyright (c) PolicyQA Authors.
// Licensed under the MIT License.

/*
Package llm 提供文本生成能力的接入层。

# 概述

上层的 rag 组件只依赖 [Provider] 接口；本包负责把 OpenAI 兼容的
/v1/chat/completions 协议、上游错误语义与重试策略收敛为统一的请求/响应模型。

# 核心类型

  - [Provider]: 生成能力接口（Completion / Name）
  - [OpenAIProvider]: OpenAI 兼容 HTTP 实现
  - [ResilientProvider]: 单次超时 + 有界重试装饰器
  - [CallGuard]: 可复用的调用保护（超时、重试、熔断，embedding 同样使用）

# 错误语义

上游 429 / 5xx / 网络错误 / 超时被视为瞬时失败，重试耗尽后以
types.ErrTransientFailure 返回；401 / 400 等直接返回 UPSTREAM 类错误。
*/
package llm
