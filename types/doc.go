// Copyright (c) PolicyQA Authors.
// Licensed under the MIT License.

/*
Package types 提供 policyqa 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 rag、policy、llm、api
等上层模块提供统一的类型契约。

# 核心类型

  - Error / ErrorCode: 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
  - Role / Turn: 对话历史（User | Assistant）

# 主要能力

  - 错误构造：NewIndexNotReadyError / NewIngestionError / NewTransientError / NewCorruptIndexError
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
  - 历史渲染：FormatHistory
*/
package types
