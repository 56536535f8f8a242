// Copyright (c) PolicyQA Authors.
// Licensed under the MIT License.

// Package tokenizer 提供统一的 Token 计数接口，
// 支持 tiktoken 精确计数与 CJK 估算器，用于生成请求的 prompt 预算控制。
package tokenizer
