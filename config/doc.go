// Copyright (c) PolicyQA Authors.
// Licensed under the MIT License.

// Package config 提供 PolicyQA 的配置管理功能。
//
// 配置来源依次为默认值、YAML 文件与 POLICYQA_* 环境变量，
// 加载完成后由 Validate 校验索引存储、切分参数与超时等约束。
package config
