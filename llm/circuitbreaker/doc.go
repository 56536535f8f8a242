// Copyright (c) PolicyQA Authors.
// Licensed under the MIT License.

// Package circuitbreaker 为嵌入与生成调用提供三态熔断（closed / open / half_open）。
//
// 连续的可重试失败达到阈值后进入 open，ResetTimeout 过后放行少量试探调用，
// 试探成功即恢复 closed。
package circuitbreaker
