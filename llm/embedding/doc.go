// Copyright (c) PolicyQA Authors.
// Licensed under the MIT License.

/*
包 embedding 提供文本嵌入（Embedding）接口与 OpenAI 兼容实现，
用于把政策片段与问题转换为向量。

# 核心类型

  - Provider：统一嵌入接口，定义 Embed、EmbedQuery、EmbedDocuments。
  - BaseProvider：公共基类，封装 HTTP 请求、x/time/rate 限速、
    错误映射与按 MaxBatchSize 分批。
  - OpenAIProvider：调用 /v1/embeddings。
  - CachedProvider：以 (模型, sha256(文本)) 为键的 Redis 向量缓存。
  - ResilientProvider：通过 llm.CallGuard 增加单次超时与有界重试。

# 组合方式

	inner := embedding.NewOpenAIProvider(cfg)
	var p embedding.Provider = embedding.NewResilientProvider(inner, guard)
	p = embedding.NewCachedProvider(p, redisCache, ttl, logger)
*/
package embedding
