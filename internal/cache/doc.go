// Copyright (c) PolicyQA Authors.
// Licensed under the MIT License.

/*
包 cache 提供基于 Redis 的缓存管理能力，供 embedding 向量缓存使用。

# 核心类型

  - Manager：持有 go-redis 客户端，提供 Get/Set/GetMany/SetMany/Delete，
    所有键自动带 KeyPrefix。
  - Config：地址、密码、连接池、默认 TTL 与健康检查间隔。

# 主要能力

  - 批量读写：GetMany 使用 MGET，SetMany 使用 pipeline。
  - 健康检查：后台定时 Ping，Close 时停止；Manager 同时实现 Name/Check。
  - 错误语义：ErrCacheMiss / ErrClosed 哨兵错误。
*/
package cache
