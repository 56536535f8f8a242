// Copyright (c) PolicyQA Authors.
// Licensed under the MIT License.

/*
包 database 提供基于 GORM 的数据库连接与连接池管理，供 SQL 索引存储使用。

# 核心类型

  - Open：按驱动（sqlite / postgres / mysql）打开 GORM 连接。
  - PoolManager：连接池管理器，提供 DB()、Ping()、Close() 与后台健康检查，
    同时实现 HTTP 健康检查接口（Name / Check）。
  - PoolConfig：连接池配置。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 事务管理：WithTransaction 单次执行，WithTransactionRetry 对死锁、
    序列化失败、sqlite 锁冲突等错误做指数退避重试。
*/
package database
