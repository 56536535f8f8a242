// Copyright (c) PolicyQA Authors.
// Licensed under the MIT License.

/*
包 server 提供 HTTP 服务器生命周期管理。

Manager 封装 net/http.Server：Start 非阻塞启动，Shutdown 在超时内排空请求，
Run 阻塞到 ctx 结束后优雅关闭。policyqa serve 为 API 端口与 metrics 端口
各创建一个 Manager。
*/
package server
