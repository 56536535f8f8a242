// Copyright (c) PolicyQA Authors.
// Licensed under the MIT License.

/*
Package policy 是政策问答核心对外暴露的服务层。

Service 把 rag 包中的组件组合为五个操作：

  - IndexDocument: 加载 → 切分 → 嵌入 → 追加并持久化一个政策文件
  - IndexDirectory: 批量摄入一个目录，单个文件失败不影响其余文件
  - Ask: 结合对话历史回答问题并附上引用来源
  - Status: 报告索引是否就绪、向量数量与存储位置
  - Suggestions: 静态的推荐问题列表

InboxWatcher 基于 fsnotify 监听投递目录，新文件写入完成后自动摄入。
*/
package policy
