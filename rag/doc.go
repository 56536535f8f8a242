// Copyright (c) PolicyQA Authors.
// Licensed under the MIT License.

/*
# 概述

Package rag 实现政策问答的检索增强生成核心：分块、向量索引、持久化、
问题改写、检索、答案合成，以及把这些步骤串起来的 ConversationalRAG。

每个步骤都是可单独构造、单独测试的组件，生成与嵌入能力通过
Embedder / Generator 接口注入。

# 核心类型

  - RecursiveSplitter: 按 段落 > 行 > 单词 > 字符 递归切分，窗口之间保留重叠
  - FlatIndex: 不可变的余弦相似度索引，Append 返回新快照
  - IndexManager: 加载、追加、持久化并原子发布索引快照
  - IndexStore: 持久化位置（FileStore：本地 JSON；SQLStore：GORM）
  - QueryReformulator: 结合对话历史把追问改写为独立问题
  - Retriever: 嵌入查询并做 top-k 检索
  - AnswerSynthesizer: 只依据检索片段生成答案，按 token 预算裁剪历史
  - ConversationalRAG: 改写 → 检索 → 合成 → 附加来源

# 状态

IndexManager 只有两个状态：uninitialized 与 ready。第一次成功加载或写入后
进入 ready 且不再回退。索引未就绪时 Answer 返回 INDEX_NOT_READY，
而不是空答案。

# 持久化

每次 BuildOrAppend 先构建新快照、再持久化、最后发布；持久化失败时
索引保持上一次成功写入的状态。重复摄入同一文档会产生重复记录。
*/
package rag
