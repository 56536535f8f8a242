// Copyright (c) PolicyQA Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 policyqa 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext，自动注册 Cleanup
  - 断言工具: AssertErrorCode / AssertEventuallyTrue

# 子包

  - testutil/mocks: HashEmbedder（确定性词袋嵌入）、GroundedGenerator
    （只根据上下文作答的生成器）、MockProvider（固定响应与错误注入）
  - testutil/fixtures: 预置政策文本、对话历史与临时文件辅助
*/
package testutil
