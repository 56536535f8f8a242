package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/policyqa/types"
)

const defaultTestTimeout = 30 * time.Second

// TestContext 返回测试结束时自动取消的上下文
func TestContext(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 已取消的上下文，用于验证调用方取消
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// AssertErrorCode 断言错误链中带有指定的 types.ErrorCode
func AssertErrorCode(t testing.TB, err error, code types.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected [%s] error, got nil", code)
	}
	if got := types.GetErrorCode(err); got != code {
		t.Fatalf("expected [%s] error, got [%s]: %v", code, got, err)
	}
}

// AssertEventuallyTrue 轮询直到 condition 为真或超时
func AssertEventuallyTrue(t testing.TB, condition func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Errorf("condition not met within %v", timeout)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}
