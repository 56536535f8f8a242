// =============================================================================
// 📦 测试数据工厂 - 政策文档
// =============================================================================
// 提供预置的政策文本与对话历史，用于 rag / policy / api 测试
// =============================================================================
package fixtures

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BaSui01/policyqa/types"
)

// =============================================================================
// 🎯 政策文本
// =============================================================================

const (
	LeavePolicyTitle = "Leave Policy 2025"
	LeavePolicyText  = `Leave Policy 2025

Employees get 12 casual leave days per year. Casual leave must be requested at least two days in advance.

Unused casual leave does not carry over to the next calendar year.`

	RemoteWorkTitle = "Remote Work Policy"
	RemoteWorkText  = `Remote Work Policy

Employees may work remotely up to three days per week with manager approval.
Core collaboration hours are 10:00 to 15:00 local time.`

	ExpenseTitle = "Travel Expense Policy"
	ExpenseText  = `Travel Expense Policy

Economy class airfare is reimbursed for flights under six hours.
Hotel expenses are reimbursed up to 150 dollars per night with receipts.`
)

// =============================================================================
// 💬 对话历史
// =============================================================================

// CasualLeaveHistory 一轮关于年假的对话
func CasualLeaveHistory() []types.Turn {
	return []types.Turn{
		types.UserTurn("How many casual leaves do I get?"),
		types.AssistantTurn("According to the Leave Policy 2025, Employees get 12 casual leave days per year."),
	}
}

// =============================================================================
// 📁 文件辅助
// =============================================================================

// WriteFile 在 dir 下写入文件并返回完整路径
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
	return path
}

// PolicyDir 在临时目录中写入三份合法政策，返回目录
func PolicyDir(t testing.TB) string {
	t.Helper()
	dir := t.TempDir()
	WriteFile(t, dir, "leave-policy-2025.txt", LeavePolicyText)
	WriteFile(t, dir, "remote-work.md", "# "+RemoteWorkTitle+"\n\n"+RemoteWorkText)
	WriteFile(t, dir, "travel-expenses.txt", ExpenseText)
	return dir
}
