package api

import (
	"fmt"

	"github.com/BaSui01/policyqa/types"
)

// =============================================================================
// 📥 摄入接口
// =============================================================================

// IndexDocumentRequest 摄入单个政策文件
type IndexDocumentRequest struct {
	// Path 存储子系统放置原始文件的路径
	Path string `json:"path"`
	// Title 展示名称，为空时从文件推断
	Title string `json:"title,omitempty"`
}

// IndexDirectoryRequest 批量摄入一个目录
type IndexDirectoryRequest struct {
	Dir string `json:"dir"`
}

// =============================================================================
// 💬 问答接口
// =============================================================================

// AskRequest 提问请求
type AskRequest struct {
	Question string `json:"question"`
	// History 按时间顺序排列的此前对话（可为空）
	History []Turn `json:"history,omitempty"`
}

// Turn 一轮对话
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToTurns converts wire turns to core turns. Unknown roles are rejected.
func ToTurns(in []Turn) ([]types.Turn, error) {
	out := make([]types.Turn, 0, len(in))
	for i, t := range in {
		role := types.Role(t.Role)
		if !role.Valid() {
			return nil, types.NewInvalidRequestError(
				fmt.Sprintf("history[%d].role must be %q or %q, got %q", i, types.RoleUser, types.RoleAssistant, t.Role))
		}
		out = append(out, types.Turn{Role: role, Content: t.Content})
	}
	return out, nil
}

// SuggestionsResponse 推荐问题列表
type SuggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}
