package types

import "strings"

// Role 对话轮次的发言方
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn 一轮对话（只属于调用方，核心不保存）
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn builds a user turn.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn builds an assistant turn.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// FormatHistory renders turns as "User: ..." / "Assistant: ..." lines.
func FormatHistory(history []Turn) string {
	var b strings.Builder
	for _, t := range history {
		switch t.Role {
		case RoleUser:
			b.WriteString("User: ")
		case RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(strings.TrimSpace(t.Content))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
