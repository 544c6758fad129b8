package chat

import "strings"

// Role tags a turn in a conversation history.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// Turn is one tagged entry of a conversation history.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// UserTurn builds a user line.
func UserTurn(text string) Turn { return Turn{Role: RoleUser, Text: text} }

// ModelTurn builds a model reply.
func ModelTurn(text string) Turn { return Turn{Role: RoleModel, Text: text} }

// SystemTurn builds a system instruction.
func SystemTurn(text string) Turn { return Turn{Role: RoleSystem, Text: text} }

// ParseRole maps loosely formatted role names onto the known roles, defaulting to user.
func ParseRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "model", "assistant":
		return RoleModel
	case "system":
		return RoleSystem
	default:
		return RoleUser
	}
}
