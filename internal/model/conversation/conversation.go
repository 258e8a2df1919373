package conversation

import "time"

// Role 标识一条发言属于谁。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation 一个用户的一段连续对话。进行中 EndedAt 为 nil；
// 同一用户同一时刻至多有一条进行中的会话。
type Conversation struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// Open 报告会话是否仍处于进行中。
func (c Conversation) Open() bool {
	return c.EndedAt == nil
}

// Turn 一条发言记录，写入后不再修改。
type Turn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Emotion        string    `json:"emotion,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
