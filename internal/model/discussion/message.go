package discussion

import "time"

// Role identifies the author kind of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one immutable entry of a session transcript. ProviderID is
// empty for messages authored by the user or the system itself.
type Message struct {
	ID         string `json:"id"`
	SessionID  string `json:"sessionId"`
	ProviderID string `json:"providerId,omitempty"`
	Role       Role   `json:"role"`
	Content    string `json:"content"`

	ThinkingContent string  `json:"thinkingContent,omitempty"`
	TokensUsed      int     `json:"tokensUsed,omitempty"`
	ResponseTimeMS  float64 `json:"responseTimeMs,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
