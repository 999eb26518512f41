package discussion

import "time"

// Session is one bounded multi-provider discussion run.
type Session struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	Topic        string  `json:"topic"`
	MaxRounds    int     `json:"maxRounds"`
	CurrentRound int     `json:"currentRound"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"maxTokens"`

	IsActive            bool    `json:"isActive"`
	IsCompleted         bool    `json:"isCompleted"`
	ConsensusReached    bool    `json:"consensusReached"`
	ConsensusPercentage float64 `json:"consensusPercentage"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
