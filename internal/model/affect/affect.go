package affect

import "time"

// Signal 表示一次对话轮次推断出的情绪标签与强度。
// 强度取值范围 [0,1]，每轮重新计算，不直接落库。
type Signal struct {
	Label     string  `json:"label"`
	Intensity float64 `json:"intensity"`
}

// Neutral 是情绪分析能力不可用或无历史标签时的兜底信号。
func Neutral() Signal {
	return Signal{Label: "neutral", Intensity: 0.5}
}

// LogEntry 是情绪信号的持久化形态，按用户维度追加记录。
type LogEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Emotion   string    `json:"emotion"`
	Intensity float64   `json:"intensity"`
	Context   string    `json:"context,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
