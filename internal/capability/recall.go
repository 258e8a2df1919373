package capability

import (
	"context"
	"fmt"

	convmodel "github.com/zhouzirui/yuanfang/backend/internal/model/conversation"
)

// recallHistoryLimit 回忆时检索的用户发言条数。
const recallHistoryLimit = 10

type userTurnReader interface {
	RecentUserTurns(ctx context.Context, userID string, limit int) ([]convmodel.Turn, error)
}

// MemoryRecall 跨会话回忆用户最近聊过的话题。
// 入参 {"user_id"}；出参 {"topics": []string, "emotions": []string}。
type MemoryRecall struct {
	turns userTurnReader
}

// NewMemoryRecall 创建记忆回忆能力。
func NewMemoryRecall(turns userTurnReader) *MemoryRecall {
	return &MemoryRecall{turns: turns}
}

func (m *MemoryRecall) Name() string { return "memory_recall" }

func (m *MemoryRecall) Invoke(ctx context.Context, payload Payload) Result {
	userID := StringField(payload, "user_id")
	if userID == "" {
		return Fail("user_id is required")
	}

	turns, err := m.turns.RecentUserTurns(ctx, userID, recallHistoryLimit)
	if err != nil {
		return Fail(fmt.Sprintf("failed to load user turns: %v", err))
	}

	// RecentUserTurns 按时间倒序返回，这里恢复成由旧到新，
	// 方便调用方直接取末尾作为"最近话题"。
	topics := make([]string, 0, len(turns))
	emotions := make([]string, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		topics = append(topics, turns[i].Content)
		if turns[i].Emotion != "" {
			emotions = append(emotions, turns[i].Emotion)
		}
	}

	return Ok(Result{
		"topics":   topics,
		"emotions": emotions,
	})
}
