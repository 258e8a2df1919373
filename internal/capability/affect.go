package capability

import (
	"context"
	"fmt"

	analysis "github.com/zhouzirui/yuanfang/backend/internal/analysis/affect"
	convmodel "github.com/zhouzirui/yuanfang/backend/internal/model/conversation"
)

// affectHistoryLimit 参与情绪推断的最近轮次数。
const affectHistoryLimit = 5

type turnReader interface {
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]convmodel.Turn, error)
}

// EmotionAnalysis 对会话最近几轮的情绪标签做多数投票。
// 入参 {"conversation_id"}；出参 {"emotion", "intensity"}。
type EmotionAnalysis struct {
	turns turnReader
}

// NewEmotionAnalysis 创建情绪分析能力。
func NewEmotionAnalysis(turns turnReader) *EmotionAnalysis {
	return &EmotionAnalysis{turns: turns}
}

func (e *EmotionAnalysis) Name() string { return "emotion_analysis" }

func (e *EmotionAnalysis) Invoke(ctx context.Context, payload Payload) Result {
	conversationID := StringField(payload, "conversation_id")
	if conversationID == "" {
		return Fail("conversation_id is required")
	}

	turns, err := e.turns.RecentTurns(ctx, conversationID, affectHistoryLimit)
	if err != nil {
		return Fail(fmt.Sprintf("failed to load recent turns: %v", err))
	}

	labels := make([]string, 0, len(turns))
	for _, turn := range turns {
		label := turn.Emotion
		// 没有存量标签的用户轮退回关键词归类，外部导入的旧数据也能参与投票。
		if label == "" && turn.Role == convmodel.RoleUser {
			label = analysis.Classify(turn.Content)
		}
		if label != "" {
			labels = append(labels, label)
		}
	}

	signal := analysis.Aggregate(labels)
	return Ok(Result{
		"emotion":   signal.Label,
		"intensity": signal.Intensity,
	})
}
