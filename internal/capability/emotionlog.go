package capability

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	affectmodel "github.com/zhouzirui/yuanfang/backend/internal/model/affect"
)

type affectLogWriter interface {
	InsertAffectLog(ctx context.Context, entry affectmodel.LogEntry) error
}

// EmotionLog 将一次情绪判定落库。调用方若把事务放进 ctx，
// 写入会并入同一提交单元。
// 入参 {"user_id", "emotion", "intensity", "context"}；出参 {"log_id"}。
type EmotionLog struct {
	logs affectLogWriter
}

// NewEmotionLog 创建情绪日志能力。
func NewEmotionLog(logs affectLogWriter) *EmotionLog {
	return &EmotionLog{logs: logs}
}

func (e *EmotionLog) Name() string { return "emotion_log" }

func (e *EmotionLog) Invoke(ctx context.Context, payload Payload) Result {
	userID := StringField(payload, "user_id")
	emotion := StringField(payload, "emotion")
	if userID == "" || emotion == "" {
		return Fail("user_id and emotion are required")
	}

	entry := affectmodel.LogEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Emotion:   emotion,
		Intensity: FloatField(payload, "intensity"),
		Context:   StringField(payload, "context"),
	}
	if err := e.logs.InsertAffectLog(ctx, entry); err != nil {
		return Fail(fmt.Sprintf("failed to record emotion: %v", err))
	}
	return Ok(Result{"log_id": entry.ID})
}
