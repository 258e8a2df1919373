package capability

import (
	"context"
	"fmt"

	"github.com/zhouzirui/yuanfang/backend/internal/model/workbench"
)

type workStatusStore interface {
	SwitchWorkStatus(ctx context.Context, status, description, taskID string) (workbench.WorkStatus, error)
	CurrentWorkStatus(ctx context.Context) (workbench.WorkStatus, bool, error)
}

// WorkStatus 工作状态能力。switch 结束当前状态并开启新状态，
// current 查询当前状态；任意时刻至多一条未结束记录。
type WorkStatus struct {
	statuses workStatusStore
}

// NewWorkStatus 创建工作状态能力。
func NewWorkStatus(statuses workStatusStore) *WorkStatus {
	return &WorkStatus{statuses: statuses}
}

func (w *WorkStatus) Name() string { return "work_status" }

func (w *WorkStatus) Invoke(ctx context.Context, payload Payload) Result {
	switch action := StringField(payload, "action"); action {
	case "switch":
		status := StringField(payload, "status")
		if status == "" {
			return Fail("status is required")
		}
		record, err := w.statuses.SwitchWorkStatus(ctx, status,
			StringField(payload, "description"), StringField(payload, "task_id"))
		if err != nil {
			return Fail(fmt.Sprintf("failed to switch work status: %v", err))
		}
		return Ok(Result{"status": record})
	case "current":
		record, found, err := w.statuses.CurrentWorkStatus(ctx)
		if err != nil {
			return Fail(fmt.Sprintf("failed to query work status: %v", err))
		}
		if !found {
			return Ok(Result{"status": nil})
		}
		return Ok(Result{"status": record})
	default:
		return Fail(fmt.Sprintf("unknown action %q", action))
	}
}
