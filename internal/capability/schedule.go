package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/zhouzirui/yuanfang/backend/internal/model/workbench"
)

type scheduleStore interface {
	CreateSchedule(ctx context.Context, schedule workbench.Schedule) (workbench.Schedule, error)
	ListSchedules(ctx context.Context, start, end time.Time) ([]workbench.Schedule, error)
	FindScheduleConflicts(ctx context.Context, start, end time.Time, excludeID string) ([]workbench.Schedule, error)
}

// ScheduleManagement 日程管理能力，按 action 分派：
// create          {"title","event_type","start_time","end_time","location"}
// list            {"start_time","end_time"}
// check_conflicts {"start_time","end_time","exclude_id"}
type ScheduleManagement struct {
	schedules scheduleStore
}

// NewScheduleManagement 创建日程管理能力。
func NewScheduleManagement(schedules scheduleStore) *ScheduleManagement {
	return &ScheduleManagement{schedules: schedules}
}

func (s *ScheduleManagement) Name() string { return "schedule_management" }

func (s *ScheduleManagement) Invoke(ctx context.Context, payload Payload) Result {
	switch action := StringField(payload, "action"); action {
	case "create":
		return s.create(ctx, payload)
	case "list":
		return s.list(ctx, payload)
	case "check_conflicts":
		return s.checkConflicts(ctx, payload)
	default:
		return Fail(fmt.Sprintf("unknown action %q", action))
	}
}

func (s *ScheduleManagement) create(ctx context.Context, payload Payload) Result {
	title := StringField(payload, "title")
	if title == "" {
		return Fail("title is required")
	}
	start, end, err := timeWindow(payload)
	if err != nil {
		return Fail(err.Error())
	}

	// 先查冲突再写入，重叠的日程一并带回，由上层决定是否提醒用户。
	conflicts, err := s.schedules.FindScheduleConflicts(ctx, start, end, "")
	if err != nil {
		return Fail(fmt.Sprintf("failed to check conflicts: %v", err))
	}

	eventType := StringField(payload, "event_type")
	if eventType == "" {
		eventType = "meeting"
	}
	created, err := s.schedules.CreateSchedule(ctx, workbench.Schedule{
		Title:     title,
		EventType: eventType,
		StartTime: start,
		EndTime:   end,
		Location:  StringField(payload, "location"),
	})
	if err != nil {
		return Fail(fmt.Sprintf("failed to create schedule: %v", err))
	}
	return Ok(Result{"schedule": created, "conflicts": conflicts})
}

func (s *ScheduleManagement) list(ctx context.Context, payload Payload) Result {
	start, end, err := timeWindow(payload)
	if err != nil {
		return Fail(err.Error())
	}
	schedules, err := s.schedules.ListSchedules(ctx, start, end)
	if err != nil {
		return Fail(fmt.Sprintf("failed to list schedules: %v", err))
	}
	return Ok(Result{"schedules": schedules, "count": len(schedules)})
}

func (s *ScheduleManagement) checkConflicts(ctx context.Context, payload Payload) Result {
	start, end, err := timeWindow(payload)
	if err != nil {
		return Fail(err.Error())
	}
	conflicts, err := s.schedules.FindScheduleConflicts(ctx, start, end, StringField(payload, "exclude_id"))
	if err != nil {
		return Fail(fmt.Sprintf("failed to check conflicts: %v", err))
	}
	return Ok(Result{"conflicts": conflicts, "has_conflict": len(conflicts) > 0})
}

func timeWindow(payload Payload) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, StringField(payload, "start_time"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start_time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, StringField(payload, "end_time"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end_time: %w", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_time must be after start_time")
	}
	return start, end, nil
}
