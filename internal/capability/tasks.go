package capability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zhouzirui/yuanfang/backend/internal/model/workbench"
	"github.com/zhouzirui/yuanfang/backend/internal/store/sqlite"
)

type taskStore interface {
	CreateTask(ctx context.Context, task workbench.Task) (workbench.Task, error)
	UpdateTask(ctx context.Context, taskID string, update workbench.TaskUpdate) (workbench.Task, error)
	ListTasks(ctx context.Context, userID, status string) ([]workbench.Task, error)
}

// TaskManagement 任务管理能力，按 action 分派：
// create {"user_id","title","description","priority","due_date"}
// update {"task_id", 以及任意待改字段}
// list   {"user_id","status"}
type TaskManagement struct {
	tasks taskStore
}

// NewTaskManagement 创建任务管理能力。
func NewTaskManagement(tasks taskStore) *TaskManagement {
	return &TaskManagement{tasks: tasks}
}

func (t *TaskManagement) Name() string { return "task_management" }

func (t *TaskManagement) Invoke(ctx context.Context, payload Payload) Result {
	switch action := StringField(payload, "action"); action {
	case "create":
		return t.create(ctx, payload)
	case "update":
		return t.update(ctx, payload)
	case "list":
		return t.list(ctx, payload)
	default:
		return Fail(fmt.Sprintf("unknown action %q", action))
	}
}

func (t *TaskManagement) create(ctx context.Context, payload Payload) Result {
	title := StringField(payload, "title")
	if title == "" {
		return Fail("title is required")
	}

	task := workbench.Task{
		UserID:      StringField(payload, "user_id"),
		Title:       title,
		Description: StringField(payload, "description"),
		Priority:    IntField(payload, "priority"),
	}
	if raw := StringField(payload, "due_date"); raw != "" {
		due, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Fail(fmt.Sprintf("invalid due_date: %v", err))
		}
		task.DueDate = &due
	}

	created, err := t.tasks.CreateTask(ctx, task)
	if err != nil {
		return Fail(fmt.Sprintf("failed to create task: %v", err))
	}
	return Ok(Result{"task": created})
}

func (t *TaskManagement) update(ctx context.Context, payload Payload) Result {
	taskID := StringField(payload, "task_id")
	if taskID == "" {
		return Fail("task_id is required")
	}

	var update workbench.TaskUpdate
	if value, ok := payload["title"].(string); ok {
		update.Title = &value
	}
	if value, ok := payload["description"].(string); ok {
		update.Description = &value
	}
	if value, ok := payload["status"].(string); ok {
		update.Status = &value
	}
	if _, ok := payload["priority"]; ok {
		priority := IntField(payload, "priority")
		update.Priority = &priority
	}
	if raw, ok := payload["due_date"].(string); ok {
		due, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Fail(fmt.Sprintf("invalid due_date: %v", err))
		}
		update.DueDate = &due
	}

	task, err := t.tasks.UpdateTask(ctx, taskID, update)
	if errors.Is(err, sqlite.ErrTaskNotFound) {
		return Fail("task not found")
	}
	if err != nil {
		return Fail(fmt.Sprintf("failed to update task: %v", err))
	}
	return Ok(Result{"task": task})
}

func (t *TaskManagement) list(ctx context.Context, payload Payload) Result {
	tasks, err := t.tasks.ListTasks(ctx, StringField(payload, "user_id"), StringField(payload, "status"))
	if err != nil {
		return Fail(fmt.Sprintf("failed to list tasks: %v", err))
	}
	return Ok(Result{"tasks": tasks, "count": len(tasks)})
}
