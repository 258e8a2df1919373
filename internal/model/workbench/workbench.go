package workbench

import "time"

// Task 是数字员工跟踪的一条工作任务。
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    int        `json:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TaskUpdate lists exactly the mutable task fields. Partial updates are
// applied field-by-field from the non-nil members, never by reflection.
type TaskUpdate struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Priority    *int       `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// Schedule 是一条日程记录。
type Schedule struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	EventType string    `json:"eventType"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// WorkStatus 表示数字员工当前的工作状态。任一时刻至多一条记录的
// EndedAt 为空，切换状态时先关闭旧记录再写入新记录。
type WorkStatus struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Description string     `json:"description,omitempty"`
	TaskID      string     `json:"taskId,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
}
