package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	affectmodel "github.com/zhouzirui/yuanfang/backend/internal/model/affect"
	convmodel "github.com/zhouzirui/yuanfang/backend/internal/model/conversation"
	"github.com/zhouzirui/yuanfang/backend/internal/model/workbench"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrTaskNotFound         = errors.New("task not found")
)

// Store 基于 SQLite 的持久层，负责会话、轮次、情绪日志与工作台实体。
type Store struct {
	db *sql.DB

	// 工作状态是全局单条"当前记录"，写入需串行以避免并发切换时
	// 出现两条未结束的状态。
	statusMu sync.Mutex
}

// New 打开（或创建）数据库文件并初始化表结构。
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close 释放底层数据库句柄。
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			emotion TEXT,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS emotion_logs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			emotion TEXT NOT NULL,
			intensity REAL NOT NULL,
			context TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			status TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 3,
			due_date TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			event_type TEXT NOT NULL,
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP NOT NULL,
			location TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS work_status (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			description TEXT,
			task_id TEXT,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP
		)`,
		// 每个用户至多一条未结束会话。
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_open
			ON conversations(user_id) WHERE ended_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_emotion_logs_user ON emotion_logs(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_start ON schedules(start_time)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// dbtx 统一普通连接与事务的查询接口，使所有读写方法都能在
// RunInTx 的事务内复用。
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// RunInTx 在单个事务内执行 fn。事务通过 context 传递，fn 里经由
// Store 方法发起的所有写入同属一个提交单元；fn 返回错误时整体回滚。
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		// 已在事务中，直接复用。
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) conn(ctx context.Context) dbtx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// OpenConversation 返回用户当前未结束的会话，不存在时创建一条。
func (s *Store) OpenConversation(ctx context.Context, userID string) (convmodel.Conversation, error) {
	conv, err := s.findOpenConversation(ctx, userID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return convmodel.Conversation{}, err
	}

	conv = convmodel.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: time.Now().UTC(),
	}
	_, err = s.conn(ctx).ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, started_at) VALUES (?, ?, ?)`,
		conv.ID, conv.UserID, conv.StartedAt)
	if err != nil {
		return convmodel.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) findOpenConversation(ctx context.Context, userID string) (convmodel.Conversation, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT id, user_id, started_at, ended_at FROM conversations
		 WHERE user_id = ? AND ended_at IS NULL`, userID)
	return scanConversation(row)
}

// CloseConversation 为会话补写结束时间。已结束的会话保持原样，
// 因此重复调用只会生效一次。
func (s *Store) CloseConversation(ctx context.Context, conversationID string) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE conversations SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		time.Now().UTC(), conversationID)
	if err != nil {
		return fmt.Errorf("failed to close conversation: %w", err)
	}
	return nil
}

// ListConversations 按开始时间倒序返回某个用户的全部会话。
func (s *Store) ListConversations(ctx context.Context, userID string) ([]convmodel.Conversation, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT id, user_id, started_at, ended_at FROM conversations
		 WHERE user_id = ? ORDER BY started_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []convmodel.Conversation
	for rows.Next() {
		conv, err := scanConversationRows(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// InsertTurn 追加一条轮次记录。轮次写入后不可变更。
func (s *Store) InsertTurn(ctx context.Context, turn convmodel.Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO turns (id, conversation_id, role, content, emotion, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.ConversationID, string(turn.Role), turn.Content,
		nullString(turn.Emotion), turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	return nil
}

// RecentTurns 返回某会话最近的 limit 条轮次，按时间倒序。
func (s *Store) RecentTurns(ctx context.Context, conversationID string, limit int) ([]convmodel.Turn, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT id, conversation_id, role, content, emotion, created_at FROM turns
		 WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// ListTurns 返回某会话的全部轮次，按时间正序。
func (s *Store) ListTurns(ctx context.Context, conversationID string) ([]convmodel.Turn, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT id, conversation_id, role, content, emotion, created_at FROM turns
		 WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// RecentUserTurns 跨会话返回某用户最近的 limit 条用户发言，用于话题回忆。
func (s *Store) RecentUserTurns(ctx context.Context, userID string, limit int) ([]convmodel.Turn, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT t.id, t.conversation_id, t.role, t.content, t.emotion, t.created_at
		 FROM turns t JOIN conversations c ON t.conversation_id = c.id
		 WHERE c.user_id = ? AND t.role = 'user'
		 ORDER BY t.created_at DESC, t.id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query user turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// InsertAffectLog 追加一条情绪日志。
func (s *Store) InsertAffectLog(ctx context.Context, entry affectmodel.LogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO emotion_logs (id, user_id, emotion, intensity, context, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Emotion, entry.Intensity,
		nullString(entry.Context), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert emotion log: %w", err)
	}
	return nil
}

// ListAffectLogs 按时间倒序返回某用户最近的 limit 条情绪日志。
func (s *Store) ListAffectLogs(ctx context.Context, userID string, limit int) ([]affectmodel.LogEntry, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT id, user_id, emotion, intensity, context, created_at FROM emotion_logs
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list emotion logs: %w", err)
	}
	defer rows.Close()

	var entries []affectmodel.LogEntry
	for rows.Next() {
		var (
			entry   affectmodel.LogEntry
			context sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Emotion, &entry.Intensity,
			&context, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan emotion log: %w", err)
		}
		entry.Context = context.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CreateTask 新建任务，初始状态为 pending。
func (s *Store) CreateTask(ctx context.Context, task workbench.Task) (workbench.Task, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = "pending"
	}
	if task.Priority == 0 {
		task.Priority = 3
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, title, description, status, priority, due_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.UserID, task.Title, nullString(task.Description),
		task.Status, task.Priority, nullTime(task.DueDate), task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return workbench.Task{}, fmt.Errorf("failed to create task: %w", err)
	}
	return task, nil
}

// UpdateTask 按字段应用部分更新，只动 TaskUpdate 中非 nil 的成员。
func (s *Store) UpdateTask(ctx context.Context, taskID string, update workbench.TaskUpdate) (workbench.Task, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return workbench.Task{}, err
	}

	if update.Title != nil {
		task.Title = *update.Title
	}
	if update.Description != nil {
		task.Description = *update.Description
	}
	if update.Status != nil {
		task.Status = *update.Status
	}
	if update.Priority != nil {
		task.Priority = *update.Priority
	}
	if update.DueDate != nil {
		task.DueDate = update.DueDate
	}
	task.UpdatedAt = time.Now().UTC()

	_, err = s.conn(ctx).ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?, due_date = ?, updated_at = ?
		 WHERE id = ?`,
		task.Title, nullString(task.Description), task.Status, task.Priority,
		nullTime(task.DueDate), task.UpdatedAt, task.ID)
	if err != nil {
		return workbench.Task{}, fmt.Errorf("failed to update task: %w", err)
	}
	return task, nil
}

// GetTask 按 ID 查找任务。
func (s *Store) GetTask(ctx context.Context, taskID string) (workbench.Task, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT id, user_id, title, description, status, priority, due_date, created_at, updated_at
		 FROM tasks WHERE id = ?`, taskID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return workbench.Task{}, ErrTaskNotFound
	}
	return task, err
}

// ListTasks 返回某用户的任务，status 为空时不过滤。
func (s *Store) ListTasks(ctx context.Context, userID, status string) ([]workbench.Task, error) {
	query := `SELECT id, user_id, title, description, status, priority, due_date, created_at, updated_at
		 FROM tasks WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY priority DESC, created_at DESC`

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []workbench.Task
	for rows.Next() {
		task, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// CreateSchedule 新建日程。
func (s *Store) CreateSchedule(ctx context.Context, schedule workbench.Schedule) (workbench.Schedule, error) {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	schedule.CreatedAt = time.Now().UTC()

	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO schedules (id, title, event_type, start_time, end_time, location, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID, schedule.Title, schedule.EventType, schedule.StartTime,
		schedule.EndTime, nullString(schedule.Location), schedule.CreatedAt)
	if err != nil {
		return workbench.Schedule{}, fmt.Errorf("failed to create schedule: %w", err)
	}
	return schedule, nil
}

// ListSchedules 返回开始时间落在 [start, end] 内的日程。
func (s *Store) ListSchedules(ctx context.Context, start, end time.Time) ([]workbench.Schedule, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT id, title, event_type, start_time, end_time, location, created_at
		 FROM schedules WHERE start_time >= ? AND start_time <= ? ORDER BY start_time ASC`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// FindScheduleConflicts 返回与 [start, end] 时间段重叠的日程，excludeID 可为空。
func (s *Store) FindScheduleConflicts(ctx context.Context, start, end time.Time, excludeID string) ([]workbench.Schedule, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT id, title, event_type, start_time, end_time, location, created_at
		 FROM schedules WHERE id != ? AND start_time < ? AND end_time > ?`,
		excludeID, end, start)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule conflicts: %w", err)
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// SwitchWorkStatus 结束当前工作状态并写入新状态，两步在同一事务内完成。
func (s *Store) SwitchWorkStatus(ctx context.Context, status, description, taskID string) (workbench.WorkStatus, error) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	record := workbench.WorkStatus{
		ID:          uuid.NewString(),
		Status:      status,
		Description: description,
		TaskID:      taskID,
		StartedAt:   time.Now().UTC(),
	}

	err := s.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.conn(ctx).ExecContext(ctx,
			`UPDATE work_status SET ended_at = ? WHERE ended_at IS NULL`,
			record.StartedAt); err != nil {
			return fmt.Errorf("failed to close current work status: %w", err)
		}
		if _, err := s.conn(ctx).ExecContext(ctx,
			`INSERT INTO work_status (id, status, description, task_id, started_at)
			 VALUES (?, ?, ?, ?, ?)`,
			record.ID, record.Status, nullString(record.Description),
			nullString(record.TaskID), record.StartedAt); err != nil {
			return fmt.Errorf("failed to insert work status: %w", err)
		}
		return nil
	})
	if err != nil {
		return workbench.WorkStatus{}, err
	}
	return record, nil
}

// CurrentWorkStatus 返回未结束的那条工作状态。
func (s *Store) CurrentWorkStatus(ctx context.Context) (workbench.WorkStatus, bool, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT id, status, description, task_id, started_at, ended_at
		 FROM work_status WHERE ended_at IS NULL`)

	var (
		record      workbench.WorkStatus
		description sql.NullString
		taskID      sql.NullString
		endedAt     sql.NullTime
	)
	err := row.Scan(&record.ID, &record.Status, &description, &taskID, &record.StartedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return workbench.WorkStatus{}, false, nil
	}
	if err != nil {
		return workbench.WorkStatus{}, false, fmt.Errorf("failed to query work status: %w", err)
	}
	record.Description = description.String
	record.TaskID = taskID.String
	if endedAt.Valid {
		record.EndedAt = &endedAt.Time
	}
	return record, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row *sql.Row) (convmodel.Conversation, error) {
	conv, err := scanConversationFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return convmodel.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

func scanConversationRows(rows *sql.Rows) (convmodel.Conversation, error) {
	return scanConversationFrom(rows)
}

func scanConversationFrom(scanner rowScanner) (convmodel.Conversation, error) {
	var (
		conv    convmodel.Conversation
		endedAt sql.NullTime
	)
	if err := scanner.Scan(&conv.ID, &conv.UserID, &conv.StartedAt, &endedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return convmodel.Conversation{}, err
		}
		return convmodel.Conversation{}, fmt.Errorf("failed to scan conversation: %w", err)
	}
	if endedAt.Valid {
		conv.EndedAt = &endedAt.Time
	}
	return conv, nil
}

func scanTurns(rows *sql.Rows) ([]convmodel.Turn, error) {
	var turns []convmodel.Turn
	for rows.Next() {
		var (
			turn    convmodel.Turn
			role    string
			emotion sql.NullString
		)
		if err := rows.Scan(&turn.ID, &turn.ConversationID, &role, &turn.Content, &emotion, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = convmodel.Role(role)
		turn.Emotion = emotion.String
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func scanTask(scanner rowScanner) (workbench.Task, error) {
	var (
		task        workbench.Task
		description sql.NullString
		dueDate     sql.NullTime
	)
	if err := scanner.Scan(&task.ID, &task.UserID, &task.Title, &description,
		&task.Status, &task.Priority, &dueDate, &task.CreatedAt, &task.UpdatedAt); err != nil {
		return workbench.Task{}, err
	}
	task.Description = description.String
	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	return task, nil
}

func scanTaskRows(rows *sql.Rows) (workbench.Task, error) {
	task, err := scanTask(rows)
	if err != nil {
		return workbench.Task{}, fmt.Errorf("failed to scan task: %w", err)
	}
	return task, nil
}

func scanSchedules(rows *sql.Rows) ([]workbench.Schedule, error) {
	var schedules []workbench.Schedule
	for rows.Next() {
		var (
			schedule workbench.Schedule
			location sql.NullString
		)
		if err := rows.Scan(&schedule.ID, &schedule.Title, &schedule.EventType,
			&schedule.StartTime, &schedule.EndTime, &location, &schedule.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedule.Location = location.String
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}
