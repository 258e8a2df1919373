// Package workbench 工作台 REST 接口。路由不直连存储，
// 统一按名字调用能力，和语音管线共用同一套业务入口。
package workbench

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/yuanfang/backend/internal/capability"
	"github.com/zhouzirui/yuanfang/backend/pkg/utils"
)

// Handler 把任务、工作状态、日程路由映射到对应能力。
type Handler struct {
	dispatcher *capability.Dispatcher
}

// New 创建工作台处理器。
func New(dispatcher *capability.Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

// RegisterRoutes 注册工作台路由。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/tasks", h.createTask)
	r.Patch("/tasks/{taskID}", h.updateTask)
	r.Get("/tasks", h.listTasks)

	r.Post("/work-status", h.switchWorkStatus)
	r.Get("/work-status", h.currentWorkStatus)

	r.Post("/schedules", h.createSchedule)
	r.Get("/schedules", h.listSchedules)
	r.Get("/schedules/conflicts", h.checkConflicts)
}

// invoke 调用能力并按结果回写 HTTP 响应。
func (h *Handler) invoke(w http.ResponseWriter, r *http.Request, name string, payload capability.Payload) {
	result := h.dispatcher.Invoke(r.Context(), name, payload)
	if capability.Succeeded(result) {
		utils.RespondJSON(w, http.StatusOK, result)
		return
	}
	if reason, ok := result["reason"].(string); ok && reason == capability.ReasonUnavailable {
		utils.RespondError(w, http.StatusServiceUnavailable, reason)
		return
	}
	message, _ := result["error"].(string)
	if message == "" {
		message = "capability invocation failed"
	}
	utils.RespondError(w, http.StatusBadRequest, message)
}

func decodePayload(r *http.Request) (capability.Payload, error) {
	payload := capability.Payload{}
	if r.Body == nil {
		return payload, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	payload["action"] = "create"
	h.invoke(w, r, "task_management", payload)
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	payload["action"] = "update"
	payload["task_id"] = chi.URLParam(r, "taskID")
	h.invoke(w, r, "task_management", payload)
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	h.invoke(w, r, "task_management", capability.Payload{
		"action":  "list",
		"user_id": r.URL.Query().Get("user_id"),
		"status":  r.URL.Query().Get("status"),
	})
}

func (h *Handler) switchWorkStatus(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	payload["action"] = "switch"
	h.invoke(w, r, "work_status", payload)
}

func (h *Handler) currentWorkStatus(w http.ResponseWriter, r *http.Request) {
	h.invoke(w, r, "work_status", capability.Payload{"action": "current"})
}

func (h *Handler) createSchedule(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	payload["action"] = "create"
	h.invoke(w, r, "schedule_management", payload)
}

func (h *Handler) listSchedules(w http.ResponseWriter, r *http.Request) {
	h.invoke(w, r, "schedule_management", capability.Payload{
		"action":     "list",
		"start_time": r.URL.Query().Get("start_time"),
		"end_time":   r.URL.Query().Get("end_time"),
	})
}

func (h *Handler) checkConflicts(w http.ResponseWriter, r *http.Request) {
	h.invoke(w, r, "schedule_management", capability.Payload{
		"action":     "check_conflicts",
		"start_time": r.URL.Query().Get("start_time"),
		"end_time":   r.URL.Query().Get("end_time"),
		"exclude_id": r.URL.Query().Get("exclude_id"),
	})
}
