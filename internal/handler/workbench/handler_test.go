package workbench

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/yuanfang/backend/internal/capability"
	"github.com/zhouzirui/yuanfang/backend/internal/store/sqlite"
)

func newTestServer(t *testing.T, dispatcher *capability.Dispatcher) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	New(dispatcher).RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func fullDispatcher(t *testing.T) *capability.Dispatcher {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return capability.NewDispatcher(
		capability.NewTaskManagement(store),
		capability.NewWorkStatus(store),
		capability.NewScheduleManagement(store),
	)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	return body
}

func TestCreateAndListTasks(t *testing.T) {
	server := newTestServer(t, fullDispatcher(t))

	resp, err := http.Post(server.URL+"/tasks", "application/json",
		strings.NewReader(`{"user_id":"u1","title":"写周报","priority":4}`))
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	created := decodeBody(t, resp)
	if created["success"] != true {
		t.Fatalf("unexpected create result: %v", created)
	}

	resp, err = http.Get(server.URL + "/tasks?user_id=u1")
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	listed := decodeBody(t, resp)
	if listed["count"].(float64) != 1 {
		t.Fatalf("expected one task, got %v", listed)
	}
}

func TestCreateTaskValidationError(t *testing.T) {
	server := newTestServer(t, fullDispatcher(t))

	resp, err := http.Post(server.URL+"/tasks", "application/json",
		strings.NewReader(`{"user_id":"u1"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing title, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnavailableCapabilityReturns503(t *testing.T) {
	server := newTestServer(t, capability.NewDispatcher())

	resp, err := http.Get(server.URL + "/work-status")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for missing capability, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["error"] != capability.ReasonUnavailable {
		t.Fatalf("unexpected body: %v", body)
	}
	// 错误体和能力失败结果同形，带 success 字段。
	if body["success"] != false {
		t.Fatalf("error body must carry success=false, got %v", body)
	}
}

func TestWorkStatusRoundTrip(t *testing.T) {
	server := newTestServer(t, fullDispatcher(t))

	resp, err := http.Post(server.URL+"/work-status", "application/json",
		strings.NewReader(`{"status":"coding","description":"修 bug"}`))
	if err != nil {
		t.Fatalf("switch request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(server.URL + "/work-status")
	if err != nil {
		t.Fatalf("current request failed: %v", err)
	}
	body := decodeBody(t, resp)
	status, ok := body["status"].(map[string]any)
	if !ok || status["status"] != "coding" {
		t.Fatalf("unexpected current status: %v", body)
	}
}

func TestScheduleConflictQuery(t *testing.T) {
	server := newTestServer(t, fullDispatcher(t))

	resp, err := http.Post(server.URL+"/schedules", "application/json",
		strings.NewReader(`{"title":"晨会","start_time":"2026-03-02T09:00:00Z","end_time":"2026-03-02T10:00:00Z"}`))
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(server.URL + "/schedules/conflicts?start_time=2026-03-02T09:30:00Z&end_time=2026-03-02T10:30:00Z")
	if err != nil {
		t.Fatalf("conflict request failed: %v", err)
	}
	body := decodeBody(t, resp)
	if body["has_conflict"] != true {
		t.Fatalf("expected conflict, got %v", body)
	}
}
