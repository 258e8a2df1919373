// Package utils HTTP 响应辅助。
package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// RespondJSON 以 JSON 写出响应体。
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[http] failed to encode response: %v", err)
	}
}

// RespondError 错误响应统一成 {"success": false, "error": message}，
// 和能力调用的失败结果同一个形状，客户端只需认一种错误体。
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
