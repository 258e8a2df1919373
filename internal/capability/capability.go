package capability

import "context"

// Payload 是能力调用的入参映射，Result 是出参映射。
// 约定：成功结果带 {"success": true, ...}，能力自身报告的失败带
// {"success": false, "error": <消息>}；调度器对未注册能力额外使用
// {"success": false, "reason": "capability unavailable"} 以示区分。
type (
	Payload = map[string]any
	Result  = map[string]any
)

// ReasonUnavailable 标记"能力不存在"这一调度层结果。
const ReasonUnavailable = "capability unavailable"

// Handler 是一项可按名字调用的能力。实现必须可并发调用。
type Handler interface {
	Name() string
	Invoke(ctx context.Context, payload Payload) Result
}

// Ok 构造成功结果并合并能力特有字段。
func Ok(fields Result) Result {
	result := Result{"success": true}
	for key, value := range fields {
		result[key] = value
	}
	return result
}

// Fail 构造能力自身的失败结果。
func Fail(message string) Result {
	return Result{"success": false, "error": message}
}

// Succeeded 报告一次调用结果是否成功。
func Succeeded(result Result) bool {
	ok, _ := result["success"].(bool)
	return ok
}

// StringField 从 payload 中取字符串字段，缺失或类型不符时返回空串。
func StringField(payload Payload, key string) string {
	value, _ := payload[key].(string)
	return value
}

// FloatField 从 payload 中取数值字段，兼容 int 与 float64。
func FloatField(payload Payload, key string) float64 {
	switch value := payload[key].(type) {
	case float64:
		return value
	case int:
		return float64(value)
	default:
		return 0
	}
}

// IntField 从 payload 中取整数字段。
func IntField(payload Payload, key string) int {
	switch value := payload[key].(type) {
	case int:
		return value
	case float64:
		return int(value)
	default:
		return 0
	}
}
