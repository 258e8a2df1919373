package capability

import (
	"context"
	"strings"
)

// defaultBlockedTerms 覆盖职场场景下不宜由助手直接回应的话题。
var defaultBlockedTerms = []string{
	"机密", "内幕", "隐私",
	"竞争对手", "违规", "违法",
	"歧视", "骚扰", "个人信息",
	"密码", "账号", "薪资",
	"辞职", "裁员", "投诉", "举报",
}

// SafetyCheck 对候选回复做敏感词扫描。
// 入参 {"text"}；出参 {"is_safe": bool, "matched": string}。
type SafetyCheck struct {
	blocked []string
}

// NewSafetyCheck 创建安全检查能力。terms 为空时使用内置词表。
func NewSafetyCheck(terms []string) *SafetyCheck {
	if len(terms) == 0 {
		terms = defaultBlockedTerms
	}
	return &SafetyCheck{blocked: terms}
}

func (s *SafetyCheck) Name() string { return "safety_check" }

func (s *SafetyCheck) Invoke(_ context.Context, payload Payload) Result {
	text := StringField(payload, "text")
	for _, term := range s.blocked {
		if strings.Contains(text, term) {
			return Ok(Result{"is_safe": false, "matched": term})
		}
	}
	return Ok(Result{"is_safe": true})
}
