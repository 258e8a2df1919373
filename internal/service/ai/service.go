// Package ai 封装基于 eino 的回复生成链路。
package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	analysis "github.com/zhouzirui/yuanfang/backend/internal/analysis/affect"
	"github.com/zhouzirui/yuanfang/backend/internal/config"
	affectmodel "github.com/zhouzirui/yuanfang/backend/internal/model/affect"
	convmodel "github.com/zhouzirui/yuanfang/backend/internal/model/conversation"
)

const basePersona = `你是"元芳"，一位温暖、可靠的数字员工伙伴。
你陪伴用户处理日常工作，倾听他们的情绪，用自然、简洁的中文口语回应。
不要使用列表或标题，像同事间聊天一样说话，每次回复控制在三句话以内。`

// historyLimit 带入生成上下文的历史轮次上限。
const historyLimit = 10

// GenerateInput 一次回复生成所需的上下文。
type GenerateInput struct {
	SessionID string
	Query     string
	History   []convmodel.Turn
	Topics    []string
	Affect    affectmodel.Signal
}

// Service 持有编译好的 eino 生成链。
type Service struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewService 构建提示模板 + 聊天模型的两段链并编译。
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chain: runnable}, nil
}

// Generate 生成一条回复文本。
func (s *Service) Generate(ctx context.Context, input GenerateInput) (string, error) {
	response, err := s.chain.Invoke(ctx, map[string]any{
		"system":  buildSystemPrompt(input),
		"history": buildHistoryMessages(input.History),
		"query":   input.Query,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	log.Printf("[ai] generated response for session=%s, length=%d", input.SessionID, len(response.Content))
	return response.Content, nil
}

func buildSystemPrompt(input GenerateInput) string {
	var builder strings.Builder
	builder.WriteString(basePersona)

	if desc := describeAffect(input.Affect.Label); desc != "" {
		builder.WriteString("\n\n用户当前情绪：")
		builder.WriteString(desc)
		builder.WriteString(fmt.Sprintf("强度约 %.1f。请优先照顾这一情绪。", input.Affect.Intensity))
	}

	if len(input.Topics) > 0 {
		// 只带最近三个话题，避免提示膨胀。
		topics := input.Topics
		if len(topics) > 3 {
			topics = topics[len(topics)-3:]
		}
		builder.WriteString("\n最近聊过的话题：")
		builder.WriteString(strings.Join(topics, "；"))
	}

	return builder.String()
}

func buildHistoryMessages(turns []convmodel.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	start := 0
	if len(turns) > historyLimit {
		start = len(turns) - historyLimit
	}

	history := make([]*schema.Message, 0, len(turns)-start)
	for _, turn := range turns[start:] {
		switch turn.Role {
		case convmodel.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case convmodel.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}

func describeAffect(label string) string {
	switch label {
	case analysis.Happy:
		return "积极、愉快，可以保持轻快的语气。"
	case analysis.Sad:
		return "低落或伤感，需要温柔安慰与理解。"
	case analysis.Angry:
		return "不满或烦躁，需要稳重、耐心地回应。"
	case analysis.Tired:
		return "疲惫、精力不足，应体贴地建议休息，不催促任何事。"
	case analysis.Anxious:
		return "焦虑或有压力，应先安抚情绪再谈事情。"
	case analysis.Neutral:
		return "平和，保持自然、礼貌的语气即可。"
	default:
		return ""
	}
}
