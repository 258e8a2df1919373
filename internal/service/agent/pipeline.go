// Package agent 实现按轮推进的对话管线。
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/yuanfang/backend/internal/capability"
	affectmodel "github.com/zhouzirui/yuanfang/backend/internal/model/affect"
	convmodel "github.com/zhouzirui/yuanfang/backend/internal/model/conversation"
	"github.com/zhouzirui/yuanfang/backend/internal/service/ai"
)

// ErrDegradedWrite 表示回复已生成但本轮落库失败。
// 调用方应照常把回复送回用户，并记录该降级。
var ErrDegradedWrite = errors.New("turn persisted with degraded write")

// 生成失败时的固定致歉回复。
const apologyText = "抱歉，我这边出了点小状况，请稍后再说一次好吗？"

// 安全检查未通过时的固定改写：前缀 + 安全回复表的第一项。
// 始终取第一项，不做随机，保证同样输入得到同样输出。
const redirectPrefix = "对不起，让我换个方式说。"

var safeResponses = []string{
	"这个问题可能涉及一些敏感信息，建议您直接咨询相关部门。",
	"我们聊点别的吧，工作上有什么我能帮忙的？",
	"这方面我不太方便展开，您可以问问更合适的同事。",
}

// Reply 一轮对话的输出。
type Reply struct {
	ConversationID string
	Text           string
	Affect         affectmodel.Signal
}

// Generator 回复生成器。
type Generator interface {
	Generate(ctx context.Context, input ai.GenerateInput) (string, error)
}

type pipelineStore interface {
	OpenConversation(ctx context.Context, userID string) (convmodel.Conversation, error)
	InsertTurn(ctx context.Context, turn convmodel.Turn) error
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]convmodel.Turn, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Pipeline 串起一轮对话的全部阶段：情绪分析、记忆回忆、生成、
// 安全检查、落库。能力缺席或失败一律走默认值，只有会话解析
// 失败才终止本轮。
type Pipeline struct {
	store      pipelineStore
	dispatcher *capability.Dispatcher
	generator  Generator
	genTimeout time.Duration

	// 同一用户的轮次严格串行，避免两轮交错写同一会话。
	mu       sync.Mutex
	subjects map[string]*sync.Mutex
}

// NewPipeline 创建对话管线。genTimeout <= 0 时默认 30 秒。
func NewPipeline(store pipelineStore, dispatcher *capability.Dispatcher, generator Generator, genTimeout time.Duration) *Pipeline {
	if genTimeout <= 0 {
		genTimeout = 30 * time.Second
	}
	return &Pipeline{
		store:      store,
		dispatcher: dispatcher,
		generator:  generator,
		genTimeout: genTimeout,
		subjects:   make(map[string]*sync.Mutex),
	}
}

func (p *Pipeline) subjectLock(userID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.subjects[userID]
	if !ok {
		lock = &sync.Mutex{}
		p.subjects[userID] = lock
	}
	return lock
}

// ProcessTurn 处理用户的一句话并产出回复。
// 返回 ErrDegradedWrite 时 Reply 依然有效，只是本轮没有落库。
func (p *Pipeline) ProcessTurn(ctx context.Context, userID, text string) (*Reply, error) {
	lock := p.subjectLock(userID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := p.store.OpenConversation(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve conversation: %w", err)
	}

	// 情绪分析覆盖的是本轮之前的历史，当前这句话还未入库。
	signal := p.analyzeAffect(ctx, conv.ID)

	// 用户轮记录聚合出的情绪标签，和回复、情绪日志用同一个信号。
	userTurn := convmodel.Turn{
		ConversationID: conv.ID,
		Role:           convmodel.RoleUser,
		Content:        text,
		Emotion:        signal.Label,
		CreatedAt:      time.Now().UTC(),
	}

	topics := p.recallTopics(ctx, userID)
	history := p.loadHistory(ctx, conv.ID)

	responseText := p.generate(ctx, ai.GenerateInput{
		SessionID: conv.ID,
		Query:     text,
		History:   history,
		Topics:    topics,
		Affect:    signal,
	})

	responseText = p.applySafetyCheck(ctx, responseText)

	assistantTurn := convmodel.Turn{
		ConversationID: conv.ID,
		Role:           convmodel.RoleAssistant,
		Content:        responseText,
		CreatedAt:      time.Now().UTC(),
	}

	reply := &Reply{
		ConversationID: conv.ID,
		Text:           responseText,
		Affect:         signal,
	}

	err = p.store.RunInTx(ctx, func(txCtx context.Context) error {
		if err := p.store.InsertTurn(txCtx, userTurn); err != nil {
			return err
		}
		if err := p.store.InsertTurn(txCtx, assistantTurn); err != nil {
			return err
		}
		// 情绪日志挂在同一事务里；能力失败只记日志，不拖垮本轮。
		logResult := p.dispatcher.Invoke(txCtx, "emotion_log", capability.Payload{
			"user_id":   userID,
			"emotion":   signal.Label,
			"intensity": signal.Intensity,
			"context":   text,
		})
		if !capability.Succeeded(logResult) {
			log.Printf("[pipeline] emotion log skipped for user %s: %v", userID, logResult)
		}
		return nil
	})
	if err != nil {
		log.Printf("[pipeline] commit failed for conversation %s: %v", conv.ID, err)
		return reply, fmt.Errorf("%w: %v", ErrDegradedWrite, err)
	}

	return reply, nil
}

func (p *Pipeline) analyzeAffect(ctx context.Context, conversationID string) affectmodel.Signal {
	result := p.dispatcher.Invoke(ctx, "emotion_analysis", capability.Payload{
		"conversation_id": conversationID,
	})
	if !capability.Succeeded(result) {
		log.Printf("[pipeline] emotion analysis unavailable, using neutral: %v", result)
		return affectmodel.Neutral()
	}

	label, _ := result["emotion"].(string)
	if label == "" {
		return affectmodel.Neutral()
	}
	intensity, ok := result["intensity"].(float64)
	if !ok {
		intensity = affectmodel.Neutral().Intensity
	}
	return affectmodel.Signal{Label: label, Intensity: intensity}
}

func (p *Pipeline) recallTopics(ctx context.Context, userID string) []string {
	result := p.dispatcher.Invoke(ctx, "memory_recall", capability.Payload{"user_id": userID})
	if !capability.Succeeded(result) {
		log.Printf("[pipeline] memory recall unavailable: %v", result)
		return nil
	}

	switch topics := result["topics"].(type) {
	case []string:
		return topics
	case []any:
		out := make([]string, 0, len(topics))
		for _, topic := range topics {
			if s, ok := topic.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (p *Pipeline) loadHistory(ctx context.Context, conversationID string) []convmodel.Turn {
	turns, err := p.store.RecentTurns(ctx, conversationID, 10)
	if err != nil {
		log.Printf("[pipeline] failed to load history: %v", err)
		return nil
	}
	// RecentTurns 按时间倒序返回，生成链需要正序历史。
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns
}

func (p *Pipeline) generate(ctx context.Context, input ai.GenerateInput) string {
	genCtx, cancel := context.WithTimeout(ctx, p.genTimeout)
	defer cancel()

	text, err := p.generator.Generate(genCtx, input)
	if err != nil {
		log.Printf("[pipeline] generation failed for session %s: %v", input.SessionID, err)
		return apologyText
	}
	return text
}

func (p *Pipeline) applySafetyCheck(ctx context.Context, text string) string {
	result := p.dispatcher.Invoke(ctx, "safety_check", capability.Payload{"text": text})
	if !capability.Succeeded(result) {
		// 安全检查缺席视为通过，不能因此哑掉整条管线。
		return text
	}
	if isSafe, ok := result["is_safe"].(bool); ok && !isSafe {
		return redirectPrefix + safeResponses[0]
	}
	return text
}
