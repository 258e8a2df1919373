package capability

import (
	"context"
	"fmt"
)

type knowledgeQuerier interface {
	Query(ctx context.Context, question string) (string, error)
}

// KnowledgeSearch 查询远端知识库。该能力只在配置了知识库 agent 时
// 注册，未注册时调用方会拿到调度器的 unavailable 结果。
// 入参 {"query"}；出参 {"answer"}。
type KnowledgeSearch struct {
	client knowledgeQuerier
}

// NewKnowledgeSearch 创建知识检索能力。
func NewKnowledgeSearch(client knowledgeQuerier) *KnowledgeSearch {
	return &KnowledgeSearch{client: client}
}

func (k *KnowledgeSearch) Name() string { return "knowledge_search" }

func (k *KnowledgeSearch) Invoke(ctx context.Context, payload Payload) Result {
	query := StringField(payload, "query")
	if query == "" {
		return Fail("query is required")
	}

	answer, err := k.client.Query(ctx, query)
	if err != nil {
		return Fail(fmt.Sprintf("knowledge query failed: %v", err))
	}
	return Ok(Result{"answer": answer})
}
