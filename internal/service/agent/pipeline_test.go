package agent

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/zhouzirui/yuanfang/backend/internal/capability"
	convmodel "github.com/zhouzirui/yuanfang/backend/internal/model/conversation"
	"github.com/zhouzirui/yuanfang/backend/internal/service/ai"
	"github.com/zhouzirui/yuanfang/backend/internal/store/sqlite"
)

type fakeGenerator struct {
	text      string
	err       error
	lastInput ai.GenerateInput
}

func (f *fakeGenerator) Generate(_ context.Context, input ai.GenerateInput) (string, error) {
	f.lastInput = input
	return f.text, f.err
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestDispatcher(store *sqlite.Store) *capability.Dispatcher {
	return capability.NewDispatcher(
		capability.NewEmotionAnalysis(store),
		capability.NewMemoryRecall(store),
		capability.NewSafetyCheck(nil),
		capability.NewEmotionLog(store),
	)
}

func seedUserTurn(t *testing.T, store *sqlite.Store, conversationID, content, emotion string, at time.Time) {
	t.Helper()
	err := store.InsertTurn(context.Background(), convmodel.Turn{
		ConversationID: conversationID,
		Role:           convmodel.RoleUser,
		Content:        content,
		Emotion:        emotion,
		CreatedAt:      at,
	})
	if err != nil {
		t.Fatalf("failed to seed turn: %v", err)
	}
}

func TestProcessTurnTiredMajority(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	conv, err := store.OpenConversation(ctx, "u1")
	if err != nil {
		t.Fatalf("failed to open conversation: %v", err)
	}

	base := time.Now().UTC().Add(-time.Minute)
	seedUserTurn(t, store, conv.ID, "今天加班到很晚", "tired", base)
	seedUserTurn(t, store, conv.ID, "感觉撑不住了", "tired", base.Add(time.Second))

	gen := &fakeGenerator{text: "辛苦了，早点休息吧。"}
	pipeline := NewPipeline(store, newTestDispatcher(store), gen, time.Second)

	reply, err := pipeline.ProcessTurn(ctx, "u1", "我今天很累")
	if err != nil {
		t.Fatalf("process turn failed: %v", err)
	}

	if reply.Affect.Label != "tired" {
		t.Fatalf("expected tired affect, got %q", reply.Affect.Label)
	}
	if reply.Affect.Intensity != 0.5 {
		t.Fatalf("expected intensity 0.5, got %v", reply.Affect.Intensity)
	}
	if reply.Text != "辛苦了，早点休息吧。" {
		t.Fatalf("unexpected reply text: %q", reply.Text)
	}
	if gen.lastInput.Affect.Label != "tired" {
		t.Fatalf("generator must receive the aggregated affect, got %q", gen.lastInput.Affect.Label)
	}

	turns, err := store.ListTurns(ctx, conv.ID)
	if err != nil {
		t.Fatalf("failed to list turns: %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns after commit, got %d", len(turns))
	}
	last := turns[len(turns)-1]
	if last.Role != convmodel.RoleAssistant || last.Content != reply.Text {
		t.Fatalf("assistant turn not persisted correctly: %+v", last)
	}
	user := turns[len(turns)-2]
	if user.Emotion != "tired" {
		t.Fatalf("user turn must carry the aggregated label, got %q", user.Emotion)
	}

	logs, err := store.ListAffectLogs(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("failed to list logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Emotion != "tired" || logs[0].Intensity != 0.5 {
		t.Fatalf("unexpected emotion logs: %+v", logs)
	}
}

// 落库的用户轮用的是对历史聚合出的标签，而不是对当前话语的即时归类。
func TestProcessTurnUserTurnCarriesAggregatedLabel(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	conv, err := store.OpenConversation(ctx, "u1")
	if err != nil {
		t.Fatalf("failed to open conversation: %v", err)
	}

	base := time.Now().UTC().Add(-time.Minute)
	seedUserTurn(t, store, conv.ID, "升职了太开心了", "happy", base)
	seedUserTurn(t, store, conv.ID, "今天心情不错", "happy", base.Add(time.Second))

	gen := &fakeGenerator{text: "继续保持。"}
	pipeline := NewPipeline(store, newTestDispatcher(store), gen, time.Second)

	// 这句话按关键词归类是 tired，但历史聚合是 happy。
	reply, err := pipeline.ProcessTurn(ctx, "u1", "我今天很累")
	if err != nil {
		t.Fatalf("process turn failed: %v", err)
	}
	if reply.Affect.Label != "happy" {
		t.Fatalf("expected aggregated happy affect, got %q", reply.Affect.Label)
	}

	turns, err := store.ListTurns(ctx, conv.ID)
	if err != nil {
		t.Fatalf("failed to list turns: %v", err)
	}
	user := turns[len(turns)-2]
	if user.Role != convmodel.RoleUser || user.Emotion != "happy" {
		t.Fatalf("user turn must carry the aggregated label, got %+v", user)
	}

	logs, err := store.ListAffectLogs(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("failed to list logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Emotion != "happy" {
		t.Fatalf("emotion log must carry the same aggregated label: %+v", logs)
	}
}

func TestProcessTurnUnsafeCandidateIsReplaced(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	gen := &fakeGenerator{text: "他的密码是 123456。"}
	pipeline := NewPipeline(store, newTestDispatcher(store), gen, time.Second)

	reply, err := pipeline.ProcessTurn(ctx, "u1", "帮我查一下同事的账号")
	if err != nil {
		t.Fatalf("process turn failed: %v", err)
	}

	want := redirectPrefix + safeResponses[0]
	if reply.Text != want {
		t.Fatalf("expected redirected reply %q, got %q", want, reply.Text)
	}

	// 落库的是替换后的文本，原始候选不留痕。
	turns, err := store.ListTurns(ctx, reply.ConversationID)
	if err != nil {
		t.Fatalf("failed to list turns: %v", err)
	}
	if turns[len(turns)-1].Content != want {
		t.Fatalf("persisted assistant turn must be the redirected text, got %q", turns[len(turns)-1].Content)
	}
}

func TestProcessTurnGenerationFailureApologizes(t *testing.T) {
	store := newTestStore(t)
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	pipeline := NewPipeline(store, newTestDispatcher(store), gen, time.Second)

	reply, err := pipeline.ProcessTurn(context.Background(), "u1", "你好")
	if err != nil {
		t.Fatalf("process turn failed: %v", err)
	}
	if reply.Text != apologyText {
		t.Fatalf("expected apology, got %q", reply.Text)
	}
}

func TestProcessTurnMissingCapabilitiesUsesDefaults(t *testing.T) {
	store := newTestStore(t)
	gen := &fakeGenerator{text: "好的。"}
	pipeline := NewPipeline(store, capability.NewDispatcher(), gen, time.Second)

	reply, err := pipeline.ProcessTurn(context.Background(), "u1", "你好")
	if err != nil {
		t.Fatalf("process turn failed: %v", err)
	}
	if reply.Affect.Label != "neutral" || reply.Affect.Intensity != 0.5 {
		t.Fatalf("expected neutral default affect, got %+v", reply.Affect)
	}
	if reply.Text != "好的。" {
		t.Fatalf("missing capabilities must not block the reply, got %q", reply.Text)
	}
}

// degradedStore 让提交阶段必然失败，验证回复仍然返回。
type degradedStore struct {
	*sqlite.Store
}

func (d *degradedStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return errors.New("disk full")
}

func TestProcessTurnCommitFailureStillReturnsReply(t *testing.T) {
	store := newTestStore(t)
	gen := &fakeGenerator{text: "收到。"}
	pipeline := NewPipeline(&degradedStore{store}, newTestDispatcher(store), gen, time.Second)

	reply, err := pipeline.ProcessTurn(context.Background(), "u1", "记一下这个")
	if !errors.Is(err, ErrDegradedWrite) {
		t.Fatalf("expected ErrDegradedWrite, got %v", err)
	}
	if reply == nil || reply.Text != "收到。" {
		t.Fatalf("reply must survive a failed commit, got %+v", reply)
	}
}

type failingHandler struct{ name string }

func (f failingHandler) Name() string { return f.name }
func (f failingHandler) Invoke(context.Context, capability.Payload) capability.Result {
	return capability.Fail("broken")
}

func TestProcessTurnEmotionLogFailureDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	dispatcher := capability.NewDispatcher(
		capability.NewEmotionAnalysis(store),
		capability.NewMemoryRecall(store),
		capability.NewSafetyCheck(nil),
		failingHandler{name: "emotion_log"},
	)
	gen := &fakeGenerator{text: "好的。"}
	pipeline := NewPipeline(store, dispatcher, gen, time.Second)

	reply, err := pipeline.ProcessTurn(ctx, "u1", "你好")
	if err != nil {
		t.Fatalf("emotion log failure must not abort the turn: %v", err)
	}

	turns, err := store.ListTurns(ctx, reply.ConversationID)
	if err != nil {
		t.Fatalf("failed to list turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("turns must still commit, got %d", len(turns))
	}
}

func TestProcessTurnPassesRecalledTopics(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	conv, err := store.OpenConversation(ctx, "u1")
	if err != nil {
		t.Fatalf("failed to open conversation: %v", err)
	}
	seedUserTurn(t, store, conv.ID, "上周的项目进展", "", time.Now().UTC().Add(-time.Hour))

	gen := &fakeGenerator{text: "记得呢。"}
	pipeline := NewPipeline(store, newTestDispatcher(store), gen, time.Second)

	if _, err := pipeline.ProcessTurn(ctx, "u1", "还记得我们聊过什么吗"); err != nil {
		t.Fatalf("process turn failed: %v", err)
	}
	if len(gen.lastInput.Topics) == 0 || gen.lastInput.Topics[0] != "上周的项目进展" {
		t.Fatalf("generator must receive recalled topics, got %v", gen.lastInput.Topics)
	}
}
