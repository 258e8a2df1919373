package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	affectmodel "github.com/zhouzirui/yuanfang/backend/internal/model/affect"
	"github.com/zhouzirui/yuanfang/backend/internal/service/agent"
	"github.com/zhouzirui/yuanfang/backend/internal/store/sqlite"
)

type fakeSpeech struct{}

func (fakeSpeech) TranscribeBuffer(_ context.Context, _ string, audio []byte) (string, error) {
	text := string(audio)
	if text == "fail" {
		return "", errors.New("recognition failed")
	}
	if text == "silence" {
		return "", nil
	}
	return text, nil
}

func (fakeSpeech) SynthesizeText(_ context.Context, _ string, text string) ([]byte, error) {
	return []byte("AUDIO:" + text), nil
}

type fakePipeline struct {
	degraded bool
}

func (f fakePipeline) ProcessTurn(_ context.Context, userID, text string) (*agent.Reply, error) {
	reply := &agent.Reply{
		ConversationID: "conv-" + userID,
		Text:           "回声：" + text,
		Affect:         affectmodel.Neutral(),
	}
	if f.degraded {
		return reply, agent.ErrDegradedWrite
	}
	return reply, nil
}

func newSessionServer(t *testing.T, pipeline TurnProcessor) (*httptest.Server, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	r := chi.NewRouter()
	New(fakeSpeech{}, pipeline, store).RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, store
}

func dialSession(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestUtteranceGetsTextThenAudioReply(t *testing.T) {
	server, _ := newSessionServer(t, fakePipeline{})
	conn := dialSession(t, server, "u1")

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("你好")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read text reply failed: %v", err)
	}
	if messageType != websocket.TextMessage {
		t.Fatalf("first reply must be a text frame, got type %d", messageType)
	}

	var reply textReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		t.Fatalf("invalid text reply: %v", err)
	}
	if reply.Type != "text" || reply.Content != "回声：你好" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	messageType, payload, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read audio reply failed: %v", err)
	}
	if messageType != websocket.BinaryMessage {
		t.Fatalf("second reply must be a binary frame, got type %d", messageType)
	}
	if string(payload) != "AUDIO:回声：你好" {
		t.Fatalf("unexpected audio payload: %q", payload)
	}
}

func TestRecognitionFailureSkipsTurn(t *testing.T) {
	server, _ := newSessionServer(t, fakePipeline{})
	conn := dialSession(t, server, "u1")

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("fail")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	// 紧随其后的正常话语仍然得到回复，失败的那轮没有产生任何帧。
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("第二句")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var reply textReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		t.Fatalf("invalid text reply: %v", err)
	}
	if reply.Content != "回声：第二句" {
		t.Fatalf("failed turn must be skipped silently, got %q", reply.Content)
	}
}

func TestDegradedWriteStillReplies(t *testing.T) {
	server, _ := newSessionServer(t, fakePipeline{degraded: true})
	conn := dialSession(t, server, "u1")

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("记一下")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var reply textReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		t.Fatalf("invalid text reply: %v", err)
	}
	if reply.Content != "回声：记一下" {
		t.Fatalf("degraded write must not block the reply, got %q", reply.Content)
	}
}

// ping 协程和回复写入并发进行，帧序不能乱。
func TestPingsInterleaveWithReplies(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h := New(fakeSpeech{}, fakePipeline{}, store)
	h.pingInterval = 5 * time.Millisecond
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	conn := dialSession(t, server, "u1")
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	for i := 0; i < 5; i++ {
		msg := fmt.Sprintf("第%d句", i)
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte(msg)); err != nil {
			t.Fatalf("write failed: %v", err)
		}

		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read text reply failed: %v", err)
		}
		if messageType != websocket.TextMessage {
			t.Fatalf("expected text frame, got type %d", messageType)
		}
		var reply textReply
		if err := json.Unmarshal(payload, &reply); err != nil {
			t.Fatalf("invalid text reply: %v", err)
		}
		if reply.Content != "回声："+msg {
			t.Fatalf("unexpected reply: %+v", reply)
		}

		messageType, _, err = conn.ReadMessage()
		if err != nil {
			t.Fatalf("read audio reply failed: %v", err)
		}
		if messageType != websocket.BinaryMessage {
			t.Fatalf("expected binary frame, got type %d", messageType)
		}
	}
}

func TestSecondConnectionForSameUserRejected(t *testing.T) {
	server, _ := newSessionServer(t, fakePipeline{})
	dialSession(t, server, "u1")

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/u1"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected second dial for the same user to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 conflict, got %v", resp)
	}
}

func TestDisconnectClosesConversation(t *testing.T) {
	server, store := newSessionServer(t, fakePipeline{})
	conn := dialSession(t, server, "u1")

	// 连接建立时打开了会话。
	waitFor(t, func() bool {
		conversations, err := store.ListConversations(context.Background(), "u1")
		return err == nil && len(conversations) == 1 && conversations[0].Open()
	})

	conn.Close()

	waitFor(t, func() bool {
		conversations, err := store.ListConversations(context.Background(), "u1")
		return err == nil && len(conversations) == 1 && !conversations[0].Open()
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
