// Package session 管理语音会话的 WebSocket 端点。
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	convmodel "github.com/zhouzirui/yuanfang/backend/internal/model/conversation"
	"github.com/zhouzirui/yuanfang/backend/internal/service/agent"
)

// SpeechService 语音识别与合成。
type SpeechService interface {
	TranscribeBuffer(ctx context.Context, sessionID string, audio []byte) (string, error)
	SynthesizeText(ctx context.Context, sessionID, text string) ([]byte, error)
}

// TurnProcessor 对话管线。
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, userID, text string) (*agent.Reply, error)
}

type conversationStore interface {
	OpenConversation(ctx context.Context, userID string) (convmodel.Conversation, error)
	CloseConversation(ctx context.Context, conversationID string) error
}

// Handler 每个用户同一时刻只允许一条活跃会话连接。
// 读循环严格串行：一个二进制帧对应一句话，识别、管线、合成
// 顺次完成后才读下一帧。
type Handler struct {
	speech       SpeechService
	pipeline     TurnProcessor
	store        conversationStore
	upgrader     websocket.Upgrader
	pingInterval time.Duration

	mu     sync.Mutex
	active map[string]struct{}
}

// New 创建会话处理器。
func New(speech SpeechService, pipeline TurnProcessor, store conversationStore) *Handler {
	return &Handler{
		speech:   speech,
		pipeline: pipeline,
		store:    store,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		pingInterval: 54 * time.Second,
		active:       make(map[string]struct{}),
	}
}

// sessionConn 给连接加一把写锁。gorilla 的连接同一时刻只允许
// 一个写入方，ping 协程和读循环都会写帧。
type sessionConn struct {
	*websocket.Conn
	writeMu sync.Mutex
}

func (c *sessionConn) writeFrame(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.WriteMessage(messageType, data)
}

// RegisterRoutes 注册 WebSocket 路由。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{userID}", h.handleSession)
}

type textReply struct {
	Type      string  `json:"type"`
	Content   string  `json:"content"`
	Emotion   string  `json:"emotion"`
	Intensity float64 `json:"intensity"`
}

func (h *Handler) register(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.active[userID]; exists {
		return false
	}
	h.active[userID] = struct{}{}
	return true
}

func (h *Handler) unregister(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.active, userID)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "userID is required", http.StatusBadRequest)
		return
	}

	if !h.register(userID) {
		http.Error(w, "session already active for this user", http.StatusConflict)
		return
	}
	defer h.unregister(userID)

	conv, err := h.store.OpenConversation(r.Context(), userID)
	if err != nil {
		log.Printf("[websocket] failed to open conversation for %s: %v", userID, err)
		http.Error(w, "failed to open conversation", http.StatusInternalServerError)
		return
	}

	rawConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	conn := &sessionConn{Conn: rawConn}
	defer conn.Close()

	// 断开时收尾会话。请求上下文此刻已取消，teardown 用独立上下文。
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.store.CloseConversation(closeCtx, conv.ID); err != nil {
			log.Printf("[websocket] failed to close conversation %s: %v", conv.ID, err)
		}
	}()

	log.Printf("[websocket] session started user=%s conversation=%s", userID, conv.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	go h.pingLoop(ctx, conn)

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error for user %s: %v", userID, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		if messageType != websocket.BinaryMessage {
			// 文本帧留给客户端做心跳等控制用途，忽略即可。
			continue
		}

		h.handleUtterance(ctx, conn, userID, conv.ID, payload)
	}
}

// handleUtterance 处理一句话：识别、走管线、回文本帧和音频帧。
// 识别失败或空转写时本轮静默跳过。
func (h *Handler) handleUtterance(ctx context.Context, conn *sessionConn, userID, conversationID string, audio []byte) {
	transcript, err := h.speech.TranscribeBuffer(ctx, conversationID, audio)
	if err != nil {
		log.Printf("[websocket] transcription failed user=%s: %v", userID, err)
		return
	}
	if transcript == "" {
		log.Printf("[websocket] empty transcript user=%s, skipping turn", userID)
		return
	}

	// 连接中途断开时，已开始的轮次仍要完成提交，不能留下半截写入，
	// 因此管线不挂在连接的取消信号上（生成阶段自带超时）。
	reply, err := h.pipeline.ProcessTurn(context.WithoutCancel(ctx), userID, transcript)
	if err != nil && !errors.Is(err, agent.ErrDegradedWrite) {
		log.Printf("[websocket] pipeline failed user=%s: %v", userID, err)
		return
	}
	if err != nil {
		// 降级写：回复照常送出，仅记录。
		log.Printf("[websocket] degraded write user=%s: %v", userID, err)
	}

	if err := h.writeTextReply(conn, reply); err != nil {
		log.Printf("[websocket] failed to send text reply: %v", err)
		return
	}

	audioReply, err := h.speech.SynthesizeText(ctx, conversationID, reply.Text)
	if err != nil {
		log.Printf("[websocket] synthesis failed user=%s: %v", userID, err)
		return
	}
	if err := conn.writeFrame(websocket.BinaryMessage, audioReply); err != nil {
		log.Printf("[websocket] failed to send audio reply: %v", err)
	}
}

func (h *Handler) writeTextReply(conn *sessionConn, reply *agent.Reply) error {
	payload, err := json.Marshal(textReply{
		Type:      "text",
		Content:   reply.Text,
		Emotion:   reply.Affect.Label,
		Intensity: reply.Affect.Intensity,
	})
	if err != nil {
		return err
	}
	return conn.writeFrame(websocket.TextMessage, payload)
}

func (h *Handler) pingLoop(ctx context.Context, conn *sessionConn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.writeFrame(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
