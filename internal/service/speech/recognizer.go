package speech

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	speechmodel "github.com/zhouzirui/yuanfang/backend/internal/model/speech"
)

// Recognizer 讯飞流式语音识别客户端。一次 Transcribe 调用对应一次
// 完整的 WebSocket 交换：建连、按序推帧、读结果到终止帧。
type Recognizer struct {
	config *speechmodel.SpeechConfig
	dialer *websocket.Dialer
}

// NewRecognizer 创建识别客户端。
func NewRecognizer(config *speechmodel.SpeechConfig) *Recognizer {
	return &Recognizer{
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
	}
}

// Transcribe 把整段音频送去识别并返回转写文本。
// 服务端在终止帧（status 2）之前断开视为识别失败，调用方应跳过本轮。
func (r *Recognizer) Transcribe(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	signedURL, err := SignURL(r.config.ASRURL, r.config.APIKey, r.config.APISecret, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to sign ASR url: %w", err)
	}

	conn, _, err := r.dialer.DialContext(ctx, signedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ASR endpoint: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	format := req.Format
	if format == "" {
		format = r.config.Format
	}
	language := req.Language
	if language == "" {
		language = r.config.Language
	}

	connect := ConnectFrame{
		Common: CommonParams{AppID: r.config.AppID},
		Business: BusinessParams{
			Language: language,
			Domain:   r.config.Domain,
			Accent:   r.config.Accent,
		},
		Data: ConnectData{
			Status:   StatusFirstFrame,
			Format:   format,
			Encoding: r.config.Encoding,
		},
	}
	if err := conn.WriteJSON(connect); err != nil {
		return nil, fmt.Errorf("failed to send connect frame: %w", err)
	}

	// 音频帧严格按切分顺序发送，服务端按帧状态识别流边界。
	for _, frame := range BuildChunkFrames(req.AudioData, r.config.ChunkSize, format, r.config.Encoding) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := conn.WriteJSON(frame); err != nil {
			return nil, fmt.Errorf("failed to send audio frame: %w", err)
		}
	}

	text, err := r.collectTranscript(ctx, conn)
	if err != nil {
		return nil, err
	}

	if text == "" {
		log.Printf("[asr] empty transcript for session %s", req.SessionID)
	}
	return &speechmodel.ASRResponse{
		SessionID: req.SessionID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (r *Recognizer) collectTranscript(ctx context.Context, conn *websocket.Conn) (string, error) {
	var transcript strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		var frame ResultFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return "", fmt.Errorf("connection lost before final frame: %w", err)
		}
		if frame.Code != 0 {
			return "", fmt.Errorf("ASR error %d: %s", frame.Code, frame.Message)
		}

		transcript.WriteString(frame.Data.Result.Text)
		if frame.Data.Status == StatusLastFrame {
			return transcript.String(), nil
		}
	}
}

func (r *Recognizer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(r.config.Timeout)*time.Second)
}
