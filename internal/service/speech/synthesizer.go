package speech

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	speechmodel "github.com/zhouzirui/yuanfang/backend/internal/model/speech"
)

// Synthesizer 讯飞流式语音合成客户端。文本一次性送出（status 2），
// 音频分帧返回，读到终止帧为止。
type Synthesizer struct {
	config *speechmodel.SpeechConfig
	dialer *websocket.Dialer
}

// NewSynthesizer 创建合成客户端。
func NewSynthesizer(config *speechmodel.SpeechConfig) *Synthesizer {
	return &Synthesizer{
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
	}
}

type ttsRequestFrame struct {
	Common   CommonParams `json:"common"`
	Business ttsBusiness  `json:"business"`
	Data     ttsText      `json:"data"`
}

type ttsBusiness struct {
	AUE    string `json:"aue"`
	VCN    string `json:"vcn"`
	Speed  int    `json:"speed"`
	Volume int    `json:"volume"`
	TTE    string `json:"tte"`
}

type ttsText struct {
	Status int    `json:"status"`
	Text   string `json:"text"`
}

type ttsResultFrame struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int    `json:"status"`
		Audio  string `json:"audio"`
	} `json:"data"`
}

// Synthesize 合成一段语音并返回完整音频。
func (s *Synthesizer) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.config.Timeout)*time.Second)
		defer cancel()
	}

	signedURL, err := SignURL(s.config.TTSURL, s.config.APIKey, s.config.APISecret, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to sign TTS url: %w", err)
	}

	conn, _, err := s.dialer.DialContext(ctx, signedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS endpoint: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	voice := req.Voice
	if voice == "" {
		voice = s.config.TTSVoice
	}
	speed := req.Speed
	if speed == 0 {
		speed = s.config.TTSSpeed
	}
	volume := req.Volume
	if volume == 0 {
		volume = s.config.TTSVolume
	}

	frame := ttsRequestFrame{
		Common: CommonParams{AppID: s.config.AppID},
		Business: ttsBusiness{
			AUE:    "lame",
			VCN:    voice,
			Speed:  speed,
			Volume: volume,
			TTE:    "UTF8",
		},
		Data: ttsText{
			Status: StatusLastFrame,
			Text:   base64.StdEncoding.EncodeToString([]byte(req.Text)),
		},
	}
	if err := conn.WriteJSON(frame); err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}

	var audio []byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var result ttsResultFrame
		if err := conn.ReadJSON(&result); err != nil {
			return nil, fmt.Errorf("connection lost before final audio frame: %w", err)
		}
		if result.Code != 0 {
			return nil, fmt.Errorf("TTS error %d: %s", result.Code, result.Message)
		}

		if result.Data.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(result.Data.Audio)
			if err != nil {
				return nil, fmt.Errorf("failed to decode audio frame: %w", err)
			}
			audio = append(audio, chunk...)
		}

		if result.Data.Status == StatusLastFrame {
			return &speechmodel.TTSResponse{
				SessionID: req.SessionID,
				AudioData: audio,
				Format:    "mp3",
				CreatedAt: time.Now().UTC(),
			}, nil
		}
	}
}
