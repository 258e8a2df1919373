// Package speech 对接讯飞开放平台的语音识别与合成。
package speech

import (
	"context"
	"fmt"

	speechmodel "github.com/zhouzirui/yuanfang/backend/internal/model/speech"
)

// Service 聚合识别与合成两个客户端，供会话层按字节缓冲调用。
type Service struct {
	recognizer  *Recognizer
	synthesizer *Synthesizer
}

// NewService 创建语音服务。
func NewService(config *speechmodel.SpeechConfig) *Service {
	return &Service{
		recognizer:  NewRecognizer(config),
		synthesizer: NewSynthesizer(config),
	}
}

// TranscribeBuffer 识别一整段音频，返回转写文本。
func (s *Service) TranscribeBuffer(ctx context.Context, sessionID string, audio []byte) (string, error) {
	resp, err := s.recognizer.Transcribe(ctx, &speechmodel.ASRRequest{
		SessionID: sessionID,
		AudioData: audio,
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return resp.Text, nil
}

// SynthesizeText 合成一段回复语音，返回完整音频字节。
func (s *Service) SynthesizeText(ctx context.Context, sessionID, text string) ([]byte, error) {
	resp, err := s.synthesizer.Synthesize(ctx, &speechmodel.TTSRequest{
		SessionID: sessionID,
		Text:      text,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}
	return resp.AudioData, nil
}
