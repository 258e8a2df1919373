package speech

// SpeechConfig 讯飞开放平台语音服务配置。
// ASR 与 TTS 共用同一组鉴权凭证（AppID/APIKey/APISecret），
// 握手 URL 由 HMAC-SHA256 签名生成。
type SpeechConfig struct {
	AppID     string `json:"appId"`
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`

	// ASR 配置
	ASRURL    string `json:"asrUrl"`
	Language  string `json:"language"`  // zh_cn
	Domain    string `json:"domain"`    // iat
	Accent    string `json:"accent"`    // mandarin
	Format    string `json:"format"`    // audio/L16;rate=16000
	Encoding  string `json:"encoding"`  // raw
	ChunkSize int    `json:"chunkSize"` // 每帧音频字节数，默认 1280

	// TTS 配置
	TTSURL    string `json:"ttsUrl"`
	TTSVoice  string `json:"ttsVoice"`
	TTSSpeed  int    `json:"ttsSpeed"`  // 0-100
	TTSVolume int    `json:"ttsVolume"` // 0-100

	// 通用配置
	Timeout int `json:"timeout"` // seconds
}
