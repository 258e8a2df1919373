package speech

import "encoding/base64"

// 帧状态：一次识别交换里首帧 0、中间帧 1、尾帧 2。
// 音频只有一块时尾帧语义优先，直接发 2。
const (
	StatusFirstFrame    = 0
	StatusContinueFrame = 1
	StatusLastFrame     = 2
)

// DefaultChunkSize 每帧携带的音频字节数。
const DefaultChunkSize = 1280

// ConnectFrame 建连后发送的首个控制帧。
type ConnectFrame struct {
	Common   CommonParams   `json:"common"`
	Business BusinessParams `json:"business"`
	Data     ConnectData    `json:"data"`
}

type CommonParams struct {
	AppID string `json:"app_id"`
}

type BusinessParams struct {
	Language string `json:"language"`
	Domain   string `json:"domain"`
	Accent   string `json:"accent"`
}

type ConnectData struct {
	Status   int    `json:"status"`
	Format   string `json:"format"`
	Encoding string `json:"encoding"`
}

// ChunkFrame 携带一块 base64 音频的数据帧。
type ChunkFrame struct {
	Data ChunkData `json:"data"`
}

type ChunkData struct {
	Status   int    `json:"status"`
	Format   string `json:"format"`
	Encoding string `json:"encoding"`
	Audio    string `json:"audio"`
}

// ResultFrame 服务端返回的识别结果帧。
type ResultFrame struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
		Result struct {
			Text string `json:"text"`
		} `json:"result"`
	} `json:"data"`
}

// BuildChunkFrames 把整段音频切成定长帧序列。状态编号：
// 多帧时首帧 0、中间帧 1、尾帧 2；单帧直接 2；
// 零长度音频产出恰好一个空载荷的尾帧。
func BuildChunkFrames(audio []byte, chunkSize int, format, encoding string) []ChunkFrame {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	if len(audio) == 0 {
		return []ChunkFrame{{Data: ChunkData{
			Status:   StatusLastFrame,
			Format:   format,
			Encoding: encoding,
		}}}
	}

	var frames []ChunkFrame
	for offset := 0; offset < len(audio); offset += chunkSize {
		end := offset + chunkSize
		if end > len(audio) {
			end = len(audio)
		}

		status := StatusContinueFrame
		switch {
		case end == len(audio):
			status = StatusLastFrame
		case offset == 0:
			status = StatusFirstFrame
		}

		frames = append(frames, ChunkFrame{Data: ChunkData{
			Status:   status,
			Format:   format,
			Encoding: encoding,
			Audio:    base64.StdEncoding.EncodeToString(audio[offset:end]),
		}})
	}
	return frames
}
