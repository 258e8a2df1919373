package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	speechmodel "github.com/zhouzirui/yuanfang/backend/internal/model/speech"
)

func newTTSServer(t *testing.T, chunks [][]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var req ttsRequestFrame
		if err := conn.ReadJSON(&req); err != nil {
			t.Errorf("failed to read TTS request: %v", err)
			return
		}
		if req.Data.Status != StatusLastFrame {
			t.Errorf("text frame must carry last-frame status, got %d", req.Data.Status)
		}
		if _, err := base64.StdEncoding.DecodeString(req.Data.Text); err != nil {
			t.Errorf("text must be base64 encoded: %v", err)
		}

		for i, chunk := range chunks {
			status := StatusContinueFrame
			if i == len(chunks)-1 {
				status = StatusLastFrame
			}
			frame := map[string]any{
				"code": 0,
				"data": map[string]any{
					"status": status,
					"audio":  base64.StdEncoding.EncodeToString(chunk),
				},
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}))
}

func TestSynthesizeAccumulatesAudio(t *testing.T) {
	chunks := [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cc")}
	server := newTTSServer(t, chunks)
	defer server.Close()

	config := testConfig(server.URL)
	config.TTSURL = "ws" + strings.TrimPrefix(server.URL, "http")
	config.TTSVoice = "xiaoyan"

	synth := NewSynthesizer(config)
	resp, err := synth.Synthesize(context.Background(), &speechmodel.TTSRequest{
		SessionID: "s1",
		Text:      "你好，元芳。",
	})
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if !bytes.Equal(resp.AudioData, []byte("aaaabbbbcc")) {
		t.Fatalf("unexpected audio: %q", resp.AudioData)
	}
	if resp.Format != "mp3" {
		t.Fatalf("unexpected format %q", resp.Format)
	}
}
