package speech

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func decodeFrames(t *testing.T, frames []ChunkFrame) []byte {
	t.Helper()
	var out []byte
	for _, frame := range frames {
		chunk, err := base64.StdEncoding.DecodeString(frame.Data.Audio)
		if err != nil {
			t.Fatalf("frame audio is not valid base64: %v", err)
		}
		out = append(out, chunk...)
	}
	return out
}

func TestBuildChunkFramesStatuses(t *testing.T) {
	audio := make([]byte, DefaultChunkSize*2+100)
	for i := range audio {
		audio[i] = byte(i)
	}

	frames := BuildChunkFrames(audio, DefaultChunkSize, "audio/L16;rate=16000", "raw")
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}

	var first, last, cont int
	for _, frame := range frames {
		switch frame.Data.Status {
		case StatusFirstFrame:
			first++
		case StatusContinueFrame:
			cont++
		case StatusLastFrame:
			last++
		default:
			t.Fatalf("unexpected status %d", frame.Data.Status)
		}
	}
	if first != 1 || last != 1 || cont != 1 {
		t.Fatalf("expected exactly one first/last frame, got first=%d cont=%d last=%d", first, cont, last)
	}
	if frames[0].Data.Status != StatusFirstFrame || frames[2].Data.Status != StatusLastFrame {
		t.Fatal("first and last statuses must sit at the sequence edges")
	}

	if !bytes.Equal(decodeFrames(t, frames), audio) {
		t.Fatal("decoded concatenation must reproduce the input audio")
	}
}

func TestBuildChunkFramesSingleChunkIsLast(t *testing.T) {
	frames := BuildChunkFrames([]byte("short"), DefaultChunkSize, "audio/L16;rate=16000", "raw")
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Data.Status != StatusLastFrame {
		t.Fatalf("single chunk must carry last-frame status, got %d", frames[0].Data.Status)
	}
}

func TestBuildChunkFramesEmptyAudio(t *testing.T) {
	frames := BuildChunkFrames(nil, DefaultChunkSize, "audio/L16;rate=16000", "raw")
	if len(frames) != 1 {
		t.Fatalf("expected exactly 1 frame for empty audio, got %d", len(frames))
	}
	if frames[0].Data.Status != StatusLastFrame || frames[0].Data.Audio != "" {
		t.Fatalf("empty audio must send one empty last frame, got %+v", frames[0].Data)
	}
}

func TestBuildChunkFramesExactMultiple(t *testing.T) {
	audio := make([]byte, DefaultChunkSize*2)
	frames := BuildChunkFrames(audio, DefaultChunkSize, "audio/L16;rate=16000", "raw")
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Data.Status != StatusFirstFrame || frames[1].Data.Status != StatusLastFrame {
		t.Fatalf("unexpected statuses: %d, %d", frames[0].Data.Status, frames[1].Data.Status)
	}
	if !bytes.Equal(decodeFrames(t, frames), audio) {
		t.Fatal("decoded concatenation must reproduce the input audio")
	}
}
