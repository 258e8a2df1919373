package affect

import "testing"

func TestClassifyTiredUtterance(t *testing.T) {
	if got := Classify("我今天很累"); got != Tired {
		t.Fatalf("expected tired, got %s", got)
	}
}

func TestClassifyEmptyUtteranceIsNeutral(t *testing.T) {
	if got := Classify("   "); got != Neutral {
		t.Fatalf("expected neutral, got %s", got)
	}
}

func TestAggregateSingleLabel(t *testing.T) {
	signal := Aggregate([]string{"tired", "tired"})
	if signal.Label != "tired" {
		t.Fatalf("expected tired, got %s", signal.Label)
	}
	// 1 个不同标签 / 2 个有标签轮次
	if signal.Intensity != 0.5 {
		t.Fatalf("expected intensity 0.5, got %f", signal.Intensity)
	}
}

func TestAggregateMajorityVote(t *testing.T) {
	signal := Aggregate([]string{"tired", "happy", "tired"})
	if signal.Label != "tired" {
		t.Fatalf("expected tired majority, got %s", signal.Label)
	}
	if want := 2.0 / 3.0; signal.Intensity != want {
		t.Fatalf("expected intensity %f, got %f", want, signal.Intensity)
	}
}

func TestAggregateNoLabelsFallsBackToNeutral(t *testing.T) {
	signal := Aggregate([]string{"", "  "})
	if signal.Label != "neutral" || signal.Intensity != 0.5 {
		t.Fatalf("expected neutral/0.5 fallback, got %s/%f", signal.Label, signal.Intensity)
	}
}

func TestAggregateTieKeepsFirstSeen(t *testing.T) {
	signal := Aggregate([]string{"sad", "tired"})
	if signal.Label != "sad" {
		t.Fatalf("expected first-seen label on tie, got %s", signal.Label)
	}
	if signal.Intensity != 1.0 {
		t.Fatalf("expected intensity 1.0, got %f", signal.Intensity)
	}
}
