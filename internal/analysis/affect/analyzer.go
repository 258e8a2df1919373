package affect

import (
	"strings"

	affectmodel "github.com/zhouzirui/yuanfang/backend/internal/model/affect"
)

// 工作场景下的情绪标签。标签最终写入 turns.emotion 与情绪日志，
// 因此保持小写英文便于统计。
const (
	Neutral = "neutral"
	Happy   = "happy"
	Sad     = "sad"
	Angry   = "angry"
	Tired   = "tired"
	Anxious = "anxious"
)

var keywordBuckets = map[string][]string{
	Happy: {
		"开心", "高兴", "喜悦", "快乐", "太好了", "太棒了", "真棒", "哈哈", "顺利",
		"great", "thanks", "thank you", "满意", "好耶", "搞定了",
	},
	Sad: {
		"难过", "伤心", "失落", "沮丧", "悲伤", "哭", "委屈", "低落", "失望",
		"sad", "cry", "upset", "心碎",
	},
	Angry: {
		"生气", "愤怒", "火大", "气死", "烦死", "受够了", "气愤", "抓狂",
		"angry", "furious", "annoyed", "气炸",
	},
	Tired: {
		"累", "疲惫", "疲劳", "困", "撑不住", "加班", "熬夜", "乏",
		"tired", "exhausted", "burnout",
	},
	Anxious: {
		"焦虑", "紧张", "担心", "不安", "害怕", "压力", "来不及", "赶不上",
		"anxious", "worried", "nervous", "stressed", "deadline",
	},
}

// Classify 根据关键词对单条话语做情绪归类，无命中时返回 Neutral。
// 多个桶命中时取得分最高者，得分相同按标签字典序保证确定性。
func Classify(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Neutral
	}

	bestLabel := Neutral
	bestScore := 0
	for _, label := range []string{Angry, Anxious, Happy, Sad, Tired} {
		score := 0
		for _, word := range keywordBuckets[label] {
			if strings.Contains(normalized, strings.ToLower(word)) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestLabel = label
		}
	}

	return bestLabel
}

// Aggregate 对最近若干轮次的情绪标签做多数投票。
// 强度 = 不同标签数 / 有标签轮次数：标签越统一强度越低波动，
// 全部一致时为 1/n。无标签时返回中性兜底信号。
func Aggregate(labels []string) affectmodel.Signal {
	counted := make([]string, 0, len(labels))
	for _, label := range labels {
		if strings.TrimSpace(label) != "" {
			counted = append(counted, label)
		}
	}
	if len(counted) == 0 {
		return affectmodel.Neutral()
	}

	counts := make(map[string]int, len(counted))
	majority := counted[0]
	for _, label := range counted {
		counts[label]++
		// 平票时保留先出现的标签，保证结果确定。
		if counts[label] > counts[majority] {
			majority = label
		}
	}

	return affectmodel.Signal{
		Label:     majority,
		Intensity: float64(len(counts)) / float64(len(counted)),
	}
}
