package services

import (
	"ReframeGo/models"
)

// MergeOutcome 为一条自动思维构造"之后"快照，并与已有的部分结果合并。
// 纯函数，幂等：已有值按键胜出，新增情绪补默认值，已删除情绪的残留键被丢弃。
func MergeOutcome(thought models.AutomaticThought, emotions []models.Emotion, existing *models.Outcome) models.Outcome {
	merged := models.Outcome{
		BeliefAfter:   ClampPercent(float64(thought.BeliefBefore)),
		EmotionsAfter: make(map[string]int, len(emotions)),
		Reflection:    "",
		IsComplete:    false,
	}
	for _, e := range emotions {
		merged.EmotionsAfter[e.ID] = ClampPercent(float64(e.IntensityBefore))
	}

	if existing == nil {
		return merged
	}

	merged.BeliefAfter = ClampPercent(float64(existing.BeliefAfter))
	merged.Reflection = existing.Reflection
	merged.IsComplete = existing.IsComplete
	for id := range merged.EmotionsAfter {
		if v, ok := existing.EmotionsAfter[id]; ok {
			merged.EmotionsAfter[id] = ClampPercent(float64(v))
		}
	}
	return merged
}

// MergeAllOutcomes 对记录里的全部自动思维重算结果快照，
// 在情绪或思维变化、以及进入结果环节时调用，保证UI不会读到未初始化的结果。
func MergeAllOutcomes(e *models.Entry) {
	merged := make(map[string]models.Outcome, len(e.AutomaticThoughts))
	for _, t := range e.AutomaticThoughts {
		var existing *models.Outcome
		if out, ok := e.OutcomesByThought[t.ID]; ok {
			existing = &out
		}
		merged[t.ID] = MergeOutcome(t, e.Emotions, existing)
	}
	e.OutcomesByThought = merged
}

// AllComplete 所有自动思维的结果均已完成才算记录完成；没有思维时不算完成
func AllComplete(thoughts []models.AutomaticThought, outcomes map[string]models.Outcome) bool {
	if len(thoughts) == 0 {
		return false
	}
	for _, t := range thoughts {
		out, ok := outcomes[t.ID]
		if !ok || !out.IsComplete {
			return false
		}
	}
	return true
}
