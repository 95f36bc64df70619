package services

import (
	"ReframeGo/models"
)

// Section 向导环节，严格有序
type Section int

const (
	SectionSituation Section = iota
	SectionSensations
	SectionEmotions
	SectionThoughts
	SectionResponses
	SectionValues // 仅思维流程启用，位于结果环节之前
	SectionOutcome
)

func (s Section) String() string {
	switch s {
	case SectionSituation:
		return "situation"
	case SectionSensations:
		return "sensations"
	case SectionEmotions:
		return "emotions"
	case SectionThoughts:
		return "automaticThoughts"
	case SectionResponses:
		return "adaptiveResponses"
	case SectionValues:
		return "values"
	case SectionOutcome:
		return "outcome"
	}
	return "unknown"
}

// RevealState 渐进式展开状态：单调递增的高水位，已展开的环节不会被自动隐藏
type RevealState struct {
	max        Section
	withValues bool
}

// NewRevealState 创建展开状态，withValues控制是否启用价值观环节
func NewRevealState(withValues bool) *RevealState {
	return &RevealState{max: SectionSituation, withValues: withValues}
}

// Reveal 展开到指定环节，低于当前高水位时为空操作
func (r *RevealState) Reveal(s Section) {
	if s == SectionValues && !r.withValues {
		s = SectionOutcome
	}
	if s > r.max {
		r.max = s
	}
}

// IsVisible 环节是否已展开
func (r *RevealState) IsVisible(s Section) bool {
	if s == SectionValues && !r.withValues {
		return false
	}
	return s <= r.max
}

// Visible 返回当前全部已展开的环节，按顺序
func (r *RevealState) Visible() []Section {
	sections := make([]Section, 0, int(r.max)+1)
	for s := SectionSituation; s <= r.max; s++ {
		if s == SectionValues && !r.withValues {
			continue
		}
		sections = append(sections, s)
	}
	return sections
}

// InitialSection 加载已有记录时，从内容最丰富的环节向前推断初始展开位置。
// 中间环节即使为空也会被一并展开（例如情绪有内容时身体感受为空也展开）。
func InitialSection(e *models.Entry) Section {
	if len(e.OutcomesByThought) > 0 {
		for _, out := range e.OutcomesByThought {
			if out.IsComplete || IsRequiredTextValid(out.Reflection) {
				return SectionOutcome
			}
		}
	}
	for _, resp := range e.AdaptiveResponses {
		for _, key := range []models.PromptKey{
			models.PromptEvidenceFor, models.PromptEvidenceAgainst,
			models.PromptBalancedView, models.PromptFriendAdvice,
		} {
			if IsRequiredTextValid(resp.Get(key).Text) {
				return SectionResponses
			}
		}
	}
	if hasThoughtText(e) {
		return SectionThoughts
	}
	if hasLabeledEmotion(e) {
		return SectionEmotions
	}
	for _, s := range e.Sensations {
		if IsRequiredTextValid(s) {
			return SectionSensations
		}
	}
	return SectionSituation
}
