package services

import (
	"math"
	"strings"

	"ReframeGo/models"
)

// ClampPercent 将任意数值收敛到[0,100]的整数区间，对越界和小数输入全定义
func ClampPercent(x float64) int {
	if math.IsNaN(x) || math.IsInf(x, -1) {
		return 0
	}
	if math.IsInf(x, 1) {
		return 100
	}
	v := int(math.Round(x))
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// IsRequiredTextValid 去除首尾空白后非空
func IsRequiredTextValid(text string) bool {
	return strings.TrimSpace(text) != ""
}

// NormalizeSensations 丢弃空白项并按忽略大小写去重，保持先出现的顺序
func NormalizeSensations(items []string) []string {
	seen := make(map[string]bool, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, trimmed)
	}
	return result
}

// hasLabeledEmotion 是否存在非空标签的情绪
func hasLabeledEmotion(e *models.Entry) bool {
	for _, emo := range e.Emotions {
		if IsRequiredTextValid(emo.Label) {
			return true
		}
	}
	return false
}

// hasThoughtText 是否存在非空文本的自动思维
func hasThoughtText(e *models.Entry) bool {
	for _, t := range e.AutomaticThoughts {
		if IsRequiredTextValid(t.Text) {
			return true
		}
	}
	return false
}

// CanAdvance 判断某个环节是否满足进入下一步的条件
func CanAdvance(e *models.Entry, from Section) bool {
	switch from {
	case SectionSituation:
		if e.Kind == models.UrgeEntry {
			return IsRequiredTextValid(e.SituationText) || IsRequiredTextValid(e.UrgeText)
		}
		return IsRequiredTextValid(e.SituationText)
	case SectionSensations:
		// 身体感受可以跳过
		return true
	case SectionEmotions:
		return hasLabeledEmotion(e)
	case SectionThoughts:
		return hasThoughtText(e)
	case SectionResponses, SectionValues:
		return true
	case SectionOutcome:
		return AllComplete(e.AutomaticThoughts, e.OutcomesByThought)
	}
	return false
}

// FinishCheck 完成校验结果，不通过时给出阻塞环节和提示
type FinishCheck struct {
	OK              bool
	BlockingSection Section
	Hint            string
}

// CheckFinish 保存并完成前的整体校验
func CheckFinish(e *models.Entry) FinishCheck {
	if !CanAdvance(e, SectionSituation) {
		return FinishCheck{BlockingSection: SectionSituation, Hint: "请先描述当时的情境"}
	}
	if !hasThoughtText(e) {
		return FinishCheck{BlockingSection: SectionThoughts, Hint: "请至少记录一条自动思维"}
	}
	if !AllComplete(e.AutomaticThoughts, e.OutcomesByThought) {
		return FinishCheck{BlockingSection: SectionOutcome, Hint: "请先完成每条想法的结果回顾"}
	}
	return FinishCheck{OK: true, BlockingSection: SectionOutcome}
}
