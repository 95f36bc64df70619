package models

import (
	"fmt"
	"time"
)

// StartDraftRequest 新建草稿请求
type StartDraftRequest struct {
	Kind string `json:"kind"` // thought, urge，默认thought
}

func (r *StartDraftRequest) EntryKind() (EntryKind, error) {
	switch r.Kind {
	case "", string(ThoughtEntry):
		return ThoughtEntry, nil
	case string(UrgeEntry):
		return UrgeEntry, nil
	}
	return "", fmt.Errorf("invalid kind, must be one of: thought, urge")
}

// UpdateTextRequest 单个文本字段更新请求（情境描述、冲动描述）
type UpdateTextRequest struct {
	Text string `json:"text"`
}

// UpdateSensationsRequest 身体感受更新请求
type UpdateSensationsRequest struct {
	Sensations []string `json:"sensations"`
}

// EmotionInput 情绪条目输入
type EmotionInput struct {
	ID              string `json:"id"`
	Label           string `json:"label"`
	IntensityBefore int    `json:"intensityBefore"`
}

// UpdateEmotionsRequest 情绪列表更新请求
type UpdateEmotionsRequest struct {
	Emotions []EmotionInput `json:"emotions"`
}

// ThoughtInput 自动思维条目输入
type ThoughtInput struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	BeliefBefore int    `json:"beliefBefore"`
}

// UpdateThoughtsRequest 自动思维列表更新请求
type UpdateThoughtsRequest struct {
	Thoughts []ThoughtInput `json:"thoughts"`
}

// UpdateAdaptiveResponseRequest 适应性回应更新请求
type UpdateAdaptiveResponseRequest struct {
	Key    string `json:"key" binding:"required"` // evidence_for, evidence_against, balanced_view, friend_advice
	Text   string `json:"text"`
	Belief int    `json:"belief"`
}

// UpdateOutcomeRequest 结果快照更新请求，字段均为可选的局部更新
type UpdateOutcomeRequest struct {
	BeliefAfter   *int           `json:"beliefAfter"`
	EmotionsAfter map[string]int `json:"emotionsAfter"`
	Reflection    *string        `json:"reflection"`
	IsComplete    *bool          `json:"isComplete"`
}

// ReframeRequest AI重构生成请求
type ReframeRequest struct {
	Depth           string `json:"depth"` // shallow, deep，默认shallow
	ReplaceExisting bool   `json:"replaceExisting"`
}

// RedeemRequest 兑换码请求
type RedeemRequest struct {
	Code string `json:"code" binding:"required"`
}

// SyncEntryRequest 记录同步请求结构体（客户端本地优先，按lastModified做最后写入胜出）
type SyncEntryRequest struct {
	ID                string                      `json:"id" binding:"required"`
	Kind              string                      `json:"kind"`
	SituationText     string                      `json:"situationText"`
	UrgeText          string                      `json:"urgeText"`
	Sensations        []string                    `json:"sensations"`
	Emotions          []Emotion                   `json:"emotions"`
	AutomaticThoughts []AutomaticThought          `json:"automaticThoughts"`
	AdaptiveResponses map[string]AdaptiveResponse `json:"adaptiveResponses"`
	OutcomesByThought map[string]Outcome          `json:"outcomesByThought"`
	CreatedAt         time.Time                   `json:"createdAt"`
	LastModified      time.Time                   `json:"lastModified"`
}

// 添加时区转换方法
func (r *SyncEntryRequest) ConvertToUTC() {
	r.CreatedAt = r.CreatedAt.UTC()
	r.LastModified = r.LastModified.UTC()
}
