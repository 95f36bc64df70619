package models

import (
	"fmt"
	"time"
)

// EntryKind 记录类型：思维记录或冲动记录
type EntryKind string

const (
	ThoughtEntry EntryKind = "thought"
	UrgeEntry    EntryKind = "urge"
)

// Emotion 情绪条目，ID在记录内唯一且稳定，供结果快照引用
type Emotion struct {
	ID              string `json:"id"`
	Label           string `json:"label"`
	IntensityBefore int    `json:"intensityBefore"` // 0-100
	IntensityAfter  *int   `json:"intensityAfter,omitempty"`
}

// AutomaticThought 自动思维条目
type AutomaticThought struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	BeliefBefore int    `json:"beliefBefore"` // 0-100
}

// PromptKey 适应性回应的固定四个提问，封闭枚举，非法键不可表示
type PromptKey string

const (
	PromptEvidenceFor     PromptKey = "evidence_for"
	PromptEvidenceAgainst PromptKey = "evidence_against"
	PromptBalancedView    PromptKey = "balanced_view"
	PromptFriendAdvice    PromptKey = "friend_advice"
)

// ParsePromptKey 解析提问键，非法值返回错误
func ParsePromptKey(s string) (PromptKey, error) {
	switch PromptKey(s) {
	case PromptEvidenceFor, PromptEvidenceAgainst, PromptBalancedView, PromptFriendAdvice:
		return PromptKey(s), nil
	}
	return "", fmt.Errorf("无效的提问键: %q", s)
}

// PromptAnswer 单个提问的回答及其相信程度
type PromptAnswer struct {
	Text   string `json:"text"`
	Belief int    `json:"belief"` // 0-100
}

// AdaptiveResponse 一条自动思维对应的四个提问回答
type AdaptiveResponse struct {
	EvidenceFor     PromptAnswer `json:"evidenceFor"`
	EvidenceAgainst PromptAnswer `json:"evidenceAgainst"`
	BalancedView    PromptAnswer `json:"balancedView"`
	FriendAdvice    PromptAnswer `json:"friendAdvice"`
}

// Set 按提问键写入回答
func (r *AdaptiveResponse) Set(key PromptKey, answer PromptAnswer) {
	switch key {
	case PromptEvidenceFor:
		r.EvidenceFor = answer
	case PromptEvidenceAgainst:
		r.EvidenceAgainst = answer
	case PromptBalancedView:
		r.BalancedView = answer
	case PromptFriendAdvice:
		r.FriendAdvice = answer
	}
}

// Get 按提问键读取回答
func (r AdaptiveResponse) Get(key PromptKey) PromptAnswer {
	switch key {
	case PromptEvidenceFor:
		return r.EvidenceFor
	case PromptEvidenceAgainst:
		return r.EvidenceAgainst
	case PromptBalancedView:
		return r.BalancedView
	case PromptFriendAdvice:
		return r.FriendAdvice
	}
	return PromptAnswer{}
}

// Outcome 单条自动思维的"之后"快照
type Outcome struct {
	BeliefAfter   int            `json:"beliefAfter"` // 0-100
	EmotionsAfter map[string]int `json:"emotionsAfter"`
	Reflection    string         `json:"reflection"`
	IsComplete    bool           `json:"isComplete"`
}

// Distortion 认知扭曲条目
type Distortion struct {
	Label   string `json:"label"`
	Why     string `json:"why"`
	Reframe string `json:"reframe"`
}

// Reframe AI生成的重构结果
type Reframe struct {
	Validation           string       `json:"validation"`
	PossibleExplanations []string     `json:"possibleExplanations"`
	Distortions          []Distortion `json:"distortions"`
	BalancedThought      string       `json:"balancedThought"`
	MicroActionPlan      []string     `json:"microActionPlan"`
}

// Entry 记录模型，一次完整的日记会话
type Entry struct {
	ID                string                      `gorm:"type:varchar(50);primaryKey" json:"id"`
	UserID            string                      `gorm:"type:varchar(50);index" json:"user_id"`
	Kind              EntryKind                   `gorm:"type:varchar(20)" json:"kind"`
	SituationText     string                      `gorm:"type:text" json:"situationText"`
	UrgeText          string                      `gorm:"type:text" json:"urgeText"`
	Sensations        []string                    `gorm:"serializer:json;type:text" json:"sensations"`
	Emotions          []Emotion                   `gorm:"serializer:json;type:text" json:"emotions"`
	AutomaticThoughts []AutomaticThought          `gorm:"serializer:json;type:text" json:"automaticThoughts"`
	AdaptiveResponses map[string]AdaptiveResponse `gorm:"serializer:json;type:text" json:"adaptiveResponses"`
	OutcomesByThought map[string]Outcome          `gorm:"serializer:json;type:text" json:"outcomesByThought"`

	AIReframe              *Reframe   `gorm:"serializer:json;type:text" json:"aiReframe,omitempty"`
	AIReframeCreatedAt     *time.Time `json:"aiReframeCreatedAt,omitempty"`
	AIReframeModel         string     `gorm:"type:varchar(100)" json:"aiReframeModel,omitempty"`
	AIReframePromptVersion string     `gorm:"type:varchar(20)" json:"aiReframePromptVersion,omitempty"`
	AIReframeDepth         string     `gorm:"type:varchar(20)" json:"aiReframeDepth,omitempty"`

	IsDraft      bool      `json:"isDraft"`
	Status       int       `gorm:"type:int" default:"0" json:"status"` // 0: 正常 1: 删除
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	LastModified time.Time `json:"lastModified"`
}

// Clone 返回记录的深拷贝，切片和map与原记录互不共享
func (e *Entry) Clone() *Entry {
	cp := *e
	if e.Sensations != nil {
		cp.Sensations = append([]string(nil), e.Sensations...)
	}
	if e.Emotions != nil {
		cp.Emotions = make([]Emotion, len(e.Emotions))
		for i, emo := range e.Emotions {
			if emo.IntensityAfter != nil {
				after := *emo.IntensityAfter
				emo.IntensityAfter = &after
			}
			cp.Emotions[i] = emo
		}
	}
	if e.AutomaticThoughts != nil {
		cp.AutomaticThoughts = append([]AutomaticThought(nil), e.AutomaticThoughts...)
	}
	if e.AdaptiveResponses != nil {
		cp.AdaptiveResponses = make(map[string]AdaptiveResponse, len(e.AdaptiveResponses))
		for k, v := range e.AdaptiveResponses {
			cp.AdaptiveResponses[k] = v
		}
	}
	if e.OutcomesByThought != nil {
		cp.OutcomesByThought = make(map[string]Outcome, len(e.OutcomesByThought))
		for k, out := range e.OutcomesByThought {
			if out.EmotionsAfter != nil {
				after := make(map[string]int, len(out.EmotionsAfter))
				for id, v := range out.EmotionsAfter {
					after[id] = v
				}
				out.EmotionsAfter = after
			}
			cp.OutcomesByThought[k] = out
		}
	}
	if e.AIReframe != nil {
		reframe := *e.AIReframe
		if e.AIReframe.PossibleExplanations != nil {
			reframe.PossibleExplanations = append([]string(nil), e.AIReframe.PossibleExplanations...)
		}
		if e.AIReframe.Distortions != nil {
			reframe.Distortions = append([]Distortion(nil), e.AIReframe.Distortions...)
		}
		if e.AIReframe.MicroActionPlan != nil {
			reframe.MicroActionPlan = append([]string(nil), e.AIReframe.MicroActionPlan...)
		}
		cp.AIReframe = &reframe
	}
	if e.AIReframeCreatedAt != nil {
		at := *e.AIReframeCreatedAt
		cp.AIReframeCreatedAt = &at
	}
	return &cp
}

// Thought 按ID查找自动思维，找不到返回nil
func (e *Entry) Thought(id string) *AutomaticThought {
	for i := range e.AutomaticThoughts {
		if e.AutomaticThoughts[i].ID == id {
			return &e.AutomaticThoughts[i]
		}
	}
	return nil
}

// EmotionByID 按ID查找情绪，找不到返回nil
func (e *Entry) EmotionByID(id string) *Emotion {
	for i := range e.Emotions {
		if e.Emotions[i].ID == id {
			return &e.Emotions[i]
		}
	}
	return nil
}
