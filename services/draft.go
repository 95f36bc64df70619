package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"ReframeGo/config"
	"ReframeGo/models"

	"github.com/google/uuid"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// ErrNoDraft 没有进行中的草稿
var ErrNoDraft = errors.New("没有进行中的草稿")

// ErrDraftInProgress 已有进行中的草稿
var ErrDraftInProgress = errors.New("已有进行中的草稿")

// ErrThoughtNotFound 指定的自动思维不存在
var ErrThoughtNotFound = errors.New("指定的自动思维不存在")

// RecordStore 持久化协作方端口，生产实现基于gorm
type RecordStore interface {
	Fetch(ctx context.Context, userID, id string) (*models.Entry, error)
	FetchAll(ctx context.Context, userID string) ([]models.Entry, error)
	FetchRecent(ctx context.Context, userID string, limit int) ([]models.Entry, error)
	Upsert(ctx context.Context, e *models.Entry) error
	Delete(ctx context.Context, userID, id string) error
	FetchDraft(ctx context.Context, userID string) (*models.Entry, error)
	SaveDraft(ctx context.Context, e *models.Entry) error
	ClearDraft(ctx context.Context, userID string) error
}

// draftSession 单个用户的进行中草稿。
// 每次编辑都重置防抖定时器，定时器句柄由会话独占，加锁替换。
type draftSession struct {
	mu        sync.Mutex
	entry     *models.Entry
	reveal    *RevealState
	persisted bool // 是否已写入过持久层，控制配额计数只触发一次
	closed    bool
	timer     *time.Timer
	saveErr   error // 最近一次自动保存的失败，best-effort策略下只记录不打断
}

// DraftService 草稿服务：每个用户同一时刻最多持有一份进行中的草稿，
// 字段级修改同步落在内存草稿上，经防抖定时器批量写入持久层。
type DraftService struct {
	store    RecordStore
	quota    *QuotaService
	debounce time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*draftSession
}

// NewDraftService 创建草稿服务，debounce为自动保存防抖间隔
func NewDraftService(store RecordStore, quota *QuotaService, debounce time.Duration) *DraftService {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &DraftService{
		store:    store,
		quota:    quota,
		debounce: debounce,
		now:      time.Now,
		sessions: make(map[string]*draftSession),
	}
}

// Start 新建草稿，受每日配额限制。草稿先只存在于内存，首次编辑后才会落库。
func (s *DraftService) Start(ctx context.Context, user *models.User, kind models.EntryKind) (*models.Entry, error) {
	ok, err := s.quota.CanCreate(ctx, user)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrQuotaExceeded
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[user.ID]; exists {
		return nil, ErrDraftInProgress
	}

	now := s.now()
	entry := &models.Entry{
		ID:                uuid.New().String(),
		UserID:            user.ID,
		Kind:              kind,
		AdaptiveResponses: map[string]models.AdaptiveResponse{},
		OutcomesByThought: map[string]models.Outcome{},
		IsDraft:           true,
		CreatedAt:         now,
		UpdatedAt:         now,
		LastModified:      now,
	}
	s.sessions[user.ID] = &draftSession{
		entry:  entry,
		reveal: NewRevealState(kind == models.ThoughtEntry),
	}
	return entry, nil
}

// Load 打开一条已有记录进入编辑，初始展开位置由内容推断
func (s *DraftService) Load(ctx context.Context, userID, entryID string) (*models.Entry, error) {
	entry, err := s.store.Fetch(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[userID]; exists {
		return nil, ErrDraftInProgress
	}

	if entry.AdaptiveResponses == nil {
		entry.AdaptiveResponses = map[string]models.AdaptiveResponse{}
	}
	if entry.OutcomesByThought == nil {
		entry.OutcomesByThought = map[string]models.Outcome{}
	}
	reveal := NewRevealState(entry.Kind == models.ThoughtEntry)
	reveal.Reveal(InitialSection(entry))
	s.sessions[userID] = &draftSession{
		entry:     entry,
		reveal:    reveal,
		persisted: true,
	}
	return entry, nil
}

// Resume 恢复进行中的草稿：优先内存会话，其次持久层的草稿行
func (s *DraftService) Resume(ctx context.Context, userID string) (*models.Entry, error) {
	s.mu.Lock()
	if sess, ok := s.sessions[userID]; ok {
		s.mu.Unlock()
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return sess.entry, nil
	}
	s.mu.Unlock()

	entry, err := s.store.FetchDraft(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.AdaptiveResponses == nil {
		entry.AdaptiveResponses = map[string]models.AdaptiveResponse{}
	}
	if entry.OutcomesByThought == nil {
		entry.OutcomesByThought = map[string]models.Outcome{}
	}
	reveal := NewRevealState(entry.Kind == models.ThoughtEntry)
	reveal.Reveal(InitialSection(entry))
	s.sessions[userID] = &draftSession{
		entry:     entry,
		reveal:    reveal,
		persisted: true,
	}
	return entry, nil
}

func (s *DraftService) session(userID string) (*draftSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNoDraft
	}
	return sess, nil
}

func (s *DraftService) dropSession(userID string) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

// persistLocked 写入完整草稿快照，调用方需持有会话锁。
// 新草稿首次成功落库时将配额计数加一，之后不再重复计数。
func (s *DraftService) persistLocked(ctx context.Context, sess *draftSession) error {
	entry := sess.entry
	entry.UpdatedAt = s.now()
	entry.LastModified = entry.UpdatedAt

	var err error
	if entry.IsDraft {
		err = s.store.SaveDraft(ctx, entry)
	} else {
		err = s.store.Upsert(ctx, entry)
	}
	if err != nil {
		sess.saveErr = err
		return err
	}
	sess.saveErr = nil

	if !sess.persisted {
		sess.persisted = true
		if qerr := s.quota.IncrementToday(ctx, entry.UserID); qerr != nil {
			config.Logger.Errorw("配额计数失败",
				"error", qerr,
				"uid", entry.UserID,
			)
		}
	}
	return nil
}

// scheduleAutosaveLocked 取消上一个定时器并重置，连续编辑合并为一次写入
func (s *DraftService) scheduleAutosaveLocked(sess *draftSession) {
	if sess.timer != nil {
		sess.timer.Stop()
	}
	sess.timer = time.AfterFunc(s.debounce, func() {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		if sess.closed {
			return
		}
		if err := s.persistLocked(context.Background(), sess); err != nil {
			config.Logger.Errorw("草稿自动保存失败",
				"error", err,
				"uid", sess.entry.UserID,
				"entryID", sess.entry.ID,
			)
		}
	})
}

// mutate 在会话锁内执行一次字段修改，然后展开对应环节并调度自动保存
func (s *DraftService) mutate(userID string, section Section, fn func(sess *draftSession) error) error {
	sess, err := s.session(userID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := fn(sess); err != nil {
		return err
	}
	sess.reveal.Reveal(section)
	s.scheduleAutosaveLocked(sess)
	return nil
}

// SetSituation 更新情境描述
func (s *DraftService) SetSituation(userID, text string) error {
	return s.mutate(userID, SectionSituation, func(sess *draftSession) error {
		sess.entry.SituationText = text
		return nil
	})
}

// SetUrgeText 更新冲动描述（仅冲动流程）
func (s *DraftService) SetUrgeText(userID, text string) error {
	return s.mutate(userID, SectionSituation, func(sess *draftSession) error {
		sess.entry.UrgeText = text
		return nil
	})
}

// SetSensations 更新身体感受，忽略大小写去重
func (s *DraftService) SetSensations(userID string, items []string) error {
	return s.mutate(userID, SectionSensations, func(sess *draftSession) error {
		sess.entry.Sensations = NormalizeSensations(items)
		return nil
	})
}

// SetEmotions 更新情绪列表。新条目分配稳定ID，已有条目保留"之后"强度，
// 随后对全部思维重算结果快照，保证新增/删除情绪后的键一致。
func (s *DraftService) SetEmotions(userID string, inputs []models.EmotionInput) error {
	return s.mutate(userID, SectionEmotions, func(sess *draftSession) error {
		prev := make(map[string]models.Emotion, len(sess.entry.Emotions))
		for _, e := range sess.entry.Emotions {
			prev[e.ID] = e
		}
		emotions := make([]models.Emotion, 0, len(inputs))
		for _, in := range inputs {
			id := in.ID
			if id == "" {
				id = uuid.New().String()
			}
			emotion := models.Emotion{
				ID:              id,
				Label:           in.Label,
				IntensityBefore: ClampPercent(float64(in.IntensityBefore)),
			}
			if old, ok := prev[id]; ok {
				emotion.IntensityAfter = old.IntensityAfter
			}
			emotions = append(emotions, emotion)
		}
		sess.entry.Emotions = emotions
		MergeAllOutcomes(sess.entry)
		return nil
	})
}

// SetThoughts 更新自动思维列表并重算结果快照。冲动流程只保留一条。
func (s *DraftService) SetThoughts(userID string, inputs []models.ThoughtInput) error {
	return s.mutate(userID, SectionThoughts, func(sess *draftSession) error {
		if sess.entry.Kind == models.UrgeEntry && len(inputs) > 1 {
			inputs = inputs[:1]
		}
		thoughts := make([]models.AutomaticThought, 0, len(inputs))
		for _, in := range inputs {
			id := in.ID
			if id == "" {
				id = uuid.New().String()
			}
			thoughts = append(thoughts, models.AutomaticThought{
				ID:           id,
				Text:         in.Text,
				BeliefBefore: ClampPercent(float64(in.BeliefBefore)),
			})
		}
		sess.entry.AutomaticThoughts = thoughts
		MergeAllOutcomes(sess.entry)
		return nil
	})
}

// SetAdaptiveResponse 按封闭的提问键更新一条思维的适应性回应
func (s *DraftService) SetAdaptiveResponse(userID, thoughtID string, key models.PromptKey, answer models.PromptAnswer) error {
	return s.mutate(userID, SectionResponses, func(sess *draftSession) error {
		if sess.entry.Thought(thoughtID) == nil {
			return ErrThoughtNotFound
		}
		answer.Belief = ClampPercent(float64(answer.Belief))
		resp := sess.entry.AdaptiveResponses[thoughtID]
		resp.Set(key, answer)
		sess.entry.AdaptiveResponses[thoughtID] = resp
		return nil
	})
}

// SetOutcome 局部更新一条思维的结果快照，未提供的字段保持合并默认值
func (s *DraftService) SetOutcome(userID, thoughtID string, req models.UpdateOutcomeRequest) error {
	return s.mutate(userID, SectionOutcome, func(sess *draftSession) error {
		thought := sess.entry.Thought(thoughtID)
		if thought == nil {
			return ErrThoughtNotFound
		}
		var existing *models.Outcome
		if out, ok := sess.entry.OutcomesByThought[thoughtID]; ok {
			existing = &out
		}
		merged := MergeOutcome(*thought, sess.entry.Emotions, existing)
		if req.BeliefAfter != nil {
			merged.BeliefAfter = ClampPercent(float64(*req.BeliefAfter))
		}
		for id, v := range req.EmotionsAfter {
			if _, ok := merged.EmotionsAfter[id]; ok {
				merged.EmotionsAfter[id] = ClampPercent(float64(v))
			}
		}
		if req.Reflection != nil {
			merged.Reflection = *req.Reflection
		}
		if req.IsComplete != nil {
			merged.IsComplete = *req.IsComplete
		}
		sess.entry.OutcomesByThought[thoughtID] = merged
		return nil
	})
}

// DraftStatus 草稿当前状态
type DraftStatus struct {
	Entry     *models.Entry
	Visible   []Section
	CanFinish bool
	Blocking  Section
	Hint      string
	SaveErr   error
}

// Status 返回草稿状态。结果环节已展开时先重算结果快照，
// 避免UI读到未初始化的结果。
func (s *DraftService) Status(userID string) (*DraftStatus, error) {
	sess, err := s.session(userID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.reveal.IsVisible(SectionOutcome) {
		MergeAllOutcomes(sess.entry)
	}
	check := CheckFinish(sess.entry)
	return &DraftStatus{
		Entry:     sess.entry.Clone(),
		Visible:   sess.reveal.Visible(),
		CanFinish: check.OK,
		Blocking:  check.BlockingSection,
		Hint:      check.Hint,
		SaveErr:   sess.saveErr,
	}, nil
}

// SaveNow 取消挂起的自动保存并立即写入，用于显式保存和导航离开
func (s *DraftService) SaveNow(ctx context.Context, userID string) error {
	sess, err := s.session(userID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
	return s.persistLocked(ctx, sess)
}

// IsEmpty 草稿是否为空：情境、冲动描述、思维文本、情绪标签、身体感受均为空白
func IsEmpty(e *models.Entry) bool {
	if IsRequiredTextValid(e.SituationText) || IsRequiredTextValid(e.UrgeText) {
		return false
	}
	if hasLabeledEmotion(e) || hasThoughtText(e) {
		return false
	}
	for _, s := range e.Sensations {
		if IsRequiredTextValid(s) {
			return false
		}
	}
	return true
}

// Finish 校验通过后将草稿定稿并持久化。
// 校验不通过时返回阻塞环节和提示，不落库。
func (s *DraftService) Finish(ctx context.Context, userID string) (*models.Entry, FinishCheck, error) {
	sess, err := s.session(userID)
	if err != nil {
		return nil, FinishCheck{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	MergeAllOutcomes(sess.entry)
	check := CheckFinish(sess.entry)
	if !check.OK {
		return nil, check, nil
	}

	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
	sess.entry.IsDraft = false
	if err := s.persistLocked(ctx, sess); err != nil {
		sess.entry.IsDraft = true
		return nil, check, err
	}
	if err := s.store.ClearDraft(ctx, userID); err != nil {
		config.Logger.Errorw("清理草稿行失败", "error", err, "uid", userID)
	}
	sess.closed = true
	s.dropSession(userID)
	return sess.entry, check, nil
}

// Abandon 用户退出编辑。空白的新草稿静默丢弃；已落库后变空的记录，
// 冲动流程删除、思维流程保留；其余情况立即保存一次。
func (s *DraftService) Abandon(ctx context.Context, userID string) error {
	sess, err := s.session(userID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
	sess.closed = true
	defer s.dropSession(userID)

	if IsEmpty(sess.entry) {
		if !sess.persisted {
			return nil
		}
		if sess.entry.Kind == models.UrgeEntry {
			if err := s.store.Delete(ctx, userID, sess.entry.ID); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			return s.store.ClearDraft(ctx, userID)
		}
	}
	return s.persistLocked(ctx, sess)
}
