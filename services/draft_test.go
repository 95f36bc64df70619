package services

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"ReframeGo/config"
	"ReframeGo/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	config.Logger = zap.NewNop().Sugar()
	os.Exit(m.Run())
}

// fakeStore RecordStore的内存实现
type fakeStore struct {
	mu        sync.Mutex
	entries   map[string]models.Entry // 定稿记录，按ID
	drafts    map[string]models.Entry // 草稿行，按用户ID
	saveCount int
	failSaves bool
}

var errFakeStore = errors.New("存储不可用")

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries: make(map[string]models.Entry),
		drafts:  make(map[string]models.Entry),
	}
}

func (f *fakeStore) Fetch(ctx context.Context, userID, id string) (*models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[id]; ok && e.UserID == userID {
		cp := e
		return &cp, nil
	}
	if e, ok := f.drafts[userID]; ok && e.ID == id {
		cp := e
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (f *fakeStore) FetchAll(ctx context.Context, userID string) ([]models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Entry
	for _, e := range f.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) FetchRecent(ctx context.Context, userID string, limit int) ([]models.Entry, error) {
	all, _ := f.FetchAll(ctx, userID)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeStore) Upsert(ctx context.Context, e *models.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSaves {
		return errFakeStore
	}
	f.saveCount++
	f.entries[e.ID] = *e
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[id]; ok && e.UserID == userID {
		delete(f.entries, id)
		return nil
	}
	if e, ok := f.drafts[userID]; ok && e.ID == id {
		delete(f.drafts, userID)
		return nil
	}
	return ErrNotFound
}

func (f *fakeStore) FetchDraft(ctx context.Context, userID string) (*models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.drafts[userID]; ok {
		cp := e
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (f *fakeStore) SaveDraft(ctx context.Context, e *models.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSaves {
		return errFakeStore
	}
	f.saveCount++
	f.drafts[e.UserID] = *e
	return nil
}

func (f *fakeStore) ClearDraft(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.drafts, userID)
	return nil
}

func (f *fakeStore) saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveCount
}

func newTestDraftService(store *fakeStore, counter *fakeCounter, debounce time.Duration) (*DraftService, *QuotaService) {
	quota := NewQuotaService(counter, 3, time.UTC)
	return NewDraftService(store, quota, debounce), quota
}

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		entry *models.Entry
		want  bool
	}{
		{
			name:  "全空",
			entry: &models.Entry{},
			want:  true,
		},
		{
			name: "只有空白字符",
			entry: &models.Entry{
				SituationText: "   \n\t",
				UrgeText:      "  ",
				Sensations:    []string{"  "},
				Emotions:      []models.Emotion{{ID: "e1", Label: " "}},
			},
			want: true,
		},
		{
			name: "有一个带标签的情绪即非空",
			entry: &models.Entry{
				Emotions: []models.Emotion{{ID: "e1", Label: "Anxious", IntensityBefore: 5}},
			},
			want: false,
		},
		{
			name: "有情境文本即非空",
			entry: &models.Entry{
				SituationText: "开会",
			},
			want: false,
		},
		{
			name: "冲动描述非空即非空",
			entry: &models.Entry{
				Kind:     models.UrgeEntry,
				UrgeText: "想刷手机",
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEmpty(tt.entry))
		})
	}
}

func TestStartQuotaGate(t *testing.T) {
	store := newFakeStore()
	counter := newFakeCounter()
	svc, quota := newTestDraftService(store, counter, time.Hour)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	quota.now = func() time.Time { return now }

	ctx := context.Background()
	user := &models.User{ID: "u1"}

	// 预先用满当日配额
	for i := 0; i < 3; i++ {
		require.NoError(t, quota.IncrementToday(ctx, user.ID))
	}

	_, err := svc.Start(ctx, user, models.ThoughtEntry)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestStartOnlyOneDraft(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestDraftService(store, newFakeCounter(), time.Hour)

	ctx := context.Background()
	user := &models.User{ID: "u1"}

	_, err := svc.Start(ctx, user, models.ThoughtEntry)
	require.NoError(t, err)

	_, err = svc.Start(ctx, user, models.ThoughtEntry)
	assert.ErrorIs(t, err, ErrDraftInProgress)
}

func TestDebounceCollapsesEdits(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestDraftService(store, newFakeCounter(), 30*time.Millisecond)

	ctx := context.Background()
	user := &models.User{ID: "u1"}
	_, err := svc.Start(ctx, user, models.ThoughtEntry)
	require.NoError(t, err)

	// 连续编辑只触发一次落库
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.SetSituation(user.ID, "和朋友吵架"))
	}
	assert.Equal(t, 0, store.saves(), "防抖窗口内不应落库")

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, store.saves())

	draft, err := store.FetchDraft(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "和朋友吵架", draft.SituationText)
}

func TestFirstSaveIncrementsQuotaOnce(t *testing.T) {
	store := newFakeStore()
	counter := newFakeCounter()
	svc, quota := newTestDraftService(store, counter, time.Hour)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	quota.now = func() time.Time { return now }

	ctx := context.Background()
	user := &models.User{ID: "u1"}
	_, err := svc.Start(ctx, user, models.ThoughtEntry)
	require.NoError(t, err)
	require.NoError(t, svc.SetSituation(user.ID, "被领导批评"))

	require.NoError(t, svc.SaveNow(ctx, user.ID))
	require.NoError(t, svc.SaveNow(ctx, user.ID))
	require.NoError(t, svc.SaveNow(ctx, user.ID))

	// 只有首次成功落库计数
	count, err := quota.TodayCount(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAbandonEmptyNewDiscards(t *testing.T) {
	store := newFakeStore()
	counter := newFakeCounter()
	svc, quota := newTestDraftService(store, counter, time.Hour)

	ctx := context.Background()
	user := &models.User{ID: "u1"}
	_, err := svc.Start(ctx, user, models.ThoughtEntry)
	require.NoError(t, err)

	// 空白新草稿静默丢弃，不落库不计数
	require.NoError(t, svc.Abandon(ctx, user.ID))
	assert.Equal(t, 0, store.saves())
	count, err := quota.TodayCount(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = svc.Resume(ctx, user.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAbandonEmptyPersistedUrgeDeletes(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestDraftService(store, newFakeCounter(), time.Hour)

	ctx := context.Background()
	user := &models.User{ID: "u1"}
	entry, err := svc.Start(ctx, user, models.UrgeEntry)
	require.NoError(t, err)

	require.NoError(t, svc.SetUrgeText(user.ID, "想抽烟"))
	require.NoError(t, svc.SaveNow(ctx, user.ID))

	// 清空内容后退出，冲动流程删除已落库的空记录
	require.NoError(t, svc.SetUrgeText(user.ID, "  "))
	require.NoError(t, svc.Abandon(ctx, user.ID))

	_, err = store.Fetch(ctx, user.ID, entry.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAbandonEmptyPersistedThoughtKeeps(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestDraftService(store, newFakeCounter(), time.Hour)

	ctx := context.Background()
	user := &models.User{ID: "u1"}
	entry, err := svc.Start(ctx, user, models.ThoughtEntry)
	require.NoError(t, err)

	require.NoError(t, svc.SetSituation(user.ID, "临时记录"))
	require.NoError(t, svc.SaveNow(ctx, user.ID))

	// 思维流程变空后退出不会删除
	require.NoError(t, svc.SetSituation(user.ID, ""))
	require.NoError(t, svc.Abandon(ctx, user.ID))

	got, err := store.Fetch(ctx, user.ID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
}

func TestAutosaveFailureSurfacedNotFatal(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestDraftService(store, newFakeCounter(), time.Hour)

	ctx := context.Background()
	user := &models.User{ID: "u1"}
	_, err := svc.Start(ctx, user, models.ThoughtEntry)
	require.NoError(t, err)
	require.NoError(t, svc.SetSituation(user.ID, "内容"))

	store.failSaves = true
	assert.Error(t, svc.SaveNow(ctx, user.ID))

	// 保存失败记录在状态里，草稿内容仍在
	status, err := svc.Status(user.ID)
	require.NoError(t, err)
	assert.Error(t, status.SaveErr)
	assert.Equal(t, "内容", status.Entry.SituationText)

	// 恢复后保存成功并清除错误
	store.failSaves = false
	require.NoError(t, svc.SaveNow(ctx, user.ID))
	status, err = svc.Status(user.ID)
	require.NoError(t, err)
	assert.NoError(t, status.SaveErr)
}

func TestSetOutcomePartialUpdate(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestDraftService(store, newFakeCounter(), time.Hour)

	ctx := context.Background()
	user := &models.User{ID: "u1"}
	_, err := svc.Start(ctx, user, models.ThoughtEntry)
	require.NoError(t, err)

	require.NoError(t, svc.SetEmotions(user.ID, []models.EmotionInput{
		{ID: "e1", Label: "难过", IntensityBefore: 70},
	}))
	require.NoError(t, svc.SetThoughts(user.ID, []models.ThoughtInput{
		{ID: "t1", Text: "他们讨厌我", BeliefBefore: 80},
	}))

	belief := 130 // 越界值会被收敛
	require.NoError(t, svc.SetOutcome(user.ID, "t1", models.UpdateOutcomeRequest{
		BeliefAfter:   &belief,
		EmotionsAfter: map[string]int{"e1": 20, "ghost": 99}, // 未知情绪键被忽略
	}))

	status, err := svc.Status(user.ID)
	require.NoError(t, err)
	out := status.Entry.OutcomesByThought["t1"]
	assert.Equal(t, 100, out.BeliefAfter)
	assert.Equal(t, map[string]int{"e1": 20}, out.EmotionsAfter)
	assert.False(t, out.IsComplete)

	// 对不存在的思维更新报错
	err = svc.SetOutcome(user.ID, "missing", models.UpdateOutcomeRequest{})
	assert.ErrorIs(t, err, ErrThoughtNotFound)
}

func TestStatusSnapshotIsolated(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestDraftService(store, newFakeCounter(), time.Hour)

	ctx := context.Background()
	user := &models.User{ID: "u1"}
	_, err := svc.Start(ctx, user, models.ThoughtEntry)
	require.NoError(t, err)

	require.NoError(t, svc.SetEmotions(user.ID, []models.EmotionInput{
		{ID: "e1", Label: "难过", IntensityBefore: 70},
	}))
	require.NoError(t, svc.SetThoughts(user.ID, []models.ThoughtInput{
		{ID: "t1", Text: "他们讨厌我", BeliefBefore: 80},
	}))
	require.NoError(t, svc.SetOutcome(user.ID, "t1", models.UpdateOutcomeRequest{}))

	status, err := svc.Status(user.ID)
	require.NoError(t, err)

	// 快照与会话互不共享，后续编辑不会改写已返回的状态
	require.NoError(t, svc.SetEmotions(user.ID, []models.EmotionInput{
		{ID: "e1", Label: "愤怒", IntensityBefore: 90},
		{ID: "e2", Label: "委屈", IntensityBefore: 40},
	}))
	belief := 10
	require.NoError(t, svc.SetOutcome(user.ID, "t1", models.UpdateOutcomeRequest{
		BeliefAfter: &belief,
	}))

	require.Len(t, status.Entry.Emotions, 1)
	assert.Equal(t, "难过", status.Entry.Emotions[0].Label)
	assert.Equal(t, 80, status.Entry.OutcomesByThought["t1"].BeliefAfter)
}

func TestUrgeFlowSingleThought(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestDraftService(store, newFakeCounter(), time.Hour)

	ctx := context.Background()
	user := &models.User{ID: "u1"}
	_, err := svc.Start(ctx, user, models.UrgeEntry)
	require.NoError(t, err)

	require.NoError(t, svc.SetThoughts(user.ID, []models.ThoughtInput{
		{ID: "t1", Text: "忍不住了", BeliefBefore: 90},
		{ID: "t2", Text: "多余的", BeliefBefore: 50},
	}))

	status, err := svc.Status(user.ID)
	require.NoError(t, err)
	require.Len(t, status.Entry.AutomaticThoughts, 1)
	assert.Equal(t, "t1", status.Entry.AutomaticThoughts[0].ID)
}

func TestFinishRejectsIncomplete(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestDraftService(store, newFakeCounter(), time.Hour)

	ctx := context.Background()
	user := &models.User{ID: "u1"}
	_, err := svc.Start(ctx, user, models.ThoughtEntry)
	require.NoError(t, err)

	require.NoError(t, svc.SetSituation(user.ID, "Argument with friend"))
	require.NoError(t, svc.SetThoughts(user.ID, []models.ThoughtInput{
		{ID: "t1", Text: "They hate me", BeliefBefore: 80},
	}))

	// 结果未完成时不能定稿，返回阻塞环节
	_, check, err := svc.Finish(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, check.OK)
	assert.Equal(t, SectionOutcome, check.BlockingSection)
	assert.NotEmpty(t, check.Hint)

	// 草稿会话仍然存在
	_, err = svc.Status(user.ID)
	assert.NoError(t, err)
}

// 完整链路：新建、填写、完成结果、定稿后可按ID取回
func TestFullRoundTrip(t *testing.T) {
	store := newFakeStore()
	counter := newFakeCounter()
	svc, quota := newTestDraftService(store, counter, time.Hour)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	quota.now = func() time.Time { return now }

	ctx := context.Background()
	user := &models.User{ID: "u1"}
	entry, err := svc.Start(ctx, user, models.ThoughtEntry)
	require.NoError(t, err)

	require.NoError(t, svc.SetSituation(user.ID, "Argument with friend"))
	require.NoError(t, svc.SetEmotions(user.ID, []models.EmotionInput{
		{ID: "e1", Label: "Sad", IntensityBefore: 70},
	}))
	require.NoError(t, svc.SetThoughts(user.ID, []models.ThoughtInput{
		{ID: "t1", Text: "They hate me", BeliefBefore: 80},
	}))

	belief := 30
	complete := true
	require.NoError(t, svc.SetOutcome(user.ID, "t1", models.UpdateOutcomeRequest{
		BeliefAfter: &belief,
		IsComplete:  &complete,
	}))

	finished, check, err := svc.Finish(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, check.OK)
	assert.False(t, finished.IsDraft)

	// 定稿后按ID可取回
	got, err := store.Fetch(ctx, user.ID, entry.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDraft)
	out := got.OutcomesByThought["t1"]
	assert.True(t, out.IsComplete)
	assert.Equal(t, 30, out.BeliefAfter)
	// 未单独评分的情绪保留默认值
	assert.Equal(t, map[string]int{"e1": 70}, out.EmotionsAfter)

	// 定稿即首次落库，配额计数一次
	count, err := quota.TodayCount(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// 会话已结束
	_, err = svc.Status(user.ID)
	assert.ErrorIs(t, err, ErrNoDraft)
}
