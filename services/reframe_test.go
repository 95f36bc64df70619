package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ReframeGo/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

const fakeReframeJSON = `{
	"validation": "在这种情境下感到难过是很自然的",
	"possibleExplanations": ["朋友可能只是今天心情不好"],
	"distortions": [{"label": "读心术", "why": "没有证据表明对方的想法", "reframe": "我并不知道他们真实的想法"}],
	"balancedThought": "一次争执不代表关系破裂",
	"microActionPlan": ["给朋友发一条问候消息"]
}`

// fakeLLM llms.Model的测试替身，可按次阻塞以模拟在途请求
type fakeLLM struct {
	mu      sync.Mutex
	calls   int
	content string
	err     error

	blockFirst bool
	started    chan struct{}
	release    chan struct{}
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.blockFirst && call == 1 {
		close(f.started)
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.content}},
	}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return f.content, f.err
}

func newTestReframeService(fake *fakeLLM, store *fakeStore) *ReframeService {
	return NewReframeService(&ReframeClient{Chat: fake, Model: "test-model"}, store)
}

func testReframeEntry() *models.Entry {
	return &models.Entry{
		ID:            "entry-1",
		UserID:        "u1",
		Kind:          models.ThoughtEntry,
		SituationText: "和朋友吵架",
		Emotions: []models.Emotion{
			{ID: "e1", Label: "难过", IntensityBefore: 70},
		},
		AutomaticThoughts: []models.AutomaticThought{
			{ID: "t1", Text: "他们讨厌我", BeliefBefore: 80},
		},
		AdaptiveResponses: map[string]models.AdaptiveResponse{},
		OutcomesByThought: map[string]models.Outcome{},
	}
}

func TestGenerateSuccess(t *testing.T) {
	store := newFakeStore()
	svc := newTestReframeService(&fakeLLM{content: fakeReframeJSON}, store)
	entry := testReframeEntry()

	reframe, err := svc.Generate(context.Background(), entry, ShallowReframe, false)
	require.NoError(t, err)
	assert.Equal(t, "一次争执不代表关系破裂", reframe.BalancedThought)
	require.Len(t, reframe.Distortions, 1)
	assert.Equal(t, "读心术", reframe.Distortions[0].Label)

	// 结果和来源信息写回记录并持久化
	assert.Same(t, reframe, entry.AIReframe)
	assert.NotNil(t, entry.AIReframeCreatedAt)
	assert.Equal(t, "test-model", entry.AIReframeModel)
	assert.Equal(t, ReframePromptVersion, entry.AIReframePromptVersion)
	assert.Equal(t, string(ShallowReframe), entry.AIReframeDepth)
	assert.Equal(t, 1, store.saves())
}

func TestGenerateMissingCredential(t *testing.T) {
	svc := NewReframeService(nil, newFakeStore())
	_, err := svc.Generate(context.Background(), testReframeEntry(), ShallowReframe, false)
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestGenerateFailureKeepsExisting(t *testing.T) {
	store := newFakeStore()
	svc := newTestReframeService(&fakeLLM{err: errors.New("upstream timeout")}, store)

	entry := testReframeEntry()
	prior := &models.Reframe{BalancedThought: "旧的结果"}
	entry.AIReframe = prior

	_, err := svc.Generate(context.Background(), entry, ShallowReframe, false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingCredential)

	// 失败不清除已有结果，也不额外落库
	assert.Same(t, prior, entry.AIReframe)
	assert.Equal(t, 0, store.saves())
}

func TestGenerateReplaceExistingClearsFirst(t *testing.T) {
	store := newFakeStore()
	svc := newTestReframeService(&fakeLLM{err: errors.New("upstream timeout")}, store)

	entry := testReframeEntry()
	entry.IsDraft = true
	entry.AIReframe = &models.Reframe{BalancedThought: "旧的结果"}

	_, err := svc.Generate(context.Background(), entry, DeepReframe, true)
	require.Error(t, err)

	// 重新生成先乐观清空旧结果，即使之后失败
	assert.Nil(t, entry.AIReframe)
	assert.Nil(t, entry.AIReframeCreatedAt)
	assert.Equal(t, 1, store.saves())
}

func TestGenerateBusy(t *testing.T) {
	store := newFakeStore()
	fake := &fakeLLM{
		content:    fakeReframeJSON,
		blockFirst: true,
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	svc := newTestReframeService(fake, store)
	entry := testReframeEntry()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Generate(context.Background(), entry, ShallowReframe, false)
		done <- err
	}()
	<-fake.started

	// 在途期间的重复请求被拒绝
	_, err := svc.Generate(context.Background(), entry, ShallowReframe, false)
	assert.ErrorIs(t, err, ErrGenerationBusy)

	close(fake.release)
	require.NoError(t, <-done)
}

func TestGenerateSupersededByReplace(t *testing.T) {
	store := newFakeStore()
	fake := &fakeLLM{
		content:    fakeReframeJSON,
		blockFirst: true,
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	svc := newTestReframeService(fake, store)
	entry := testReframeEntry()

	first := make(chan error, 1)
	go func() {
		_, err := svc.Generate(context.Background(), entry, ShallowReframe, false)
		first <- err
	}()
	<-fake.started

	// 重新生成抢占在途请求
	reframe, err := svc.Generate(context.Background(), entry, DeepReframe, true)
	require.NoError(t, err)
	assert.Equal(t, "一次争执不代表关系破裂", reframe.BalancedThought)
	assert.Equal(t, string(DeepReframe), entry.AIReframeDepth)

	// 旧请求的迟到响应被丢弃，不覆盖新结果
	close(fake.release)
	assert.ErrorIs(t, <-first, ErrSuperseded)
	assert.Same(t, reframe, entry.AIReframe)
}

func TestParseReframe(t *testing.T) {
	t.Run("裹在说明文字里的JSON", func(t *testing.T) {
		reframe, err := parseReframe("好的，以下是结果：\n" + fakeReframeJSON + "\n希望有帮助。")
		require.NoError(t, err)
		assert.Equal(t, "一次争执不代表关系破裂", reframe.BalancedThought)
	})

	t.Run("没有JSON内容", func(t *testing.T) {
		_, err := parseReframe("抱歉，我无法处理这个请求")
		assert.Error(t, err)
	})

	t.Run("JSON格式损坏", func(t *testing.T) {
		_, err := parseReframe(`{"validation": `)
		assert.Error(t, err)
	})
}

func TestBuildReframePrompt(t *testing.T) {
	entry := testReframeEntry()
	entry.AdaptiveResponses["t1"] = models.AdaptiveResponse{
		EvidenceAgainst: models.PromptAnswer{Text: "上周还一起吃饭", Belief: 60},
	}

	prompt := buildReframePrompt(entry)
	assert.Contains(t, prompt, "和朋友吵架")
	assert.Contains(t, prompt, "难过（强度70/100）")
	assert.Contains(t, prompt, "他们讨厌我（相信程度80/100）")
	assert.Contains(t, prompt, "上周还一起吃饭")
}
