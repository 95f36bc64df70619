package controllers

import (
	"errors"
	"net/http"

	"ReframeGo/config"
	"ReframeGo/models"
	"ReframeGo/services"

	"github.com/gin-gonic/gin"
)

// DraftController 草稿向导控制器
type DraftController struct {
	drafts *services.DraftService
	quota  *services.QuotaService
}

func NewDraftController(drafts *services.DraftService, quota *services.QuotaService) *DraftController {
	return &DraftController{
		drafts: drafts,
		quota:  quota,
	}
}

// currentUser 从认证上下文加载当前用户
func currentUser(c *gin.Context) (*models.User, bool) {
	uid, exists := c.Get("uid")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未获取到用户ID"})
		return nil, false
	}

	var user models.User
	if err := config.DB.Where("id = ?", uid).First(&user).Error; err != nil {
		config.Logger.Errorw("获取用户信息失败", "error", err, "uid", uid)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取用户信息失败"})
		return nil, false
	}
	return &user, true
}

// sectionNames 环节枚举转字符串列表
func sectionNames(sections []services.Section) []string {
	names := make([]string, len(sections))
	for i, s := range sections {
		names[i] = s.String()
	}
	return names
}

// StartDraft 新建草稿，受每日配额限制
func (dc *DraftController) StartDraft(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.StartDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求"})
		return
	}
	kind, err := req.EntryKind()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := dc.drafts.Start(c.Request.Context(), user, kind)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrQuotaExceeded):
			count, _ := dc.quota.TodayCount(c.Request.Context(), user.ID)
			c.JSON(http.StatusForbidden, gin.H{
				"error":      "今日免费记录次数已用完",
				"todayCount": count,
				"limit":      dc.quota.Limit(),
			})
		case errors.Is(err, services.ErrDraftInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": "已有进行中的草稿"})
		default:
			config.Logger.Errorw("新建草稿失败", "error", err, "uid", user.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "新建草稿失败"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

// LoadDraft 打开一条已有记录进入编辑
func (dc *DraftController) LoadDraft(c *gin.Context) {
	uid := c.GetString("uid")
	entryID := c.Param("id")

	if _, err := dc.drafts.Load(c.Request.Context(), uid, entryID); err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "记录不存在"})
		case errors.Is(err, services.ErrDraftInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": "已有进行中的草稿"})
		default:
			config.Logger.Errorw("打开记录失败", "error", err, "uid", uid, "entryID", entryID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "打开记录失败"})
		}
		return
	}

	dc.respondStatus(c)
}

// GetDraft 获取草稿状态：内容、已展开环节、能否完成
func (dc *DraftController) GetDraft(c *gin.Context) {
	uid := c.GetString("uid")
	if _, err := dc.drafts.Resume(c.Request.Context(), uid); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "没有进行中的草稿"})
			return
		}
		config.Logger.Errorw("恢复草稿失败", "error", err, "uid", uid)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "恢复草稿失败"})
		return
	}
	dc.respondStatus(c)
}

func (dc *DraftController) respondStatus(c *gin.Context) {
	uid := c.GetString("uid")
	status, err := dc.drafts.Status(uid)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "没有进行中的草稿"})
		return
	}

	resp := models.DraftStatusResponse{
		Entry:           status.Entry,
		VisibleSections: sectionNames(status.Visible),
		CanFinish:       status.CanFinish,
	}
	if !status.CanFinish {
		resp.BlockingSection = status.Blocking.String()
	}
	if status.SaveErr != nil {
		resp.SaveError = "自动保存失败，最近的修改可能未同步"
	}
	c.JSON(http.StatusOK, resp)
}

// updateError 字段更新的统一错误处理
func (dc *DraftController) updateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNoDraft):
		c.JSON(http.StatusNotFound, gin.H{"error": "没有进行中的草稿"})
	case errors.Is(err, services.ErrThoughtNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "指定的自动思维不存在"})
	default:
		config.Logger.Errorw("草稿更新失败", "error", err, "uid", c.GetString("uid"))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "草稿更新失败"})
	}
}

// UpdateSituation 更新情境描述
func (dc *DraftController) UpdateSituation(c *gin.Context) {
	var req models.UpdateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求"})
		return
	}
	if err := dc.drafts.SetSituation(c.GetString("uid"), req.Text); err != nil {
		dc.updateError(c, err)
		return
	}
	dc.respondStatus(c)
}

// UpdateUrge 更新冲动描述
func (dc *DraftController) UpdateUrge(c *gin.Context) {
	var req models.UpdateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求"})
		return
	}
	if err := dc.drafts.SetUrgeText(c.GetString("uid"), req.Text); err != nil {
		dc.updateError(c, err)
		return
	}
	dc.respondStatus(c)
}

// UpdateSensations 更新身体感受
func (dc *DraftController) UpdateSensations(c *gin.Context) {
	var req models.UpdateSensationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求"})
		return
	}
	if err := dc.drafts.SetSensations(c.GetString("uid"), req.Sensations); err != nil {
		dc.updateError(c, err)
		return
	}
	dc.respondStatus(c)
}

// UpdateEmotions 更新情绪列表
func (dc *DraftController) UpdateEmotions(c *gin.Context) {
	var req models.UpdateEmotionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求"})
		return
	}
	if err := dc.drafts.SetEmotions(c.GetString("uid"), req.Emotions); err != nil {
		dc.updateError(c, err)
		return
	}
	dc.respondStatus(c)
}

// UpdateThoughts 更新自动思维列表
func (dc *DraftController) UpdateThoughts(c *gin.Context) {
	var req models.UpdateThoughtsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求"})
		return
	}
	if err := dc.drafts.SetThoughts(c.GetString("uid"), req.Thoughts); err != nil {
		dc.updateError(c, err)
		return
	}
	dc.respondStatus(c)
}

// UpdateAdaptiveResponse 更新一条思维的适应性回应
func (dc *DraftController) UpdateAdaptiveResponse(c *gin.Context) {
	var req models.UpdateAdaptiveResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求"})
		return
	}
	key, err := models.ParsePromptKey(req.Key)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	answer := models.PromptAnswer{Text: req.Text, Belief: req.Belief}
	if err := dc.drafts.SetAdaptiveResponse(c.GetString("uid"), c.Param("thoughtId"), key, answer); err != nil {
		dc.updateError(c, err)
		return
	}
	dc.respondStatus(c)
}

// UpdateOutcome 更新一条思维的结果快照
func (dc *DraftController) UpdateOutcome(c *gin.Context) {
	var req models.UpdateOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求"})
		return
	}
	if err := dc.drafts.SetOutcome(c.GetString("uid"), c.Param("thoughtId"), req); err != nil {
		dc.updateError(c, err)
		return
	}
	dc.respondStatus(c)
}

// SaveDraft 立即保存草稿
func (dc *DraftController) SaveDraft(c *gin.Context) {
	uid := c.GetString("uid")
	if err := dc.drafts.SaveNow(c.Request.Context(), uid); err != nil {
		if errors.Is(err, services.ErrNoDraft) {
			c.JSON(http.StatusNotFound, gin.H{"error": "没有进行中的草稿"})
			return
		}
		config.Logger.Errorw("草稿保存失败", "error", err, "uid", uid)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "草稿保存失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "保存成功"})
}

// FinishDraft 保存并完成。校验不通过时返回阻塞环节和提示，供客户端定位滚动
func (dc *DraftController) FinishDraft(c *gin.Context) {
	uid := c.GetString("uid")
	entry, check, err := dc.drafts.Finish(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, services.ErrNoDraft) {
			c.JSON(http.StatusNotFound, gin.H{"error": "没有进行中的草稿"})
			return
		}
		config.Logger.Errorw("完成记录失败", "error", err, "uid", uid)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "完成记录失败"})
		return
	}
	if !check.OK {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":           check.Hint,
			"blockingSection": check.BlockingSection.String(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

// AbandonDraft 退出编辑，空白新草稿静默丢弃
func (dc *DraftController) AbandonDraft(c *gin.Context) {
	uid := c.GetString("uid")
	if err := dc.drafts.Abandon(c.Request.Context(), uid); err != nil {
		if errors.Is(err, services.ErrNoDraft) {
			c.JSON(http.StatusNotFound, gin.H{"error": "没有进行中的草稿"})
			return
		}
		config.Logger.Errorw("退出编辑时保存失败", "error", err, "uid", uid)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "退出编辑时保存失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已退出编辑"})
}
