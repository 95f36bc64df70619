package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"ReframeGo/config"
	"ReframeGo/models"
	"ReframeGo/services"

	"github.com/gin-gonic/gin"
)

// EntryController 记录查询与同步控制器
type EntryController struct {
	store services.RecordStore
}

func NewEntryController(store services.RecordStore) *EntryController {
	return &EntryController{store: store}
}

// ListEntries 获取最近的记录列表
func (ec *EntryController) ListEntries(c *gin.Context) {
	uid := c.GetString("uid")

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的limit参数"})
			return
		}
		limit = n
	}

	entries, err := ec.store.FetchRecent(c.Request.Context(), uid, limit)
	if err != nil {
		config.Logger.Errorw("获取记录列表失败", "error", err, "uid", uid)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取记录列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// GetEntry 按ID获取记录
func (ec *EntryController) GetEntry(c *gin.Context) {
	uid := c.GetString("uid")
	entryID := c.Param("id")

	entry, err := ec.store.Fetch(c.Request.Context(), uid, entryID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "记录不存在"})
			return
		}
		config.Logger.Errorw("获取记录失败", "error", err, "uid", uid, "entryID", entryID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取记录失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

// DeleteEntry 删除记录（软删除）
func (ec *EntryController) DeleteEntry(c *gin.Context) {
	uid := c.GetString("uid")
	entryID := c.Param("id")

	if err := ec.store.Delete(c.Request.Context(), uid, entryID); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "记录不存在"})
			return
		}
		config.Logger.Errorw("删除记录失败", "error", err, "uid", uid, "entryID", entryID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除记录失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "删除成功"})
}

// SyncEntries 处理客户端记录同步，按lastModified做最后写入胜出
func (ec *EntryController) SyncEntries(c *gin.Context) {
	var requests []models.SyncEntryRequest
	if err := c.ShouldBindJSON(&requests); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	// 获取用户ID
	uid, exists := c.Get("uid")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未获取到用户ID"})
		return
	}

	// 开启事务
	tx := config.DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// 更新或创建记录
	for _, req := range requests {
		req.ConvertToUTC()
		entry := models.Entry{
			ID:                req.ID,
			UserID:            uid.(string),
			Kind:              models.EntryKind(req.Kind),
			SituationText:     req.SituationText,
			UrgeText:          req.UrgeText,
			Sensations:        services.NormalizeSensations(req.Sensations),
			Emotions:          req.Emotions,
			AutomaticThoughts: req.AutomaticThoughts,
			AdaptiveResponses: req.AdaptiveResponses,
			OutcomesByThought: req.OutcomesByThought,
			CreatedAt:         req.CreatedAt,
			LastModified:      req.LastModified,
		}

		// 检查是否存在同ID记录
		var existing models.Entry
		if err := tx.Where("id = ? AND user_id = ?", entry.ID, uid).First(&existing).Error; err == nil {
			// 如果存在，比较 lastModified 时间戳
			if entry.LastModified.After(existing.LastModified) {
				// 如果新数据更晚，更新记录
				entry.LastModified = time.Now()
				entry.AIReframe = existing.AIReframe
				entry.AIReframeCreatedAt = existing.AIReframeCreatedAt
				entry.AIReframeModel = existing.AIReframeModel
				entry.AIReframePromptVersion = existing.AIReframePromptVersion
				entry.AIReframeDepth = existing.AIReframeDepth
				if err := tx.Save(&entry).Error; err != nil {
					tx.Rollback()
					c.JSON(http.StatusInternalServerError, gin.H{"error": "记录同步失败"})
					return
				}
			} else {
				// 如果旧数据更晚，忽略新数据
				continue
			}
		} else {
			// 如果不存在，创建新记录
			entry.LastModified = time.Now()
			if err := tx.Create(&entry).Error; err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, gin.H{"error": "记录同步失败"})
				return
			}
		}
	}

	// 提交事务
	if err := tx.Commit().Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "记录同步失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "记录同步成功"})
}

// GetUpdates 获取自上次同步以来的更新
func (ec *EntryController) GetUpdates(c *gin.Context) {
	// 获取用户ID
	uid, exists := c.Get("uid")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未获取到用户ID"})
		return
	}

	// 获取上次同步时间
	lastSyncDateStr := c.Query("lastSyncDate")
	var lastSyncDate time.Time
	var err error

	if lastSyncDateStr != "" {
		lastSyncDate, err = time.Parse(time.RFC3339, lastSyncDateStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的时间格式"})
			return
		}
	} else {
		// 如果没有提供上次同步时间，则使用很久以前的时间
		lastSyncDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	// 查询记录更新
	var entries []models.Entry
	if err := config.DB.Where("user_id = ? AND last_modified > ? AND is_draft = 0 AND status = 0",
		uid, lastSyncDate).Find(&entries).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取记录更新失败"})
		return
	}

	// 返回响应
	c.JSON(http.StatusOK, models.SyncUpdatesResponse{
		Entries: entries,
	})
}
