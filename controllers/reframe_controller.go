package controllers

import (
	"errors"
	"net/http"
	"time"

	"ReframeGo/config"
	"ReframeGo/models"
	"ReframeGo/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ReframeController AI重构控制器
type ReframeController struct {
	reframe *services.ReframeService
	store   services.RecordStore
}

func NewReframeController(reframe *services.ReframeService, store services.RecordStore) *ReframeController {
	return &ReframeController{
		reframe: reframe,
		store:   store,
	}
}

// GenerateReframe 为一条记录生成AI重构。
// Pro用户免费；非Pro用户消耗1点能量，能量可看激励广告或兑换码获得
func (rc *ReframeController) GenerateReframe(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	entry, err := rc.store.Fetch(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "记录不存在"})
			return
		}
		config.Logger.Errorw("获取记录失败", "error", err, "uid", user.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取记录失败"})
		return
	}

	var req models.ReframeRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求"})
		return
	}
	depth, err := services.ParseReframeDepth(req.Depth)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 检查用户能量值
	charged := false
	if !user.IsPro(time.Now()) {
		if user.Energy < 1 {
			c.JSON(http.StatusForbidden, gin.H{
				"error":           "能量值不足，观看广告或兑换码可获得能量",
				"remainingEnergy": user.Energy,
			})
			return
		}

		// 扣除能量值
		if err := config.DB.Model(user).Update("energy", user.Energy-1).Error; err != nil {
			config.Logger.Errorw("扣除能量值失败", "error", err, "uid", user.ID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "扣除能量值失败"})
			return
		}
		charged = true
	}

	result, err := rc.reframe.Generate(c.Request.Context(), entry, depth, req.ReplaceExisting)
	if err != nil {
		// 生成失败不应消耗能量，退还本次扣除
		if charged {
			if rerr := config.DB.Model(user).Update("energy", gorm.Expr("energy + ?", 1)).Error; rerr != nil {
				config.Logger.Errorw("退还能量值失败", "error", rerr, "uid", user.ID)
			}
		}
		switch {
		case errors.Is(err, services.ErrMissingCredential):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "AI服务未配置，请联系开发者"})
		case errors.Is(err, services.ErrGenerationBusy):
			c.JSON(http.StatusConflict, gin.H{"error": "重构生成进行中，请稍候"})
		case errors.Is(err, services.ErrSuperseded):
			c.JSON(http.StatusConflict, gin.H{"error": "已发起新的生成请求"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "重构生成失败，请重试"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"aiReframe": result,
		"entry":     entry,
	})
}

// RewardAd 激励广告回调，为用户增加1点能量
func (rc *ReframeController) RewardAd(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if err := config.DB.Model(user).Update("energy", user.Energy+1).Error; err != nil {
		config.Logger.Errorw("增加能量值失败", "error", err, "uid", user.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "增加能量值失败"})
		return
	}

	config.Logger.Infow("广告奖励发放",
		"uid", user.ID,
		"newEnergy", user.Energy+1,
	)

	c.JSON(http.StatusOK, gin.H{
		"message":   "能量值增加成功",
		"newEnergy": user.Energy + 1,
	})
}
