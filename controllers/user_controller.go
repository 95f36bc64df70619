package controllers

import (
	"net/http"
	"time"

	"ReframeGo/config"
	"ReframeGo/models"
	"ReframeGo/services"

	"github.com/gin-gonic/gin"
)

// UserController 用户控制器
type UserController struct {
	quota *services.QuotaService
}

func NewUserController(quota *services.QuotaService) *UserController {
	return &UserController{quota: quota}
}

// GetUser 获取用户信息
func (uc *UserController) GetUser(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": models.UserResponse{
			ID:       user.ID,
			Username: user.GetDisplayName(),
			Avatar:   user.Avatar,
			Email:    user.Email,
			Energy:   user.Energy,
			IsPro:    user.IsPro(time.Now()),
		},
	})
}

// GetQuota 获取今日配额状态
func (uc *UserController) GetQuota(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	count, err := uc.quota.TodayCount(c.Request.Context(), user.ID)
	if err != nil {
		config.Logger.Errorw("获取配额状态失败", "error", err, "uid", user.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取配额状态失败"})
		return
	}
	canCreate, err := uc.quota.CanCreate(c.Request.Context(), user)
	if err != nil {
		config.Logger.Errorw("获取配额状态失败", "error", err, "uid", user.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取配额状态失败"})
		return
	}

	c.JSON(http.StatusOK, models.QuotaResponse{
		TodayCount: count,
		Limit:      uc.quota.Limit(),
		CanCreate:  canCreate,
		IsPro:      user.IsPro(time.Now()),
	})
}

// GetEnergy 获取用户能量值
func (uc *UserController) GetEnergy(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"energy": user.Energy,
	})
}
