package controllers

import (
	"net/http"
	"strconv"
	"time"

	"ReframeGo/config"
	"ReframeGo/models"
	"ReframeGo/utils"

	"github.com/gin-gonic/gin"
)

type RedeemController struct{}

// CreateRedeemCode 创建兑换码（内部接口），可发放能量或Pro天数
func (rc *RedeemController) CreateRedeemCode(c *gin.Context) {
	energyInt := 0
	if v := c.Query("energy"); v != "" {
		var err error
		energyInt, err = strconv.Atoi(v)
		if err != nil || energyInt < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的能量值"})
			return
		}
	}

	proDays := 0
	if v := c.Query("proDays"); v != "" {
		var err error
		proDays, err = strconv.Atoi(v)
		if err != nil || proDays < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的Pro天数"})
			return
		}
	}

	if energyInt == 0 && proDays == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "energy和proDays至少提供一个"})
		return
	}

	// 生成兑换码
	code := models.GenerateRedeemCode()

	// 创建兑换码记录
	redeemCode := models.RedeemCode{
		ID:        utils.GenerateID(),
		Code:      code,
		Energy:    energyInt,
		ProDays:   proDays,
		CreatedAt: time.Now(),
	}

	// 保存到数据库
	if err := config.DB.Create(&redeemCode).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建兑换码失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":      redeemCode.Code,
		"energy":    redeemCode.Energy,
		"proDays":   redeemCode.ProDays,
		"createdAt": redeemCode.CreatedAt,
	})
}

// RedeemCode 兑换能量或Pro权益
func (rc *RedeemController) RedeemCode(c *gin.Context) {
	var req models.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求"})
		return
	}

	// 获取用户ID
	uid, exists := c.Get("uid")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证用户"})
		return
	}

	// 查找兑换码
	var redeemCode models.RedeemCode
	if err := config.DB.Where("code = ?", req.Code).First(&redeemCode).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "兑换码不存在"})
		return
	}

	// 检查是否已使用
	if redeemCode.UsedAt != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "兑换码已使用"})
		return
	}

	// 更新用户权益
	var user models.User
	if err := config.DB.Where("id = ?", uid).First(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "用户不存在"})
		return
	}

	// 更新兑换码状态
	now := time.Now()
	redeemCode.UsedAt = &now
	redeemCode.UserID = &user.ID

	// 计算新的Pro到期时间：未过期则顺延，已过期从现在起算
	updates := map[string]interface{}{}
	if redeemCode.Energy > 0 {
		updates["energy"] = user.Energy + redeemCode.Energy
	}
	var newProUntil *time.Time
	if redeemCode.ProDays > 0 {
		base := now
		if user.ProUntil != nil && user.ProUntil.After(now) {
			base = *user.ProUntil
		}
		until := base.AddDate(0, 0, redeemCode.ProDays)
		newProUntil = &until
		updates["pro_until"] = newProUntil
	}

	// 开启事务
	tx := config.DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// 更新用户权益
	if err := tx.Model(&user).Updates(updates).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "更新用户权益失败"})
		return
	}

	// 更新兑换码状态
	if err := tx.Save(&redeemCode).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "更新兑换码状态失败"})
		return
	}

	// 提交事务
	if err := tx.Commit().Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "兑换失败"})
		return
	}

	resp := gin.H{"message": "兑换成功"}
	if redeemCode.Energy > 0 {
		resp["newEnergy"] = user.Energy + redeemCode.Energy
	}
	if newProUntil != nil {
		resp["proUntil"] = newProUntil
	}
	c.JSON(http.StatusOK, resp)
}
