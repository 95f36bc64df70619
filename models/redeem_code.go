package models

import (
	"math/rand"
	"time"
)

// RedeemCode 兑换码，可兑换能量值或Pro天数
type RedeemCode struct {
	ID        string     `gorm:"primaryKey" json:"id"`
	Code      string     `gorm:"type:varchar(8);uniqueIndex" json:"code"`
	Energy    int        `gorm:"default:0" json:"energy"`
	ProDays   int        `gorm:"default:0" json:"proDays"`
	CreatedAt time.Time  `json:"created_at"`
	UsedAt    *time.Time `json:"used_at"`
	UserID    *string    `gorm:"index" json:"user_id"`
}

// GenerateRedeemCode 生成8位随机兑换码
func GenerateRedeemCode() string {
	const charset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // 去掉容易混淆的字符
	const codeLength = 8
	code := make([]byte, codeLength)
	for i := range code {
		code[i] = charset[rand.Intn(len(charset))]
	}
	return string(code)
}
