package models

import (
	"time"
)

// User 用户模型
type User struct {
	ID                string     `gorm:"type:varchar(50);primaryKey" json:"id"`
	Username          string     `gorm:"type:varchar(100)" json:"username"`
	Email             string     `gorm:"type:varchar(100)" json:"email"`
	CreatedAt         time.Time  `json:"createdAt"`
	Avatar            string     `gorm:"type:varchar(255)" json:"avatar"`
	LastLogin         *time.Time `json:"last_login,omitempty"`
	Provider          string     `gorm:"type:varchar(50)" json:"provider"`
	ProviderID        string     `gorm:"type:varchar(50)" json:"providerId"`
	AppleRefreshToken string     `gorm:"type:varchar(255)" json:"-"`
	IsTestUser        bool       `gorm:"default:false" json:"isTestUser"`
	Energy            int        `gorm:"default:3" json:"energy"` // 重构能量值，默认3
	ProUntil          *time.Time `json:"proUntil,omitempty"`      // Pro权益到期时间
}

func (u *User) GetDisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// IsPro 判断当前是否持有有效的Pro权益
func (u *User) IsPro(now time.Time) bool {
	return u.ProUntil != nil && u.ProUntil.After(now)
}
