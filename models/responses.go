package models

// DraftStatusResponse 草稿状态响应结构体
type DraftStatusResponse struct {
	Entry           *Entry   `json:"entry"`
	VisibleSections []string `json:"visibleSections"`
	CanFinish       bool     `json:"canFinish"`
	BlockingSection string   `json:"blockingSection,omitempty"` // 无法完成时阻塞的环节
	SaveError       string   `json:"saveError,omitempty"`       // 最近一次自动保存失败信息
}

// QuotaResponse 每日配额响应结构体
type QuotaResponse struct {
	TodayCount int  `json:"todayCount"`
	Limit      int  `json:"limit"`
	CanCreate  bool `json:"canCreate"`
	IsPro      bool `json:"isPro"`
}

// SyncUpdatesResponse 同步更新响应结构体
type SyncUpdatesResponse struct {
	Entries []Entry `json:"entries"`
}

// UserResponse 用户响应结构体
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Email    string `json:"email"`
	Energy   int    `json:"energy"`
	IsPro    bool   `json:"isPro"`
}
