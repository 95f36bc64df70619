package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ReframeGo/models"
)

// ErrQuotaExceeded 今日免费记录条数已用完
var ErrQuotaExceeded = errors.New("今日免费记录条数已用完")

// DailyCounter 按键维护当日计数的端口，生产实现基于Redis
type DailyCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
}

// QuotaService 每日新建记录配额。按本地日历日计数，次日零点自然重置；
// 仅用于产品体验限制，客户端侧不可信，不构成安全边界。
type QuotaService struct {
	counter DailyCounter
	limit   int
	loc     *time.Location
	now     func() time.Time
}

// NewQuotaService 创建配额服务，loc决定"今天"的时区
func NewQuotaService(counter DailyCounter, limit int, loc *time.Location) *QuotaService {
	if loc == nil {
		loc = time.Local
	}
	return &QuotaService{
		counter: counter,
		limit:   limit,
		loc:     loc,
		now:     time.Now,
	}
}

// dayKey 计数键包含本地日历日期，跨天即自然换键
func (s *QuotaService) dayKey(userID string) string {
	return fmt.Sprintf("quota:%s:%s", userID, s.now().In(s.loc).Format("2006-01-02"))
}

// TodayCount 今日已创建条数
func (s *QuotaService) TodayCount(ctx context.Context, userID string) (int, error) {
	n, err := s.counter.Get(ctx, s.dayKey(userID))
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Limit 每日免费配额
func (s *QuotaService) Limit() int {
	return s.limit
}

// CanCreate 是否允许新建记录，Pro用户无条件放行
func (s *QuotaService) CanCreate(ctx context.Context, user *models.User) (bool, error) {
	if user.IsPro(s.now()) {
		return true, nil
	}
	count, err := s.TodayCount(ctx, user.ID)
	if err != nil {
		return false, err
	}
	return count < s.limit, nil
}

// IncrementToday 今日计数加一，在新草稿首次成功落库时调用
func (s *QuotaService) IncrementToday(ctx context.Context, userID string) error {
	_, err := s.counter.Incr(ctx, s.dayKey(userID))
	return err
}
