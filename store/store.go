package store

import (
	"context"
	"errors"
	"time"

	"ReframeGo/models"
	"ReframeGo/services"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// GormRecordStore services.RecordStore的gorm实现，单表entries，
// 草稿行用is_draft标记，删除为软删除（status=1）
type GormRecordStore struct {
	db *gorm.DB
}

func NewGormRecordStore(db *gorm.DB) *GormRecordStore {
	return &GormRecordStore{db: db}
}

func (s *GormRecordStore) Fetch(ctx context.Context, userID, id string) (*models.Entry, error) {
	var entry models.Entry
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ? AND status = 0", userID, id).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *GormRecordStore) FetchAll(ctx context.Context, userID string) ([]models.Entry, error) {
	var entries []models.Entry
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_draft = 0 AND status = 0", userID).
		Order("last_modified desc").
		Find(&entries).Error
	return entries, err
}

func (s *GormRecordStore) FetchRecent(ctx context.Context, userID string, limit int) ([]models.Entry, error) {
	var entries []models.Entry
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_draft = 0 AND status = 0", userID).
		Order("last_modified desc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (s *GormRecordStore) Upsert(ctx context.Context, e *models.Entry) error {
	return s.db.WithContext(ctx).Save(e).Error
}

func (s *GormRecordStore) Delete(ctx context.Context, userID, id string) error {
	result := s.db.WithContext(ctx).
		Model(&models.Entry{}).
		Where("user_id = ? AND id = ? AND status = 0", userID, id).
		Update("status", 1)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (s *GormRecordStore) FetchDraft(ctx context.Context, userID string) (*models.Entry, error) {
	var entry models.Entry
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_draft = 1 AND status = 0", userID).
		Order("updated_at desc").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *GormRecordStore) SaveDraft(ctx context.Context, e *models.Entry) error {
	return s.db.WithContext(ctx).Save(e).Error
}

func (s *GormRecordStore) ClearDraft(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND is_draft = 1", userID).
		Delete(&models.Entry{}).Error
}

// RedisDailyCounter services.DailyCounter的Redis实现。
// 键里已含日期，过期只为清理，48小时足够跨时区
type RedisDailyCounter struct {
	client *redis.Client
}

func NewRedisDailyCounter(client *redis.Client) *RedisDailyCounter {
	return &RedisDailyCounter{client: client}
}

func (c *RedisDailyCounter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		c.client.Expire(ctx, key, 48*time.Hour)
	}
	return n, nil
}

func (c *RedisDailyCounter) Get(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}
