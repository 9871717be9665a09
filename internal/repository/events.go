package repository

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"hostctl_backend/internal/model"
)

func (s *gormStore) GetCouponCode(ctx context.Context, code string) (*model.CouponCode, error) {
	var cc model.CouponCode
	if err := s.db.WithContext(ctx).Preload("Coupon").Where("code = ?", code).First(&cc).Error; err != nil {
		return nil, notFound(err)
	}
	return &cc, nil
}

func (s *gormStore) ReserveCouponCode(ctx context.Context, code string, orderID uint) (bool, error) {
	tx := s.db.WithContext(ctx).Model(&model.CouponCode{}).
		Where("code = ? AND status = ?", code, model.CouponUnused).
		Updates(map[string]interface{}{
			"status":   model.CouponReserved,
			"order_id": orderID,
		})
	return tx.RowsAffected > 0, tx.Error
}

func (s *gormStore) ConsumeCouponCode(ctx context.Context, code string, orderID uint, at time.Time) (bool, error) {
	tx := s.db.WithContext(ctx).Model(&model.CouponCode{}).
		Where("code = ? AND (status = ? OR (status = ? AND order_id = ?))",
			code, model.CouponUnused, model.CouponReserved, orderID).
		Updates(map[string]interface{}{
			"status":      model.CouponConsumed,
			"order_id":    orderID,
			"consumed_at": at,
		})
	return tx.RowsAffected > 0, tx.Error
}

func (s *gormStore) ReleaseCouponCode(ctx context.Context, code string, orderID uint) (bool, error) {
	tx := s.db.WithContext(ctx).Model(&model.CouponCode{}).
		Where("code = ? AND status = ? AND order_id = ?", code, model.CouponReserved, orderID).
		Updates(map[string]interface{}{
			"status":   model.CouponUnused,
			"order_id": nil,
		})
	return tx.RowsAffected > 0, tx.Error
}

func (s *gormStore) CreateActivity(ctx context.Context, activity *model.Activity) error {
	return s.db.WithContext(ctx).Create(activity).Error
}

func (s *gormStore) FindRunningActivity(ctx context.Context, typ model.ActivityType, appName string) (*model.Activity, error) {
	var a model.Activity
	err := s.db.WithContext(ctx).
		Where("type = ? AND app_name = ? AND status = ?", typ, appName, model.ActivityRunning).
		Order("id DESC").
		First(&a).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *gormStore) UpdateActivity(ctx context.Context, id uint, fields map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&model.Activity{}).Where("id = ?", id).Updates(fields).Error
}

func (s *gormStore) ResolveRunningActivities(ctx context.Context, appName string, status model.ActivityStatus, note string) error {
	return s.db.WithContext(ctx).Model(&model.Activity{}).
		Where("app_name = ? AND status = ?", appName, model.ActivityRunning).
		Updates(map[string]interface{}{"status": status, "note": note}).Error
}

func (s *gormStore) LastEmailEvent(ctx context.Context, category model.EmailCategory, tag string) (*model.EmailEvent, error) {
	var ev model.EmailEvent
	err := s.db.WithContext(ctx).
		Where("category = ? AND tag = ?", category, tag).
		Order("sent_at DESC").
		First(&ev).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &ev, nil
}

func (s *gormStore) CreateEmailEvent(ctx context.Context, event *model.EmailEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}

func (s *gormStore) CreateWebhookEventIfNotExists(ctx context.Context, event *model.WebhookEvent) (bool, *model.WebhookEvent, error) {
	db := s.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored model.WebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (s *gormStore) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&model.WebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}).Error
}

func (s *gormStore) HasWebhookSignal(ctx context.Context, provider, eventType, appName string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("provider = ? AND event_type = ? AND app_name = ?", provider, eventType, appName).
		Count(&count).Error
	return count > 0, err
}
