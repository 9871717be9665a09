package repository

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"hostctl_backend/internal/model"
)

func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.Subscription) error {
	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "payment_method"},
			{Name: "subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"customer_ref",
			"customer_id",
			"period_start",
			"period_end",
			"is_active",
			"currency",
			"amount",
			"period",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	return db.Where("payment_method = ? AND subscription_id = ?", sub.PaymentMethod, sub.SubscriptionID).
		First(sub).Error
}

func (s *gormStore) GetSubscription(ctx context.Context, id uint) (*model.Subscription, error) {
	var sub model.Subscription
	if err := s.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *gormStore) GetSubscriptionByGatewayID(ctx context.Context, method model.PaymentMethod, gatewayID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := s.db.WithContext(ctx).
		Where("payment_method = ? AND subscription_id = ?", method, gatewayID).
		First(&sub).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *gormStore) ListActiveSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&subs).Error
	return subs, err
}

func (s *gormStore) UpdateSubscriptionFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&model.Subscription{}).Where("id = ?", id).Updates(fields).Error
}

func (s *gormStore) ClaimSubscriptionCancel(ctx context.Context, id uint, at time.Time) (bool, error) {
	tx := s.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ? AND cancel_requested_at IS NULL", id).
		Update("cancel_requested_at", at)
	return tx.RowsAffected > 0, tx.Error
}
