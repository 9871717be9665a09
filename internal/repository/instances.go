package repository

import (
	"context"
	"time"

	"hostctl_backend/internal/model"
)

func (s *gormStore) CreateInstance(ctx context.Context, inst *model.Instance) error {
	return s.db.WithContext(ctx).Create(inst).Error
}

func (s *gormStore) GetInstance(ctx context.Context, id uint) (*model.Instance, error) {
	var inst model.Instance
	if err := s.db.WithContext(ctx).Preload("Package").First(&inst, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &inst, nil
}

func (s *gormStore) GetInstanceByName(ctx context.Context, name string) (*model.Instance, error) {
	var inst model.Instance
	if err := s.db.WithContext(ctx).Preload("Package").Where("name = ?", name).First(&inst).Error; err != nil {
		return nil, notFound(err)
	}
	return &inst, nil
}

func (s *gormStore) ListInstancesBySubscription(ctx context.Context, subscriptionID uint) ([]model.Instance, error) {
	var insts []model.Instance
	err := s.db.WithContext(ctx).Preload("Package").
		Where("subscription_id = ?", subscriptionID).
		Find(&insts).Error
	return insts, err
}

func (s *gormStore) ListLiveInstances(ctx context.Context) ([]model.Instance, error) {
	var insts []model.Instance
	err := s.db.WithContext(ctx).Preload("Package").
		Where("status <> ?", model.InstanceDeleted).
		Order("id ASC").
		Find(&insts).Error
	return insts, err
}

func (s *gormStore) TransitionInstance(ctx context.Context, id uint, from []model.InstanceStatus, to model.InstanceStatus) (bool, error) {
	tx := s.db.WithContext(ctx).Model(&model.Instance{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	return tx.RowsAffected > 0, tx.Error
}

func (s *gormStore) BindInstanceSubscription(ctx context.Context, instanceID, subscriptionID uint) (bool, error) {
	tx := s.db.WithContext(ctx).Model(&model.Instance{}).
		Where("id = ? AND subscription_id IS NULL", instanceID).
		Update("subscription_id", subscriptionID)
	return tx.RowsAffected > 0, tx.Error
}

func (s *gormStore) ClaimCredentialsDelivery(ctx context.Context, id uint, at time.Time) (bool, error) {
	tx := s.db.WithContext(ctx).Model(&model.Instance{}).
		Where("id = ? AND credentials_sent_at IS NULL", id).
		Update("credentials_sent_at", at)
	return tx.RowsAffected > 0, tx.Error
}

func (s *gormStore) ClaimInstanceDeletion(ctx context.Context, id uint, at time.Time) (bool, error) {
	tx := s.db.WithContext(ctx).Model(&model.Instance{}).
		Where("id = ? AND deletion_requested_at IS NULL", id).
		Update("deletion_requested_at", at)
	return tx.RowsAffected > 0, tx.Error
}

func (s *gormStore) ReleaseInstanceDeletion(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&model.Instance{}).
		Where("id = ?", id).
		Update("deletion_requested_at", nil).Error
}
