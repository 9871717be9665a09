package repository

import (
	"context"

	"hostctl_backend/internal/model"
)

func (s *gormStore) CreateUser(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

func (s *gormStore) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *gormStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *gormStore) UpdateUserFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields).Error
}

func (s *gormStore) GetPackage(ctx context.Context, id uint) (*model.Package, error) {
	var pkg model.Package
	if err := s.db.WithContext(ctx).First(&pkg, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &pkg, nil
}

func (s *gormStore) ListPackages(ctx context.Context, enabledOnly bool) ([]model.Package, error) {
	var pkgs []model.Package
	q := s.db.WithContext(ctx).Order("price ASC")
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	err := q.Find(&pkgs).Error
	return pkgs, err
}

func (s *gormStore) CreateOrder(ctx context.Context, order *model.SalesOrder) error {
	return s.db.WithContext(ctx).Create(order).Error
}

func (s *gormStore) GetOrder(ctx context.Context, id uint) (*model.SalesOrder, error) {
	var order model.SalesOrder
	err := s.db.WithContext(ctx).
		Preload("Package").
		Preload("Comments").
		First(&order, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (s *gormStore) GetOrderByPaymentID(ctx context.Context, method model.PaymentMethod, paymentID string) (*model.SalesOrder, error) {
	var order model.SalesOrder
	err := s.db.WithContext(ctx).
		Preload("Package").
		Where("payment_method = ? AND payment_id = ?", method, paymentID).
		First(&order).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (s *gormStore) UpdateOrderFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&model.SalesOrder{}).Where("id = ?", id).Updates(fields).Error
}

func (s *gormStore) TransitionOrder(ctx context.Context, id uint, from, to model.SalesOrderStatus) (bool, error) {
	tx := s.db.WithContext(ctx).Model(&model.SalesOrder{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return tx.RowsAffected > 0, tx.Error
}

func (s *gormStore) BindOrderSubscription(ctx context.Context, orderID, subscriptionID uint, extra map[string]interface{}) (bool, error) {
	fields := map[string]interface{}{"subscription_id": subscriptionID}
	for k, v := range extra {
		fields[k] = v
	}
	tx := s.db.WithContext(ctx).Model(&model.SalesOrder{}).
		Where("id = ? AND subscription_id IS NULL", orderID).
		Updates(fields)
	return tx.RowsAffected > 0, tx.Error
}

func (s *gormStore) BindOrderInstance(ctx context.Context, orderID, instanceID uint) (bool, error) {
	tx := s.db.WithContext(ctx).Model(&model.SalesOrder{}).
		Where("id = ? AND instance_id IS NULL AND status = ?", orderID, model.OrderWaitingDeployment).
		Updates(map[string]interface{}{
			"instance_id": instanceID,
			"status":      model.OrderDeployed,
		})
	return tx.RowsAffected > 0, tx.Error
}

func (s *gormStore) ListOrdersAwaitingInstance(ctx context.Context, appName string) ([]model.SalesOrder, error) {
	var orders []model.SalesOrder
	err := s.db.WithContext(ctx).
		Where("status = ? AND instance_id IS NULL AND app_name = ?", model.OrderWaitingDeployment, appName).
		Find(&orders).Error
	return orders, err
}

func (s *gormStore) ListOrdersBySubscription(ctx context.Context, subscriptionID uint) ([]model.SalesOrder, error) {
	var orders []model.SalesOrder
	err := s.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).Find(&orders).Error
	return orders, err
}

func (s *gormStore) ListOrdersWaitingPayment(ctx context.Context) ([]model.SalesOrder, error) {
	var orders []model.SalesOrder
	err := s.db.WithContext(ctx).
		Where("status = ? AND payment_id <> ''", model.OrderWaitingPayment).
		Order("id ASC").
		Find(&orders).Error
	return orders, err
}

func (s *gormStore) AddOrderComment(ctx context.Context, orderID uint, message string, isError bool) error {
	return s.db.WithContext(ctx).Create(&model.OrderComment{
		OrderID: orderID,
		Message: message,
		IsError: isError,
	}).Error
}
