package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"hostctl_backend/internal/model"
	"hostctl_backend/pkg/gateway"
	"hostctl_backend/pkg/lock"
)

const pendingPaymentLockTTL = 2 * time.Minute

// SubscriptionService keeps local subscription records in line with the
// gateways. It never touches instances.
type SubscriptionService struct {
	deps *Deps
}

func subscriptionLockKey(id uint) string {
	return fmt.Sprintf("subscription:%d", id)
}

// Apply writes snap into the store keyed on (method, snap.ID). Fields the
// provider left empty keep the value from prev.
func (s *SubscriptionService) Apply(ctx context.Context, method model.PaymentMethod, customerID uint, snap *gateway.Snapshot, prev *model.Subscription) (*model.Subscription, error) {
	rec := &model.Subscription{
		SubscriptionID: snap.ID,
		PaymentMethod:  method,
		CustomerRef:    snap.CustomerRef,
		CustomerID:     customerID,
		PeriodStart:    snap.PeriodStart,
		PeriodEnd:      snap.PeriodEnd,
		IsActive:       !snap.Canceled,
		Currency:       snap.Currency,
		Amount:         snap.Amount,
		Period:         snap.Period,
	}
	if prev != nil {
		if rec.PeriodEnd.IsZero() {
			rec.PeriodEnd = prev.PeriodEnd
		}
		if rec.PeriodStart.IsZero() {
			rec.PeriodStart = prev.PeriodStart
		}
		if rec.CustomerID == 0 {
			rec.CustomerID = prev.CustomerID
		}
		if rec.CustomerRef == "" {
			rec.CustomerRef = prev.CustomerRef
		}
		rec.PaymentID = prev.PaymentID
		rec.CancelRequestedAt = prev.CancelRequestedAt
	}
	if err := s.deps.Store.UpsertSubscription(ctx, rec); err != nil {
		return nil, fmt.Errorf("upsert subscription %s: %w", snap.ID, err)
	}
	return rec, nil
}

// Refresh pulls the provider's view of sub and stores it. On any gateway
// error nothing is written.
func (s *SubscriptionService) Refresh(ctx context.Context, sub *model.Subscription) (*model.Subscription, error) {
	adapter, err := s.deps.Gateways.For(sub.PaymentMethod)
	if err != nil {
		return nil, err
	}
	snap, err := adapter.FetchSubscription(ctx, sub.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription %s: %w", sub.SubscriptionID, err)
	}
	if snap == nil {
		log.Warnf("[Subscription] %s %s no longer exists at the provider", sub.PaymentMethod, sub.SubscriptionID)
		if sub.IsActive {
			if err := s.deps.Store.UpdateSubscriptionFields(ctx, sub.ID, map[string]interface{}{"is_active": false}); err != nil {
				return nil, err
			}
			sub.IsActive = false
		}
		return sub, nil
	}
	return s.Apply(ctx, sub.PaymentMethod, sub.CustomerID, snap, sub)
}

// AttachPendingPayment records a payment that should replace the card
// behind sub on the next sync.
func (s *SubscriptionService) AttachPendingPayment(ctx context.Context, sub *model.Subscription, paymentID string) error {
	if err := s.deps.Store.UpdateSubscriptionFields(ctx, sub.ID, map[string]interface{}{"payment_id": paymentID}); err != nil {
		return err
	}
	sub.PaymentID = paymentID
	return nil
}

// ResolvePending turns a recorded payment into the subscription that backs
// sub from now on. Only one worker resolves a given subscription at a time;
// the others skip it.
func (s *SubscriptionService) ResolvePending(ctx context.Context, sub *model.Subscription) error {
	if sub.PaymentID == "" {
		return nil
	}
	adapter, err := s.deps.Gateways.For(sub.PaymentMethod)
	if err != nil {
		return err
	}
	resolver, ok := adapter.(gateway.PendingPaymentResolver)
	if !ok {
		return nil
	}

	release, err := s.deps.Locker.Acquire(ctx, subscriptionLockKey(sub.ID), pendingPaymentLockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		log.Infof("[Subscription] %d is being resolved elsewhere", sub.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("lock subscription %d: %w", sub.ID, err)
	}
	defer release()

	newID, err := resolver.ResolvePendingPayment(ctx, sub.PaymentID, sub.SubscriptionID)
	if err != nil {
		return fmt.Errorf("resolve pending payment %s: %w", sub.PaymentID, err)
	}
	if newID == "" {
		return nil
	}
	fields := map[string]interface{}{"subscription_id": newID, "payment_id": ""}
	if err := s.deps.Store.UpdateSubscriptionFields(ctx, sub.ID, fields); err != nil {
		return err
	}
	log.Infof("[Subscription] %d now backed by %s", sub.ID, newID)
	sub.SubscriptionID = newID
	sub.PaymentID = ""
	return nil
}

// Cancel stops renewal at the provider and refreshes the local record.
func (s *SubscriptionService) Cancel(ctx context.Context, sub *model.Subscription) (*model.Subscription, error) {
	adapter, err := s.deps.Gateways.For(sub.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if err := adapter.Cancel(ctx, sub.SubscriptionID); err != nil {
		return nil, fmt.Errorf("cancel subscription %s: %w", sub.SubscriptionID, err)
	}
	log.Infof("[Subscription] canceled %s %s", sub.PaymentMethod, sub.SubscriptionID)
	return s.Refresh(ctx, sub)
}

// CancelOnce cancels sub unless another caller already claimed the
// cancellation. A failed cancel gives the claim back.
func (s *SubscriptionService) CancelOnce(ctx context.Context, sub *model.Subscription) (bool, error) {
	won, err := s.deps.Store.ClaimSubscriptionCancel(ctx, sub.ID, s.deps.Now())
	if err != nil || !won {
		return false, err
	}
	if _, err := s.Cancel(ctx, sub); err != nil {
		if rerr := s.deps.Store.UpdateSubscriptionFields(ctx, sub.ID, map[string]interface{}{"cancel_requested_at": nil}); rerr != nil {
			log.Errorf("[Subscription] release cancel claim on %d: %v", sub.ID, rerr)
		}
		return true, err
	}
	return true, nil
}
