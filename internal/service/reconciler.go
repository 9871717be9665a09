package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"hostctl_backend/internal/model"
)

// Reconciler drives orders, subscriptions and instances towards the
// gateways' view of the world. It is used by the cron jobs, the webhooks
// and the admin sync endpoint.
type Reconciler struct {
	deps      *Deps
	subs      *SubscriptionService
	orders    *OrderService
	instances *InstanceService
	coupons   *CouponService
}

type SyncSummary struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// SyncOrder settles the payment of an order, binds its subscription and
// syncs that subscription.
func (r *Reconciler) SyncOrder(ctx context.Context, orderID uint) error {
	order, err := r.orders.UpdatePaymentStatus(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status == model.OrderWaitingPayment {
		return nil
	}
	if order.Status == model.OrderWaitingConfiguration || order.Status == model.OrderWaitingDeployment {
		if err := r.orders.AutoDeploy(ctx, order); err != nil {
			log.Warnf("[Reconciler] order %s: auto deploy: %v", order.Reference, err)
		}
	}
	sub, err := r.orders.AttachSubscription(ctx, order)
	if err != nil || sub == nil {
		return err
	}
	return r.SyncSubscription(ctx, sub)
}

// SyncSubscription refreshes sub from its gateway, resumes the deployment
// of its paid orders and applies the expiry policy to its instances. A
// gateway failure stops before writing anything.
func (r *Reconciler) SyncSubscription(ctx context.Context, sub *model.Subscription) error {
	if err := r.subs.ResolvePending(ctx, sub); err != nil {
		return err
	}
	fresh, err := r.subs.Refresh(ctx, sub)
	if err != nil {
		return err
	}
	var errs []error
	if fresh.IsActive {
		if err := r.resumeOrders(ctx, fresh); err != nil {
			errs = append(errs, err)
		}
	}
	instances, err := r.deps.Store.ListInstancesBySubscription(ctx, fresh.ID)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	for i := range instances {
		if err := r.instances.ApplyExpiryPolicy(ctx, &instances[i], fresh); err != nil {
			errs = append(errs, fmt.Errorf("instance %s: %w", instances[i].Name, err))
		}
	}
	return errors.Join(errs...)
}

// resumeOrders re-checks the orders billed by sub. A paid and named order
// still in Waiting Configuration, e.g. because the ERP was unreachable at
// payment time, gets its deployment started.
func (r *Reconciler) resumeOrders(ctx context.Context, sub *model.Subscription) error {
	orders, err := r.deps.Store.ListOrdersBySubscription(ctx, sub.ID)
	if err != nil {
		return err
	}
	for i := range orders {
		order := &orders[i]
		if order.Status != model.OrderWaitingConfiguration || order.AppName == "" {
			continue
		}
		if err := r.orders.AutoDeploy(ctx, order); err != nil {
			log.Warnf("[Reconciler] order %s: auto deploy: %v", order.Reference, err)
		}
	}
	return nil
}

// SyncAll syncs every active subscription. One failure does not stop the
// run; each is logged and sent to the error channel.
func (r *Reconciler) SyncAll(ctx context.Context) (SyncSummary, error) {
	subs, err := r.deps.Store.ListActiveSubscriptions(ctx)
	if err != nil {
		return SyncSummary{}, err
	}
	summary := SyncSummary{Total: len(subs)}
	for i := range subs {
		sub := &subs[i]
		if err := r.SyncSubscription(ctx, sub); err != nil {
			summary.Failed++
			msg := fmt.Sprintf("sync of %s subscription %s failed: %v", sub.PaymentMethod, sub.SubscriptionID, err)
			log.Errorf("[Reconciler] %s", msg)
			if aerr := r.deps.Alerts.Error(msg); aerr != nil {
				log.Warnf("[Reconciler] slack alert: %v", aerr)
			}
		}
	}
	log.Infof("[Reconciler] synced %d subscriptions, %d failed", summary.Total, summary.Failed)
	if summary.Failed > 0 {
		if err := r.deps.Alerts.Info(fmt.Sprintf("subscription sync finished with %d/%d failures", summary.Failed, summary.Total)); err != nil {
			log.Warnf("[Reconciler] slack alert: %v", err)
		}
	}
	return summary, nil
}

// CancelSubscription stops renewal at the gateway. Errors are returned to
// the caller.
func (r *Reconciler) CancelSubscription(ctx context.Context, subscriptionID uint) (*model.Subscription, error) {
	sub, err := r.deps.Store.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return r.subs.Cancel(ctx, sub)
}

// PollPendingPayments verifies every order still waiting for its payment.
// An order left unpaid past CouponHoldPeriod gives its coupon code back.
func (r *Reconciler) PollPendingPayments(ctx context.Context) (SyncSummary, error) {
	orders, err := r.deps.Store.ListOrdersWaitingPayment(ctx)
	if err != nil {
		return SyncSummary{}, err
	}
	summary := SyncSummary{Total: len(orders)}
	for _, order := range orders {
		fresh, err := r.orders.UpdatePaymentStatus(ctx, order.ID)
		if err != nil {
			summary.Failed++
			log.Errorf("[Reconciler] payment check of order %s failed: %v", order.Reference, err)
			continue
		}
		if fresh.Status == model.OrderWaitingPayment && fresh.CouponCode != "" && r.coupons.holdExpired(fresh) {
			r.coupons.Release(ctx, fresh.CouponCode, fresh.ID)
		}
	}
	return summary, nil
}

// CheckInstances probes every live instance and applies the expiry policy
// with the stored subscription, which also covers subscriptions that are no
// longer active at the gateway.
func (r *Reconciler) CheckInstances(ctx context.Context) (SyncSummary, error) {
	instances, err := r.deps.Store.ListLiveInstances(ctx)
	if err != nil {
		return SyncSummary{}, err
	}
	summary := SyncSummary{Total: len(instances)}
	for i := range instances {
		inst := &instances[i]
		if err := r.checkInstance(ctx, inst); err != nil {
			summary.Failed++
			log.Errorf("[Reconciler] check of instance %s failed: %v", inst.Name, err)
		}
	}
	return summary, nil
}

func (r *Reconciler) checkInstance(ctx context.Context, inst *model.Instance) error {
	if err := r.instances.CheckReachability(ctx, inst); err != nil {
		return err
	}
	if inst.SubscriptionID == nil || inst.IsLocked() {
		return nil
	}
	sub, err := r.deps.Store.GetSubscription(ctx, *inst.SubscriptionID)
	if err != nil {
		return err
	}
	if sub.IsActive {
		return nil
	}
	return r.instances.ApplyExpiryPolicy(ctx, inst, sub)
}
