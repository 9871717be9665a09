package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"hostctl_backend/internal/model"
	"hostctl_backend/internal/repository"
	"hostctl_backend/pkg/email"
	"hostctl_backend/pkg/subscription"
)

var (
	liveStatuses = []model.InstanceStatus{
		model.InstanceDeploying,
		model.InstanceStartingUp,
		model.InstanceOnline,
		model.InstanceOffline,
	}
	notDeleted = append(append([]model.InstanceStatus{}, liveStatuses...), model.InstanceDeleting)
)

type InstanceService struct {
	deps   *Deps
	subs   *SubscriptionService
	orders *OrderService
}

func (s *InstanceService) URL(inst *model.Instance) string {
	return fmt.Sprintf("https://%s.%s", inst.Name, s.deps.ClusterDomain)
}

func instanceTag(inst *model.Instance) string {
	return fmt.Sprintf("instance-%d", inst.ID)
}

// transition applies a compare-and-set move and reloads inst afterwards.
func (s *InstanceService) transition(ctx context.Context, inst *model.Instance, from []model.InstanceStatus, to model.InstanceStatus) (bool, error) {
	won, err := s.deps.Store.TransitionInstance(ctx, inst.ID, from, to)
	if err != nil {
		return false, fmt.Errorf("transition instance %s to %s: %w", inst.Name, to, err)
	}
	if won {
		log.Infof("[Instance] %s: %s -> %s", inst.Name, inst.Status, to)
		inst.Status = to
		return true, nil
	}
	fresh, err := s.deps.Store.GetInstance(ctx, inst.ID)
	if err != nil {
		return false, err
	}
	*inst = *fresh
	return false, nil
}

func without(statuses []model.InstanceStatus, drop model.InstanceStatus) []model.InstanceStatus {
	out := make([]model.InstanceStatus, 0, len(statuses))
	for _, st := range statuses {
		if st != drop {
			out = append(out, st)
		}
	}
	return out
}

func (s *InstanceService) StartingUp(ctx context.Context, inst *model.Instance) error {
	_, err := s.transition(ctx, inst, without(liveStatuses, model.InstanceStartingUp), model.InstanceStartingUp)
	return err
}

// Online brings a live instance online. The first time the instance
// becomes reachable its credentials are mailed to the customer before it
// is marked Online. Waiting orders are linked on every call.
func (s *InstanceService) Online(ctx context.Context, inst *model.Instance) error {
	if inst.IsLocked() {
		return nil
	}
	if inst.Status == model.InstanceDeploying {
		if _, err := s.transition(ctx, inst, []model.InstanceStatus{model.InstanceDeploying}, model.InstanceStartingUp); err != nil {
			return err
		}
	}
	switch inst.Status {
	case model.InstanceStartingUp:
		s.deliverCredentials(ctx, inst)
		if _, err := s.transition(ctx, inst, []model.InstanceStatus{model.InstanceStartingUp}, model.InstanceOnline); err != nil {
			return err
		}
	case model.InstanceOffline:
		if _, err := s.transition(ctx, inst, []model.InstanceStatus{model.InstanceOffline}, model.InstanceOnline); err != nil {
			return err
		}
	}
	if inst.IsLocked() {
		return nil
	}
	return s.orders.LinkInstance(ctx, inst)
}

// Offline only applies to an instance that was Online.
func (s *InstanceService) Offline(ctx context.Context, inst *model.Instance) error {
	_, err := s.transition(ctx, inst, []model.InstanceStatus{model.InstanceOnline}, model.InstanceOffline)
	return err
}

func (s *InstanceService) Deleting(ctx context.Context, inst *model.Instance) error {
	_, err := s.transition(ctx, inst, liveStatuses, model.InstanceDeleting)
	return err
}

// Deleted is terminal. Pending activities are closed and the subscription
// is canceled; a failed cancel is logged and left for the next sync.
func (s *InstanceService) Deleted(ctx context.Context, inst *model.Instance) error {
	won, err := s.transition(ctx, inst, notDeleted, model.InstanceDeleted)
	if err != nil || !won {
		return err
	}
	if err := s.deps.Store.ResolveRunningActivities(ctx, inst.Name, model.ActivitySuccess, "instance deleted"); err != nil {
		log.Errorf("[Instance] %s: resolve activities: %v", inst.Name, err)
	}
	if inst.SubscriptionID == nil {
		return nil
	}
	sub, err := s.deps.Store.GetSubscription(ctx, *inst.SubscriptionID)
	if err != nil {
		log.Errorf("[Instance] %s: load subscription: %v", inst.Name, err)
		return nil
	}
	if _, err := s.subs.CancelOnce(ctx, sub); err != nil {
		log.Errorf("[Instance] %s: cancel subscription: %v", inst.Name, err)
	}
	return nil
}

// CheckReachability probes the instance and moves it between Online and
// Offline. A Deleting instance is finished off once the deployment system
// has reported the deletion.
func (s *InstanceService) CheckReachability(ctx context.Context, inst *model.Instance) error {
	switch inst.Status {
	case model.InstanceDeleted:
		return nil
	case model.InstanceDeleting:
		done, err := s.deps.Store.HasWebhookSignal(ctx, model.ProviderProvisioner, model.EventInstanceDeleted, inst.Name)
		if err != nil || !done {
			return err
		}
		return s.Deleted(ctx, inst)
	}
	if s.deps.Prober.Probe(ctx, s.URL(inst)) {
		return s.Online(ctx, inst)
	}
	return s.Offline(ctx, inst)
}

// ExpiryState is the payment state of the instance's current period. An
// instance without a subscription is never waiting for payment.
func (s *InstanceService) ExpiryState(sub *model.Subscription, now time.Time) subscription.ExpiryState {
	if sub == nil || sub.PeriodEnd.IsZero() {
		return subscription.ExpiryState{}
	}
	return s.deps.Policy.Evaluate(sub.PeriodEnd, now)
}

// ApplyExpiryPolicy reminds the customer while a period is unpaid and
// deletes the instance once the grace period is over. The deletion request
// and the subscription cancel happen once per instance. A deleted instance
// whose subscription is still active gets the cancel retried.
func (s *InstanceService) ApplyExpiryPolicy(ctx context.Context, inst *model.Instance, sub *model.Subscription) error {
	if inst.Status == model.InstanceDeleted {
		if sub != nil && sub.IsActive {
			return s.cancelForDeletion(ctx, inst, sub)
		}
		return nil
	}
	now := s.deps.Now()
	state := s.ExpiryState(sub, now)
	if !state.WaitingPayment {
		return nil
	}
	if !state.Expired {
		return s.remind(ctx, inst, sub, state, now)
	}
	log.Warnf("[Instance] %s expired at %s", inst.Name, state.ExpiryAt.Format(time.RFC3339))
	return s.Deprovision(ctx, inst, sub)
}

// Deprovision asks the deployment system to delete inst and cancels its
// subscription. The delete request is sent once. A failed request gives the
// deletion claim back so the next sync retries it, and the cancel is retried
// for as long as the instance sits in Deleting.
func (s *InstanceService) Deprovision(ctx context.Context, inst *model.Instance, sub *model.Subscription) error {
	claimed, err := s.deps.Store.ClaimInstanceDeletion(ctx, inst.ID, s.deps.Now())
	if err != nil {
		return err
	}
	if !claimed {
		if inst.Status != model.InstanceDeleting {
			return nil
		}
		return s.cancelForDeletion(ctx, inst, sub)
	}
	if err := s.deps.Deployer.RequestDelete(ctx, inst.Name); err != nil {
		if rerr := s.deps.Store.ReleaseInstanceDeletion(ctx, inst.ID); rerr != nil {
			log.Errorf("[Instance] %s: release deletion claim: %v", inst.Name, rerr)
		}
		s.alert(fmt.Sprintf("delete request for %s failed: %v", inst.Name, err))
		return fmt.Errorf("request delete %s: %w", inst.Name, err)
	}
	instanceID := inst.ID
	if err := s.deps.Store.CreateActivity(ctx, &model.Activity{
		Reference:  uuid.NewString(),
		Type:       model.ActivityDeleteInstance,
		AppName:    inst.Name,
		InstanceID: &instanceID,
		Status:     model.ActivityRunning,
	}); err != nil {
		log.Errorf("[Instance] %s: record delete activity: %v", inst.Name, err)
	}
	if err := s.Deleting(ctx, inst); err != nil {
		return err
	}
	return s.cancelForDeletion(ctx, inst, sub)
}

func (s *InstanceService) cancelForDeletion(ctx context.Context, inst *model.Instance, sub *model.Subscription) error {
	if sub == nil {
		return nil
	}
	canceled, err := s.subs.CancelOnce(ctx, sub)
	if err != nil {
		return err
	}
	if canceled {
		s.notify(ctx, inst, model.EmailCancelled, func(to, tag string, data email.InstanceData) error {
			return s.deps.Mailer.SendSubscriptionCancelled(ctx, to, tag, data)
		})
	}
	return nil
}

func (s *InstanceService) remind(ctx context.Context, inst *model.Instance, sub *model.Subscription, state subscription.ExpiryState, now time.Time) error {
	tag := instanceTag(inst)
	var lastSent *time.Time
	last, err := s.deps.Store.LastEmailEvent(ctx, model.EmailPaymentReminder, tag)
	switch {
	case err == nil:
		lastSent = &last.SentAt
	case !errors.Is(err, repository.ErrNotFound):
		return err
	}
	if !s.deps.Policy.ReminderDue(lastSent, now) {
		return nil
	}
	daysLeft := int(math.Ceil(state.ExpiryAt.Sub(now).Hours() / 24))
	s.notify(ctx, inst, model.EmailPaymentReminder, func(to, tag string, data email.InstanceData) error {
		return s.deps.Mailer.SendPaymentReminder(ctx, to, tag, email.PaymentReminderData{
			InstanceData: data,
			PeriodEnd:    sub.PeriodEnd,
			ExpiryAt:     state.ExpiryAt,
			DaysLeft:     daysLeft,
			BillingURL:   s.deps.FrontendURL + "/billing",
		})
	})
	return nil
}

// Credentials returns the stored credentials of inst.
func (s *InstanceService) Credentials(ctx context.Context, inst *model.Instance) (map[string]string, error) {
	prefix, err := s.vaultPrefix(ctx, inst)
	if err != nil {
		return nil, err
	}
	return s.deps.Vault.Credentials(ctx, prefix, inst.Name)
}

func (s *InstanceService) vaultPrefix(ctx context.Context, inst *model.Instance) (string, error) {
	if inst.Package.ID != 0 {
		return inst.Package.VaultPath, nil
	}
	pkg, err := s.deps.Store.GetPackage(ctx, inst.PackageID)
	if err != nil {
		return "", err
	}
	inst.Package = *pkg
	return pkg.VaultPath, nil
}

func (s *InstanceService) deliverCredentials(ctx context.Context, inst *model.Instance) {
	claimed, err := s.deps.Store.ClaimCredentialsDelivery(ctx, inst.ID, s.deps.Now())
	if err != nil {
		log.Errorf("[Instance] %s: claim credentials delivery: %v", inst.Name, err)
		return
	}
	if !claimed {
		return
	}
	_, err = s.Credentials(ctx, inst)
	switch {
	case err == nil:
		s.notify(ctx, inst, model.EmailCredentials, func(to, tag string, data email.InstanceData) error {
			return s.deps.Mailer.SendCredentialsReady(ctx, to, tag, data)
		})
	case errors.Is(err, ErrCredentialsNotFound):
		s.alert(fmt.Sprintf("credentials for %s are missing", inst.Name))
		s.notify(ctx, inst, model.EmailCredentialsError, func(to, tag string, data email.InstanceData) error {
			return s.deps.Mailer.SendCredentialsError(ctx, to, tag, data)
		})
	default:
		log.Errorf("[Instance] %s: read credentials: %v", inst.Name, err)
	}
}

// notify sends one email to the instance owner and records it.
func (s *InstanceService) notify(ctx context.Context, inst *model.Instance, category model.EmailCategory, send func(to, tag string, data email.InstanceData) error) {
	if s.deps.Mailer == nil {
		return
	}
	owner, err := s.deps.Store.GetUser(ctx, inst.CustomerID)
	if err != nil {
		log.Errorf("[Instance] %s: load owner: %v", inst.Name, err)
		return
	}
	pkgName := inst.Package.Name
	if pkgName == "" {
		if pkg, err := s.deps.Store.GetPackage(ctx, inst.PackageID); err == nil {
			pkgName = pkg.Name
		}
	}
	tag := instanceTag(inst)
	data := email.InstanceData{
		CompanyName:  inst.CompanyName,
		InstanceName: inst.Name,
		InstanceURL:  s.URL(inst),
		PackageName:  pkgName,
	}
	if err := send(owner.Email, tag, data); err != nil {
		log.Errorf("[Instance] %s: send %s email: %v", inst.Name, category, err)
		return
	}
	if err := s.deps.Store.CreateEmailEvent(ctx, &model.EmailEvent{
		Category:  category,
		Tag:       tag,
		Recipient: owner.Email,
		SentAt:    s.deps.Now(),
	}); err != nil {
		log.Errorf("[Instance] %s: record %s email: %v", inst.Name, category, err)
	}
}

func (s *InstanceService) alert(message string) {
	if err := s.deps.Alerts.Error(message); err != nil {
		log.Warnf("[Instance] slack alert: %v", err)
	}
}
