package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostctl_backend/internal/model"
	"hostctl_backend/pkg/gateway"
	"hostctl_backend/pkg/utils/vault"
)

func TestOnlineDeliversCredentialsOnce(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.vault.creds[vault.ParameterName("/hosting", "acme")] = map[string]string{"username": "admin"}
	inst := h.addInstance("acme", model.InstanceDeploying, nil)

	require.NoError(t, h.svc.Instances.Online(ctx, inst))
	assert.Equal(t, model.InstanceOnline, h.instance(inst.ID).Status)
	assert.Equal(t, 1, h.mailer.count("ready"))
	assert.Equal(t, 1, h.store.emailsOf(model.EmailCredentials))

	require.NoError(t, h.svc.Instances.Offline(ctx, inst))
	require.NoError(t, h.svc.Instances.StartingUp(ctx, inst))
	require.NoError(t, h.svc.Instances.Online(ctx, inst))

	assert.Equal(t, model.InstanceOnline, h.instance(inst.ID).Status)
	assert.Equal(t, 1, h.mailer.count("ready"))
}

func TestOnlineMissingCredentials(t *testing.T) {
	h := newHarness()
	inst := h.addInstance("acme", model.InstanceStartingUp, nil)

	require.NoError(t, h.svc.Instances.Online(context.Background(), inst))

	assert.Equal(t, model.InstanceOnline, h.instance(inst.ID).Status)
	assert.Equal(t, 0, h.mailer.count("ready"))
	assert.Equal(t, 1, h.mailer.count("error"))
	assert.Len(t, h.alerts.errors, 1)
}

func TestLockedInstanceIgnoresLifecycle(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	inst := h.addInstance("acme", model.InstanceDeleting, nil)

	require.NoError(t, h.svc.Instances.Online(ctx, inst))
	require.NoError(t, h.svc.Instances.StartingUp(ctx, inst))
	require.NoError(t, h.svc.Instances.Offline(ctx, inst))
	require.NoError(t, h.svc.Instances.Deleting(ctx, inst))

	assert.Equal(t, model.InstanceDeleting, h.instance(inst.ID).Status)
	assert.Empty(t, h.mailer.sent)

	require.NoError(t, h.svc.Instances.Deleted(ctx, inst))
	require.NoError(t, h.svc.Instances.Online(ctx, inst))
	assert.Equal(t, model.InstanceDeleted, h.instance(inst.ID).Status)
}

func TestOfflineOnlyFromOnline(t *testing.T) {
	h := newHarness()
	inst := h.addInstance("acme", model.InstanceStartingUp, nil)

	require.NoError(t, h.svc.Instances.Offline(context.Background(), inst))
	assert.Equal(t, model.InstanceStartingUp, h.instance(inst.ID).Status)
}

func TestCheckReachability(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	inst := h.addInstance("acme", model.InstanceOnline, nil)

	require.NoError(t, h.svc.Instances.CheckReachability(ctx, inst))
	assert.Equal(t, model.InstanceOffline, h.instance(inst.ID).Status)

	h.prober.up["https://acme.apps.example.com"] = true
	require.NoError(t, h.svc.Instances.CheckReachability(ctx, inst))
	assert.Equal(t, model.InstanceOnline, h.instance(inst.ID).Status)
}

func TestCheckReachabilityFinishesDeletion(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	inst := h.addInstance("acme", model.InstanceDeleting, nil)

	require.NoError(t, h.svc.Instances.CheckReachability(ctx, inst))
	assert.Equal(t, model.InstanceDeleting, h.instance(inst.ID).Status)

	_, _, err := h.store.CreateWebhookEventIfNotExists(ctx, &model.WebhookEvent{
		Provider:        model.ProviderProvisioner,
		ProviderEventID: "evt-1",
		EventType:       model.EventInstanceDeleted,
		AppName:         "acme",
	})
	require.NoError(t, err)
	require.NoError(t, h.svc.Instances.CheckReachability(ctx, inst))
	assert.Equal(t, model.InstanceDeleted, h.instance(inst.ID).Status)
}

func TestExpiryState(t *testing.T) {
	h := newHarness()
	now := h.now

	tests := []struct {
		name    string
		sub     *model.Subscription
		waiting bool
		expired bool
	}{
		{name: "no subscription"},
		{name: "paid period", sub: &model.Subscription{PeriodEnd: now.Add(24 * time.Hour)}},
		{name: "in grace", sub: &model.Subscription{PeriodEnd: now.Add(-48 * time.Hour)}, waiting: true},
		{name: "grace over", sub: &model.Subscription{PeriodEnd: now.Add(-7 * 24 * time.Hour)}, waiting: true, expired: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := h.svc.Instances.ExpiryState(tt.sub, now)
			assert.Equal(t, tt.waiting, state.WaitingPayment)
			assert.Equal(t, tt.expired, state.Expired)
		})
	}
}

func TestReminderSentOncePerDay(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	sub := h.addSubscription("sub_1", h.now.Add(-48*time.Hour))
	inst := h.addInstance("acme", model.InstanceOnline, sub)

	require.NoError(t, h.svc.Instances.ApplyExpiryPolicy(ctx, inst, sub))
	require.NoError(t, h.svc.Instances.ApplyExpiryPolicy(ctx, inst, sub))
	assert.Equal(t, 1, h.mailer.count("reminder"))

	h.now = h.now.Add(25 * time.Hour)
	require.NoError(t, h.svc.Instances.ApplyExpiryPolicy(ctx, inst, sub))
	assert.Equal(t, 2, h.mailer.count("reminder"))
	assert.Empty(t, h.deployer.deletes)
}

func TestExpiredInstanceDeletedOnce(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	sub := h.addSubscription("sub_1", h.now.Add(-8*24*time.Hour))
	inst := h.addInstance("acme", model.InstanceOnline, sub)

	require.NoError(t, h.svc.Instances.ApplyExpiryPolicy(ctx, inst, sub))
	require.NoError(t, h.svc.Instances.ApplyExpiryPolicy(ctx, h.instance(inst.ID), sub))

	assert.Equal(t, []string{"acme"}, h.deployer.deletes)
	assert.Equal(t, 1, h.stripe.cancelCount())
	assert.Equal(t, model.InstanceDeleting, h.instance(inst.ID).Status)
	assert.Equal(t, 1, h.mailer.count("cancelled"))

	require.NoError(t, h.svc.Instances.Deleted(ctx, h.instance(inst.ID)))
	assert.Equal(t, 1, h.stripe.cancelCount())
	assert.Equal(t, model.InstanceDeleted, h.instance(inst.ID).Status)
}

func TestCancelFailureReleasesClaim(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	sub := h.addSubscription("sub_1", h.now.Add(24*time.Hour))
	h.stripe.cancelErr = assert.AnError

	won, err := h.svc.Subscriptions.CancelOnce(ctx, sub)
	assert.True(t, won)
	require.Error(t, err)

	h.stripe.cancelErr = nil
	won, err = h.svc.Subscriptions.CancelOnce(ctx, sub)
	require.NoError(t, err)
	assert.True(t, won)
	assert.Equal(t, 1, h.stripe.cancelCount())
}

func TestDeleteRequestFailureRetriedNextSync(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	sub := h.addSubscription("sub_1", h.now.Add(-8*24*time.Hour))
	inst := h.addInstance("acme", model.InstanceOnline, sub)
	h.deployer.deleteErr = errors.New("provisioner 503")

	require.Error(t, h.svc.Reconciler.SyncSubscription(ctx, sub))
	stored := h.instance(inst.ID)
	assert.Equal(t, model.InstanceOnline, stored.Status)
	assert.Nil(t, stored.DeletionRequestedAt)
	assert.Len(t, h.alerts.errors, 1)
	assert.Equal(t, 0, h.stripe.cancelCount())

	h.deployer.deleteErr = nil
	require.NoError(t, h.svc.Reconciler.SyncSubscription(ctx, sub))

	assert.Equal(t, []string{"acme"}, h.deployer.deletes)
	assert.Equal(t, 1, h.stripe.cancelCount())
	assert.Equal(t, model.InstanceDeleting, h.instance(inst.ID).Status)
}

func TestCancelRetriedWhileDeleting(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	sub := h.addSubscription("sub_1", h.now.Add(-8*24*time.Hour))
	inst := h.addInstance("acme", model.InstanceOnline, sub)
	h.stripe.cancelErr = gateway.ErrGateway

	assert.ErrorIs(t, h.svc.Reconciler.SyncSubscription(ctx, sub), gateway.ErrGateway)
	assert.Equal(t, model.InstanceDeleting, h.instance(inst.ID).Status)
	assert.Equal(t, 0, h.stripe.cancelCount())

	h.stripe.cancelErr = nil
	fresh, err := h.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	require.NoError(t, h.svc.Reconciler.SyncSubscription(ctx, fresh))

	assert.Equal(t, []string{"acme"}, h.deployer.deletes)
	assert.Equal(t, 1, h.stripe.cancelCount())
	assert.Equal(t, 1, h.mailer.count("cancelled"))
	fresh, err = h.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, fresh.IsActive)
}

func TestDeletedInstanceRetriesCancel(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	sub := h.addSubscription("sub_1", h.now.AddDate(0, 1, 0))
	inst := h.addInstance("acme", model.InstanceDeleting, sub)
	h.stripe.cancelErr = gateway.ErrGateway

	require.NoError(t, h.svc.Instances.Deleted(ctx, inst))
	assert.Equal(t, model.InstanceDeleted, h.instance(inst.ID).Status)
	assert.Equal(t, 0, h.stripe.cancelCount())

	h.stripe.cancelErr = nil
	require.NoError(t, h.svc.Reconciler.SyncSubscription(ctx, sub))
	require.NoError(t, h.svc.Reconciler.SyncSubscription(ctx, sub))
	assert.Equal(t, 1, h.stripe.cancelCount())
}
