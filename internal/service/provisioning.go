package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"hostctl_backend/internal/model"
	"hostctl_backend/internal/repository"
)

// ProvisionerEvent is a callback from the deployment system.
type ProvisionerEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type" validate:"required,oneof=instance.created instance.deleted"`
	AppName string `json:"app_name" validate:"required"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (e ProvisionerEvent) Succeeded() bool {
	return e.Status == "" || e.Status == "success"
}

type ProvisioningService struct {
	deps      *Deps
	instances *InstanceService
}

// HandleEvent records ev and applies it. An event already processed is
// acknowledged without being applied again.
func (s *ProvisioningService) HandleEvent(ctx context.Context, ev ProvisionerEvent, payload []byte) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	created, stored, err := s.deps.Store.CreateWebhookEventIfNotExists(ctx, &model.WebhookEvent{
		Provider:        model.ProviderProvisioner,
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
		AppName:         ev.AppName,
		Payload:         datatypes.JSON(payload),
	})
	if err != nil {
		return fmt.Errorf("record provisioner event: %w", err)
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		return nil
	}

	err = s.apply(ctx, ev)
	var processingError string
	if err != nil {
		processingError = err.Error()
	}
	if merr := s.deps.Store.MarkWebhookProcessed(ctx, stored.ID, processingError); merr != nil {
		log.Errorf("[Provisioning] mark event %s processed: %v", ev.ID, merr)
	}
	return err
}

func (s *ProvisioningService) apply(ctx context.Context, ev ProvisionerEvent) error {
	switch ev.Type {
	case model.EventInstanceCreated:
		return s.instanceCreated(ctx, ev)
	case model.EventInstanceDeleted:
		return s.instanceDeleted(ctx, ev)
	}
	return fmt.Errorf("unknown provisioner event %q", ev.Type)
}

func (s *ProvisioningService) instanceCreated(ctx context.Context, ev ProvisionerEvent) error {
	activity, err := s.deps.Store.FindRunningActivity(ctx, model.ActivityCreateInstance, ev.AppName)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: create %s", ErrActivityNotFound, ev.AppName)
	}
	if err != nil {
		return err
	}

	if !ev.Succeeded() {
		note := ev.Message
		if note == "" {
			note = "deployment failed"
		}
		if err := s.deps.Store.UpdateActivity(ctx, activity.ID, map[string]interface{}{
			"status": model.ActivityFailed,
			"note":   note,
		}); err != nil {
			return err
		}
		if activity.OrderID != nil {
			if err := s.deps.Store.AddOrderComment(ctx, *activity.OrderID, "Deployment failed: "+note, true); err != nil {
				return err
			}
		}
		log.Errorf("[Provisioning] deployment of %s failed: %s", ev.AppName, note)
		return nil
	}

	if activity.OrderID == nil {
		return fmt.Errorf("activity %s has no order", activity.Reference)
	}
	order, err := s.deps.Store.GetOrder(ctx, *activity.OrderID)
	if err != nil {
		return err
	}
	inst, err := s.deps.Store.GetInstanceByName(ctx, ev.AppName)
	if errors.Is(err, repository.ErrNotFound) {
		inst = &model.Instance{
			Name:           ev.AppName,
			PackageID:      order.PackageID,
			CustomerID:     order.CustomerID,
			CompanyName:    order.CompanyName,
			Status:         model.InstanceDeploying,
			SubscriptionID: order.SubscriptionID,
		}
		if err := s.deps.Store.CreateInstance(ctx, inst); err != nil {
			return fmt.Errorf("create instance %s: %w", ev.AppName, err)
		}
		log.Infof("[Provisioning] instance %s created for order %s", inst.Name, order.Reference)
	} else if err != nil {
		return err
	}

	if err := s.deps.Store.UpdateActivity(ctx, activity.ID, map[string]interface{}{
		"status":      model.ActivitySuccess,
		"instance_id": inst.ID,
	}); err != nil {
		return err
	}
	return s.instances.StartingUp(ctx, inst)
}

func (s *ProvisioningService) instanceDeleted(ctx context.Context, ev ProvisionerEvent) error {
	inst, err := s.deps.Store.GetInstanceByName(ctx, ev.AppName)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warnf("[Provisioning] deleted instance %s is unknown", ev.AppName)
		return s.deps.Store.ResolveRunningActivities(ctx, ev.AppName, model.ActivitySuccess, "instance deleted")
	}
	if err != nil {
		return err
	}
	return s.instances.Deleted(ctx, inst)
}
