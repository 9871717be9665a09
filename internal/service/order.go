package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"hostctl_backend/internal/model"
	"hostctl_backend/internal/repository"
	"hostctl_backend/pkg/erp"
	"hostctl_backend/pkg/gateway"
	"hostctl_backend/pkg/provisioner"
	"hostctl_backend/pkg/utils/validation"
)

type OrderService struct {
	deps    *Deps
	subs    *SubscriptionService
	coupons *CouponService
}

type CheckoutInput struct {
	CustomerID  uint
	Email       string
	CompanyName string
	PackageID   uint
	Method      model.PaymentMethod
	AppName     string
	CouponCode  string
}

// Checkout creates a Waiting Payment order and opens a checkout session for
// it at the chosen gateway.
func (s *OrderService) Checkout(ctx context.Context, in CheckoutInput) (*model.SalesOrder, gateway.CheckoutSession, error) {
	var session gateway.CheckoutSession

	pkg, err := s.deps.Store.GetPackage(ctx, in.PackageID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, session, ErrPackageUnavailable
	}
	if err != nil {
		return nil, session, err
	}
	if !pkg.Enabled {
		return nil, session, ErrPackageUnavailable
	}
	adapter, err := s.deps.Gateways.For(in.Method)
	if err != nil {
		return nil, session, err
	}
	planRef := pkg.PlanRef(in.Method)
	if planRef == "" {
		return nil, session, fmt.Errorf("%w: %s has no %s plan", ErrPackageUnavailable, pkg.Name, in.Method)
	}
	appName := strings.ToLower(strings.TrimSpace(in.AppName))
	if appName != "" {
		if err := s.CheckAppName(ctx, appName); err != nil {
			return nil, session, err
		}
	}
	couponCode := NormalizeCouponCode(in.CouponCode)
	if couponCode != "" {
		if _, err := s.coupons.Lookup(ctx, couponCode, in.CustomerID); err != nil {
			return nil, session, err
		}
	}

	order := &model.SalesOrder{
		Reference:     uuid.NewString(),
		Status:        model.OrderWaitingPayment,
		PaymentMethod: in.Method,
		PackageID:     pkg.ID,
		CustomerID:    in.CustomerID,
		CompanyName:   in.CompanyName,
		AppName:       appName,
		CouponCode:    couponCode,
		Package:       *pkg,
	}
	order.CreatedAt = s.deps.Now()
	if err := s.deps.Store.CreateOrder(ctx, order); err != nil {
		return nil, session, fmt.Errorf("create order: %w", err)
	}

	var discount *gateway.Discount
	if couponCode != "" {
		if discount, err = s.coupons.Reserve(ctx, couponCode, order); err != nil {
			return nil, session, err
		}
	}
	s.syncERP(ctx, order)

	session, err = adapter.CreateCheckout(ctx, gateway.CheckoutRequest{
		OrderReference: order.Reference,
		Email:          in.Email,
		PlanRef:        planRef,
		Amount:         ApplyDiscount(pkg.Price, pkg.Currency, discount),
		Currency:       pkg.Currency,
		CouponCode:     couponCode,
		Discount:       discount,
		SuccessURL:     fmt.Sprintf("%s/orders/%d?checkout=success", s.deps.FrontendURL, order.ID),
		CancelURL:      fmt.Sprintf("%s/orders/%d?checkout=cancel", s.deps.FrontendURL, order.ID),
	})
	if err != nil {
		s.coupons.Release(ctx, couponCode, order.ID)
		return order, session, fmt.Errorf("create checkout: %w", err)
	}
	if err := s.deps.Store.UpdateOrderFields(ctx, order.ID, map[string]interface{}{"payment_id": session.PaymentID}); err != nil {
		return order, session, err
	}
	order.PaymentID = session.PaymentID
	log.Infof("[Order] %s created for customer %d via %s", order.Reference, order.CustomerID, order.PaymentMethod)
	return order, session, nil
}

// CheckAppName validates name and makes sure no instance or pending
// deployment already uses it.
func (s *OrderService) CheckAppName(ctx context.Context, name string) error {
	if err := validation.ValidateAppName(name); err != nil {
		return err
	}
	if _, err := s.deps.Store.GetInstanceByName(ctx, name); err == nil {
		return fmt.Errorf("%w: %s is taken", ErrInvalidDeployment, name)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if _, err := s.deps.Store.FindRunningActivity(ctx, model.ActivityCreateInstance, name); err == nil {
		return fmt.Errorf("%w: %s is being deployed", ErrInvalidDeployment, name)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return nil
}

// UpdatePaymentStatus checks a Waiting Payment order against its gateway.
// When paid, the order moves to Waiting Configuration exactly once and the
// deployment is started if the order is ready for it.
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, orderID uint) (*model.SalesOrder, error) {
	order, err := s.deps.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderWaitingPayment || order.PaymentID == "" {
		return order, nil
	}
	adapter, err := s.deps.Gateways.For(order.PaymentMethod)
	if err != nil {
		return order, err
	}
	paid, err := adapter.VerifyPayment(ctx, order.PaymentID)
	if err != nil {
		return order, fmt.Errorf("verify payment %s: %w", order.PaymentID, err)
	}
	if !paid {
		return order, nil
	}

	if _, err := s.AttachSubscription(ctx, order); err != nil {
		log.Errorf("[Order] %s: attach subscription: %v", order.Reference, err)
	}
	won, err := s.deps.Store.TransitionOrder(ctx, order.ID, model.OrderWaitingPayment, model.OrderWaitingConfiguration)
	if err != nil {
		return order, err
	}
	if !won {
		return s.deps.Store.GetOrder(ctx, order.ID)
	}
	order.Status = model.OrderWaitingConfiguration
	log.Infof("[Order] %s paid", order.Reference)
	s.syncERP(ctx, order)

	if err := s.AutoDeploy(ctx, order); err != nil {
		log.Warnf("[Order] %s: auto deploy: %v", order.Reference, err)
	}
	return order, nil
}

// AttachSubscription binds the gateway subscription created by the order's
// payment. The discount and coupon are recorded on the first bind only.
func (s *OrderService) AttachSubscription(ctx context.Context, order *model.SalesOrder) (*model.Subscription, error) {
	if order.SubscriptionID != nil {
		return s.deps.Store.GetSubscription(ctx, *order.SubscriptionID)
	}
	if order.PaymentID == "" {
		return nil, nil
	}
	adapter, err := s.deps.Gateways.For(order.PaymentMethod)
	if err != nil {
		return nil, err
	}
	snap, err := adapter.SubscriptionFromPayment(ctx, order.PaymentID)
	if err != nil || snap == nil {
		return nil, err
	}
	sub, err := s.subs.Apply(ctx, order.PaymentMethod, order.CustomerID, snap, nil)
	if err != nil {
		return nil, err
	}

	extra := map[string]interface{}{}
	discount := snap.Discount
	if discount != nil {
		extra["discount_code"] = discount.Code
		extra["discount_amount"] = discount.Amount
		extra["discount_percentage"] = discount.Percentage
		extra["discount_currency"] = discount.Currency
		extra["discount_duration"] = discount.DurationMonths
	}
	won, err := s.deps.Store.BindOrderSubscription(ctx, order.ID, sub.ID, extra)
	if err != nil {
		return nil, err
	}
	if !won {
		fresh, err := s.deps.Store.GetOrder(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		*order = *fresh
		if order.SubscriptionID == nil {
			return nil, nil
		}
		return s.deps.Store.GetSubscription(ctx, *order.SubscriptionID)
	}

	order.SubscriptionID = &sub.ID
	if discount != nil {
		order.DiscountCode = discount.Code
		order.DiscountAmount = discount.Amount
		order.DiscountPercentage = discount.Percentage
		order.DiscountCurrency = discount.Currency
		order.DiscountDuration = discount.DurationMonths
	}
	code := order.CouponCode
	if discount != nil && discount.Code != "" {
		code = discount.Code
	}
	s.coupons.Consume(ctx, code, order.ID)

	if order.InstanceID != nil {
		if _, err := s.deps.Store.BindInstanceSubscription(ctx, *order.InstanceID, sub.ID); err != nil {
			return sub, err
		}
	}
	log.Infof("[Order] %s bound to subscription %s", order.Reference, sub.SubscriptionID)
	return sub, nil
}

// Configure sets the app name of a paid order and starts its deployment.
// An empty name is derived from the order's company name.
func (s *OrderService) Configure(ctx context.Context, order *model.SalesOrder, appName string) error {
	appName = strings.ToLower(strings.TrimSpace(appName))
	if appName == "" {
		appName = validation.SuggestAppName(order.CompanyName)
	}
	if appName == "" {
		return validation.ErrAppNameRequired
	}
	switch order.Status {
	case model.OrderWaitingConfiguration:
	case model.OrderWaitingDeployment:
		// Renaming is allowed after a rejected deployment request.
		if order.InstanceID != nil {
			return fmt.Errorf("%w: order is already deployed", ErrInvalidTransition)
		}
		if _, err := s.deps.Store.FindRunningActivity(ctx, model.ActivityCreateInstance, order.AppName); err == nil {
			return fmt.Errorf("%w: deployment in progress", ErrInvalidTransition)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	default:
		return fmt.Errorf("%w: order is %s", ErrInvalidTransition, order.Status)
	}
	if appName != order.AppName {
		if err := s.CheckAppName(ctx, appName); err != nil {
			return err
		}
		if err := s.deps.Store.UpdateOrderFields(ctx, order.ID, map[string]interface{}{"app_name": appName}); err != nil {
			return err
		}
		order.AppName = appName
	}
	return s.AutoDeploy(ctx, order)
}

// AutoDeploy sends the deployment request for an order that is paid, named
// and known to the ERP. The Waiting Configuration to Waiting Deployment
// transition gates the request, so it is sent once per order. A Waiting
// Deployment order without a pending request is retried.
func (s *OrderService) AutoDeploy(ctx context.Context, order *model.SalesOrder) error {
	if order.AppName == "" {
		return nil
	}
	if order.ExternalReference == "" {
		s.syncERP(ctx, order)
		if order.ExternalReference == "" {
			return nil
		}
	}

	switch order.Status {
	case model.OrderWaitingConfiguration:
		won, err := s.deps.Store.TransitionOrder(ctx, order.ID, model.OrderWaitingConfiguration, model.OrderWaitingDeployment)
		if err != nil || !won {
			return err
		}
		order.Status = model.OrderWaitingDeployment
		s.syncERP(ctx, order)
	case model.OrderWaitingDeployment:
		if order.InstanceID != nil {
			return nil
		}
		if _, err := s.deps.Store.FindRunningActivity(ctx, model.ActivityCreateInstance, order.AppName); err == nil {
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	default:
		return nil
	}
	return s.requestDeployment(ctx, order)
}

func (s *OrderService) requestDeployment(ctx context.Context, order *model.SalesOrder) error {
	if _, err := s.deps.Store.GetInstanceByName(ctx, order.AppName); err == nil {
		return s.failDeployment(ctx, order, nil, fmt.Errorf("%w: instance %s already exists", ErrInvalidDeployment, order.AppName))
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	pkg := order.Package
	if pkg.ID == 0 {
		p, err := s.deps.Store.GetPackage(ctx, order.PackageID)
		if err != nil {
			return err
		}
		pkg = *p
	}
	req := provisioner.Request{
		AppName:           order.AppName,
		Package:           pkg.Name,
		Region:            s.deps.DefaultRegion,
		OrderReference:    order.Reference,
		ActivityReference: uuid.NewString(),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode deployment request: %w", err)
	}
	orderID := order.ID
	activity := &model.Activity{
		Reference: req.ActivityReference,
		Type:      model.ActivityCreateInstance,
		AppName:   order.AppName,
		OrderID:   &orderID,
		Status:    model.ActivityRunning,
		Payload:   payload,
	}
	if err := s.deps.Store.CreateActivity(ctx, activity); err != nil {
		return fmt.Errorf("create activity: %w", err)
	}

	if err := s.deps.Deployer.RequestCreate(ctx, req); err != nil {
		if errors.Is(err, provisioner.ErrInvalidRequest) {
			err = fmt.Errorf("%w: %v", ErrInvalidDeployment, err)
		}
		return s.failDeployment(ctx, order, activity, err)
	}
	log.Infof("[Order] %s: deployment of %s requested", order.Reference, order.AppName)
	return nil
}

func (s *OrderService) failDeployment(ctx context.Context, order *model.SalesOrder, activity *model.Activity, cause error) error {
	if activity != nil {
		if err := s.deps.Store.UpdateActivity(ctx, activity.ID, map[string]interface{}{
			"status": model.ActivityFailed,
			"note":   cause.Error(),
		}); err != nil {
			log.Errorf("[Order] %s: mark activity failed: %v", order.Reference, err)
		}
	}
	if err := s.deps.Store.AddOrderComment(ctx, order.ID, "Deployment failed: "+cause.Error(), true); err != nil {
		log.Errorf("[Order] %s: add comment: %v", order.Reference, err)
	}
	log.Errorf("[Order] %s: %v", order.Reference, cause)
	return cause
}

// LinkInstance marks every order waiting for inst as deployed and carries
// the order's subscription over to the instance.
func (s *OrderService) LinkInstance(ctx context.Context, inst *model.Instance) error {
	orders, err := s.deps.Store.ListOrdersAwaitingInstance(ctx, inst.Name)
	if err != nil {
		return err
	}
	for i := range orders {
		order := &orders[i]
		won, err := s.deps.Store.BindOrderInstance(ctx, order.ID, inst.ID)
		if err != nil {
			return err
		}
		if !won {
			continue
		}
		order.Status = model.OrderDeployed
		order.InstanceID = &inst.ID
		log.Infof("[Order] %s deployed as %s", order.Reference, inst.Name)
		s.syncERP(ctx, order)

		if order.SubscriptionID != nil {
			bound, err := s.deps.Store.BindInstanceSubscription(ctx, inst.ID, *order.SubscriptionID)
			if err != nil {
				return err
			}
			if bound {
				inst.SubscriptionID = order.SubscriptionID
			}
		}
	}
	return nil
}

// syncERP mirrors order into the ERP. Failures are logged and never block
// the order lifecycle.
func (s *OrderService) syncERP(ctx context.Context, order *model.SalesOrder) {
	info := order.Status.Info()
	pkg := order.Package
	if pkg.ID == 0 {
		if p, err := s.deps.Store.GetPackage(ctx, order.PackageID); err == nil {
			pkg = *p
		}
	}
	code, err := s.deps.ERP.PushSalesOrder(ctx, erp.SalesOrder{
		Code:          order.ExternalReference,
		Reference:     order.Reference,
		Customer:      fmt.Sprintf("customer-%d", order.CustomerID),
		Company:       order.CompanyName,
		Item:          pkg.Name,
		Rate:          float64(pkg.Price) / 100,
		Currency:      pkg.Currency,
		BillingStatus: info.BillingStatus,
		Status:        info.ERPStatus,
		PercentBilled: info.PercentBilled,
	})
	if err != nil {
		log.Warnf("[Order] %s: erp sync: %v", order.Reference, err)
		return
	}
	if code == "" || code == order.ExternalReference {
		return
	}
	if err := s.deps.Store.UpdateOrderFields(ctx, order.ID, map[string]interface{}{"external_reference": code}); err != nil {
		log.Warnf("[Order] %s: store erp code: %v", order.Reference, err)
		return
	}
	order.ExternalReference = code
}
