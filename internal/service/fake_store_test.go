package service

import (
	"context"
	"sync"
	"time"

	"hostctl_backend/internal/model"
	"hostctl_backend/internal/repository"
)

// memStore is an in-memory repository.Store with the same compare-and-set
// semantics as the GORM store.
type memStore struct {
	mu sync.Mutex

	nextID      uint
	users       map[uint]*model.User
	packages    map[uint]*model.Package
	orders      map[uint]*model.SalesOrder
	comments    []model.OrderComment
	subs        map[uint]*model.Subscription
	instances   map[uint]*model.Instance
	coupons     map[string]*model.CouponCode
	activities  map[uint]*model.Activity
	emailEvents []model.EmailEvent
	webhooks    map[uint]*model.WebhookEvent
}

var _ repository.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		users:      map[uint]*model.User{},
		packages:   map[uint]*model.Package{},
		orders:     map[uint]*model.SalesOrder{},
		subs:       map[uint]*model.Subscription{},
		instances:  map[uint]*model.Instance{},
		coupons:    map[string]*model.CouponCode{},
		activities: map[uint]*model.Activity{},
		webhooks:   map[uint]*model.WebhookEvent{},
	}
}

func (m *memStore) id() uint {
	m.nextID++
	return m.nextID
}

func (m *memStore) CreateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = m.id()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memStore) GetUser(_ context.Context, id uint) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) UpdateUserFields(_ context.Context, id uint, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "first_name":
			u.FirstName = v.(string)
		case "last_name":
			u.LastName = v.(string)
		case "company_name":
			u.CompanyName = v.(string)
		}
	}
	return nil
}

func (m *memStore) addPackage(p *model.Package) *model.Package {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id()
	cp := *p
	m.packages[p.ID] = &cp
	return p
}

func (m *memStore) GetPackage(_ context.Context, id uint) (*model.Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.packages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListPackages(_ context.Context, enabledOnly bool) ([]model.Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Package
	for _, p := range m.packages {
		if !enabledOnly || p.Enabled {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) CreateOrder(_ context.Context, order *model.SalesOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order.ID = m.id()
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memStore) GetOrder(_ context.Context, id uint) (*model.SalesOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	if p, ok := m.packages[o.PackageID]; ok {
		cp.Package = *p
	}
	return &cp, nil
}

func (m *memStore) GetOrderByPaymentID(_ context.Context, method model.PaymentMethod, paymentID string) (*model.SalesOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.PaymentMethod == method && o.PaymentID == paymentID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) UpdateOrderFields(_ context.Context, id uint, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	applyOrderFields(o, fields)
	return nil
}

func applyOrderFields(o *model.SalesOrder, fields map[string]interface{}) {
	for k, v := range fields {
		switch k {
		case "payment_id":
			o.PaymentID = v.(string)
		case "app_name":
			o.AppName = v.(string)
		case "external_reference":
			o.ExternalReference = v.(string)
		case "discount_code":
			o.DiscountCode = v.(string)
		case "discount_amount":
			o.DiscountAmount = v.(*int64)
		case "discount_percentage":
			o.DiscountPercentage = v.(*float64)
		case "discount_currency":
			o.DiscountCurrency = v.(string)
		case "discount_duration":
			o.DiscountDuration = v.(*int)
		}
	}
}

func (m *memStore) TransitionOrder(_ context.Context, id uint, from, to model.SalesOrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (m *memStore) BindOrderSubscription(_ context.Context, orderID, subscriptionID uint, extra map[string]interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.SubscriptionID != nil {
		return false, nil
	}
	id := subscriptionID
	o.SubscriptionID = &id
	applyOrderFields(o, extra)
	return true, nil
}

func (m *memStore) BindOrderInstance(_ context.Context, orderID, instanceID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.InstanceID != nil || o.Status != model.OrderWaitingDeployment {
		return false, nil
	}
	id := instanceID
	o.InstanceID = &id
	o.Status = model.OrderDeployed
	return true, nil
}

func (m *memStore) listOrders(match func(*model.SalesOrder) bool) []model.SalesOrder {
	var out []model.SalesOrder
	for id := uint(1); id <= m.nextID; id++ {
		if o, ok := m.orders[id]; ok && match(o) {
			out = append(out, *o)
		}
	}
	return out
}

func (m *memStore) ListOrdersAwaitingInstance(_ context.Context, appName string) ([]model.SalesOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listOrders(func(o *model.SalesOrder) bool {
		return o.Status == model.OrderWaitingDeployment && o.InstanceID == nil && o.AppName == appName
	}), nil
}

func (m *memStore) ListOrdersBySubscription(_ context.Context, subscriptionID uint) ([]model.SalesOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listOrders(func(o *model.SalesOrder) bool {
		return o.SubscriptionID != nil && *o.SubscriptionID == subscriptionID
	}), nil
}

func (m *memStore) ListOrdersWaitingPayment(_ context.Context) ([]model.SalesOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listOrders(func(o *model.SalesOrder) bool {
		return o.Status == model.OrderWaitingPayment && o.PaymentID != ""
	}), nil
}

func (m *memStore) AddOrderComment(_ context.Context, orderID uint, message string, isError bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments = append(m.comments, model.OrderComment{OrderID: orderID, Message: message, IsError: isError})
	return nil
}

func (m *memStore) UpsertSubscription(_ context.Context, sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.PaymentMethod == sub.PaymentMethod && s.SubscriptionID == sub.SubscriptionID {
			s.CustomerRef = sub.CustomerRef
			s.CustomerID = sub.CustomerID
			s.PeriodStart = sub.PeriodStart
			s.PeriodEnd = sub.PeriodEnd
			s.IsActive = sub.IsActive
			s.Currency = sub.Currency
			s.Amount = sub.Amount
			s.Period = sub.Period
			*sub = *s
			return nil
		}
	}
	sub.ID = m.id()
	cp := *sub
	m.subs[sub.ID] = &cp
	return nil
}

func (m *memStore) GetSubscription(_ context.Context, id uint) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) GetSubscriptionByGatewayID(_ context.Context, method model.PaymentMethod, gatewayID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.PaymentMethod == method && s.SubscriptionID == gatewayID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) ListActiveSubscriptions(_ context.Context) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for id := uint(1); id <= m.nextID; id++ {
		if s, ok := m.subs[id]; ok && s.IsActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) UpdateSubscriptionFields(_ context.Context, id uint, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return repository.ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "is_active":
			s.IsActive = v.(bool)
		case "payment_id":
			s.PaymentID = v.(string)
		case "subscription_id":
			s.SubscriptionID = v.(string)
		case "cancel_requested_at":
			if v == nil {
				s.CancelRequestedAt = nil
			} else {
				t := v.(time.Time)
				s.CancelRequestedAt = &t
			}
		}
	}
	return nil
}

func (m *memStore) ClaimSubscriptionCancel(_ context.Context, id uint, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok || s.CancelRequestedAt != nil {
		return false, nil
	}
	s.CancelRequestedAt = &at
	return true, nil
}

func (m *memStore) CreateInstance(_ context.Context, inst *model.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst.ID = m.id()
	cp := *inst
	m.instances[inst.ID] = &cp
	return nil
}

func (m *memStore) GetInstance(_ context.Context, id uint) (*model.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.instances[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (m *memStore) GetInstanceByName(_ context.Context, name string) (*model.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.instances {
		if i.Name == name {
			cp := *i
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) listInstances(match func(*model.Instance) bool) []model.Instance {
	var out []model.Instance
	for id := uint(1); id <= m.nextID; id++ {
		if i, ok := m.instances[id]; ok && match(i) {
			out = append(out, *i)
		}
	}
	return out
}

func (m *memStore) ListInstancesBySubscription(_ context.Context, subscriptionID uint) ([]model.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listInstances(func(i *model.Instance) bool {
		return i.SubscriptionID != nil && *i.SubscriptionID == subscriptionID
	}), nil
}

func (m *memStore) ListLiveInstances(_ context.Context) ([]model.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listInstances(func(i *model.Instance) bool {
		return i.Status != model.InstanceDeleted
	}), nil
}

func (m *memStore) TransitionInstance(_ context.Context, id uint, from []model.InstanceStatus, to model.InstanceStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.instances[id]
	if !ok {
		return false, nil
	}
	for _, st := range from {
		if i.Status == st {
			i.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) BindInstanceSubscription(_ context.Context, instanceID, subscriptionID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.instances[instanceID]
	if !ok || i.SubscriptionID != nil {
		return false, nil
	}
	id := subscriptionID
	i.SubscriptionID = &id
	return true, nil
}

func (m *memStore) ClaimCredentialsDelivery(_ context.Context, id uint, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.instances[id]
	if !ok || i.CredentialsSentAt != nil {
		return false, nil
	}
	i.CredentialsSentAt = &at
	return true, nil
}

func (m *memStore) ClaimInstanceDeletion(_ context.Context, id uint, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.instances[id]
	if !ok || i.DeletionRequestedAt != nil {
		return false, nil
	}
	i.DeletionRequestedAt = &at
	return true, nil
}

func (m *memStore) ReleaseInstanceDeletion(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.instances[id]; ok {
		i.DeletionRequestedAt = nil
	}
	return nil
}

func (m *memStore) addCoupon(code string, coupon model.Coupon) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coupons[code] = &model.CouponCode{Code: code, Status: model.CouponUnused, Coupon: coupon}
}

func (m *memStore) GetCouponCode(_ context.Context, code string) (*model.CouponCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ReserveCouponCode(_ context.Context, code string, orderID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok || c.Status != model.CouponUnused {
		return false, nil
	}
	id := orderID
	c.Status = model.CouponReserved
	c.OrderID = &id
	return true, nil
}

func (m *memStore) ConsumeCouponCode(_ context.Context, code string, orderID uint, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok {
		return false, nil
	}
	reservedByOrder := c.Status == model.CouponReserved && c.OrderID != nil && *c.OrderID == orderID
	if c.Status != model.CouponUnused && !reservedByOrder {
		return false, nil
	}
	id := orderID
	c.Status = model.CouponConsumed
	c.OrderID = &id
	c.ConsumedAt = &at
	return true, nil
}

func (m *memStore) ReleaseCouponCode(_ context.Context, code string, orderID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok || c.Status != model.CouponReserved || c.OrderID == nil || *c.OrderID != orderID {
		return false, nil
	}
	c.Status = model.CouponUnused
	c.OrderID = nil
	return true, nil
}

func (m *memStore) CreateActivity(_ context.Context, activity *model.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	activity.ID = m.id()
	cp := *activity
	m.activities[activity.ID] = &cp
	return nil
}

func (m *memStore) FindRunningActivity(_ context.Context, typ model.ActivityType, appName string) (*model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := m.nextID; id > 0; id-- {
		a, ok := m.activities[id]
		if ok && a.Type == typ && a.AppName == appName && a.Status == model.ActivityRunning {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) UpdateActivity(_ context.Context, id uint, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activities[id]
	if !ok {
		return repository.ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "status":
			a.Status = v.(model.ActivityStatus)
		case "note":
			a.Note = v.(string)
		case "instance_id":
			instanceID := v.(uint)
			a.InstanceID = &instanceID
		}
	}
	return nil
}

func (m *memStore) ResolveRunningActivities(_ context.Context, appName string, status model.ActivityStatus, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.activities {
		if a.AppName == appName && a.Status == model.ActivityRunning {
			a.Status = status
			a.Note = note
		}
	}
	return nil
}

func (m *memStore) LastEmailEvent(_ context.Context, category model.EmailCategory, tag string) (*model.EmailEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *model.EmailEvent
	for i := range m.emailEvents {
		e := m.emailEvents[i]
		if e.Category == category && e.Tag == tag && (last == nil || e.SentAt.After(last.SentAt)) {
			last = &e
		}
	}
	if last == nil {
		return nil, repository.ErrNotFound
	}
	return last, nil
}

func (m *memStore) CreateEmailEvent(_ context.Context, event *model.EmailEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.ID = m.id()
	m.emailEvents = append(m.emailEvents, *event)
	return nil
}

func (m *memStore) CreateWebhookEventIfNotExists(_ context.Context, event *model.WebhookEvent) (bool, *model.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.webhooks {
		if w.Provider == event.Provider && w.ProviderEventID == event.ProviderEventID {
			cp := *w
			return false, &cp, nil
		}
	}
	event.ID = m.id()
	cp := *event
	m.webhooks[event.ID] = &cp
	out := cp
	return true, &out, nil
}

func (m *memStore) MarkWebhookProcessed(_ context.Context, id uint, processingError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.webhooks[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	w.ProcessedAt = &now
	w.ProcessingError = processingError
	return nil
}

func (m *memStore) HasWebhookSignal(_ context.Context, provider, eventType, appName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.webhooks {
		if w.Provider == provider && w.EventType == eventType && w.AppName == appName {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) emailsOf(category model.EmailCategory) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.emailEvents {
		if e.Category == category {
			n++
		}
	}
	return n
}

func (m *memStore) orderComments(orderID uint) []model.OrderComment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.OrderComment
	for _, c := range m.comments {
		if c.OrderID == orderID {
			out = append(out, c)
		}
	}
	return out
}
