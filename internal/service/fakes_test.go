package service

import (
	"context"
	"sync"
	"time"

	"hostctl_backend/internal/model"
	"hostctl_backend/pkg/email"
	"hostctl_backend/pkg/gateway"
	"hostctl_backend/pkg/provisioner"
	"hostctl_backend/pkg/subscription"
	"hostctl_backend/pkg/utils/vault"
)

type fakeGateway struct {
	mu sync.Mutex

	method    model.PaymentMethod
	paid      map[string]bool
	fromPay   map[string]*gateway.Snapshot
	subs      map[string]*gateway.Snapshot
	fetchErr    error
	cancelErr   error
	checkoutErr error
	resolved  map[string]string

	checkouts []gateway.CheckoutRequest
	cancels   []string
	fetches   int
}

func newFakeGateway(method model.PaymentMethod) *fakeGateway {
	return &fakeGateway{
		method:   method,
		paid:     map[string]bool{},
		fromPay:  map[string]*gateway.Snapshot{},
		subs:     map[string]*gateway.Snapshot{},
		resolved: map[string]string{},
	}
}

func (g *fakeGateway) Method() model.PaymentMethod { return g.method }

func (g *fakeGateway) CreateCheckout(_ context.Context, req gateway.CheckoutRequest) (gateway.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkouts = append(g.checkouts, req)
	if g.checkoutErr != nil {
		return gateway.CheckoutSession{}, g.checkoutErr
	}
	return gateway.CheckoutSession{PaymentID: "pay_" + req.OrderReference, URL: "https://pay.example/" + req.OrderReference}, nil
}

func (g *fakeGateway) VerifyPayment(_ context.Context, paymentID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paid[paymentID], nil
}

func (g *fakeGateway) SubscriptionFromPayment(_ context.Context, paymentID string) (*gateway.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	snap, ok := g.fromPay[paymentID]
	if !ok {
		return nil, nil
	}
	cp := *snap
	return &cp, nil
}

func (g *fakeGateway) FetchSubscription(_ context.Context, id string) (*gateway.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetches++
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	snap, ok := g.subs[id]
	if !ok {
		return nil, nil
	}
	cp := *snap
	return &cp, nil
}

func (g *fakeGateway) Cancel(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancels = append(g.cancels, id)
	if snap, ok := g.subs[id]; ok {
		snap.Canceled = true
	}
	return nil
}

func (g *fakeGateway) ResolvePendingPayment(_ context.Context, paymentID, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resolved[paymentID], nil
}

func (g *fakeGateway) setSubscription(snap gateway.Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs[snap.ID] = &snap
}

func (g *fakeGateway) cancelCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cancels)
}

type sentMail struct {
	kind string
	to   string
	tag  string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) record(kind, to, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{kind: kind, to: to, tag: tag})
	return nil
}

func (m *fakeMailer) SendCredentialsReady(_ context.Context, to, tag string, _ email.InstanceData) error {
	return m.record("ready", to, tag)
}

func (m *fakeMailer) SendCredentialsError(_ context.Context, to, tag string, _ email.InstanceData) error {
	return m.record("error", to, tag)
}

func (m *fakeMailer) SendPaymentReminder(_ context.Context, to, tag string, _ email.PaymentReminderData) error {
	return m.record("reminder", to, tag)
}

func (m *fakeMailer) SendSubscriptionCancelled(_ context.Context, to, tag string, _ email.InstanceData) error {
	return m.record("cancelled", to, tag)
}

func (m *fakeMailer) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.kind == kind {
			n++
		}
	}
	return n
}

type fakeVault struct {
	creds map[string]map[string]string
}

func (v *fakeVault) Credentials(_ context.Context, prefix, name string) (map[string]string, error) {
	c, ok := v.creds[vault.ParameterName(prefix, name)]
	if !ok {
		return nil, vault.ErrCredentialsNotFound
	}
	return c, nil
}

type fakeDeployer struct {
	mu        sync.Mutex
	createErr error
	deleteErr error
	creates   []provisioner.Request
	deletes   []string
}

func (d *fakeDeployer) RequestCreate(_ context.Context, req provisioner.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.createErr != nil {
		return d.createErr
	}
	d.creates = append(d.creates, req)
	return nil
}

func (d *fakeDeployer) RequestDelete(_ context.Context, appName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deleteErr != nil {
		return d.deleteErr
	}
	d.deletes = append(d.deletes, appName)
	return nil
}

type fakeProber struct {
	up map[string]bool
}

func (p *fakeProber) Probe(_ context.Context, url string) bool {
	return p.up[url]
}

type fakeAlerts struct {
	mu     sync.Mutex
	errors []string
}

func (a *fakeAlerts) Info(string) error { return nil }

func (a *fakeAlerts) Error(message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors = append(a.errors, message)
	return nil
}

type harness struct {
	store    *memStore
	stripe   *fakeGateway
	paystack *fakeGateway
	mailer   *fakeMailer
	vault    *fakeVault
	deployer *fakeDeployer
	prober   *fakeProber
	alerts   *fakeAlerts
	now      time.Time
	svc      *Services

	customer *model.User
	pkg      *model.Package
}

func newHarness() *harness {
	h := &harness{
		store:    newMemStore(),
		stripe:   newFakeGateway(model.PaymentStripe),
		paystack: newFakeGateway(model.PaymentPaystack),
		mailer:   &fakeMailer{},
		vault:    &fakeVault{creds: map[string]map[string]string{}},
		deployer: &fakeDeployer{},
		prober:   &fakeProber{up: map[string]bool{}},
		alerts:   &fakeAlerts{},
		now:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.svc = New(Deps{
		Store:         h.store,
		Gateways:      gateway.NewRegistry(h.stripe, h.paystack),
		Mailer:        h.mailer,
		Vault:         h.vault,
		Deployer:      h.deployer,
		Prober:        h.prober,
		Alerts:        h.alerts,
		Policy:        subscription.DefaultPolicy(),
		ClusterDomain: "apps.example.com",
		DefaultRegion: "eu-west-1",
		FrontendURL:   "https://app.example.com",
		Now:           func() time.Time { return h.now },
	})

	h.customer = &model.User{Email: "owner@example.com", CompanyName: "Acme"}
	_ = h.store.CreateUser(context.Background(), h.customer)
	h.pkg = h.store.addPackage(&model.Package{
		Name:             "starter",
		Price:            2000,
		Currency:         "USD",
		Periodicity:      model.PeriodMonthly,
		StripePriceID:    "price_starter",
		PaystackPlanCode: "PLN_starter",
		VaultPath:        "/hosting",
		Enabled:          true,
	})
	return h
}

// addInstance stores an instance of the test package bound to sub.
func (h *harness) addInstance(name string, status model.InstanceStatus, sub *model.Subscription) *model.Instance {
	inst := &model.Instance{
		Name:        name,
		PackageID:   h.pkg.ID,
		CustomerID:  h.customer.ID,
		CompanyName: h.customer.CompanyName,
		Status:      status,
	}
	if sub != nil {
		inst.SubscriptionID = &sub.ID
	}
	_ = h.store.CreateInstance(context.Background(), inst)
	return inst
}

// addSubscription stores a Stripe subscription and registers the same
// record with the fake gateway.
func (h *harness) addSubscription(id string, periodEnd time.Time) *model.Subscription {
	snap := gateway.Snapshot{ID: id, PeriodStart: periodEnd.AddDate(0, -1, 0), PeriodEnd: periodEnd, Currency: "USD", Amount: 2000, Period: "month"}
	h.stripe.setSubscription(snap)
	sub := &model.Subscription{
		SubscriptionID: id,
		PaymentMethod:  model.PaymentStripe,
		CustomerID:     h.customer.ID,
		PeriodStart:    snap.PeriodStart,
		PeriodEnd:      periodEnd,
		IsActive:       true,
	}
	_ = h.store.UpsertSubscription(context.Background(), sub)
	return sub
}

func (h *harness) instance(id uint) *model.Instance {
	inst, _ := h.store.GetInstance(context.Background(), id)
	return inst
}

func (h *harness) order(id uint) *model.SalesOrder {
	o, _ := h.store.GetOrder(context.Background(), id)
	return o
}
