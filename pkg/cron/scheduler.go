package cron

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"

	"hostctl_backend/internal/service"
)

// Reconciler is the part of the service layer driven by the scheduler.
type Reconciler interface {
	SyncAll(ctx context.Context) (service.SyncSummary, error)
	PollPendingPayments(ctx context.Context) (service.SyncSummary, error)
	CheckInstances(ctx context.Context) (service.SyncSummary, error)
}

type Schedule struct {
	SubscriptionSync string
	PaymentPoll      string
	InstanceCheck    string
}

const jobTimeout = 30 * time.Minute

// New registers the reconciliation jobs. A job still running when its next
// tick fires is skipped.
func New(r Reconciler, schedule Schedule) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) (service.SyncSummary, error)
	}{
		{name: "subscription sync", spec: schedule.SubscriptionSync, run: r.SyncAll},
		{name: "payment poll", spec: schedule.PaymentPoll, run: r.PollPendingPayments},
		{name: "instance check", spec: schedule.InstanceCheck, run: r.CheckInstances},
	}
	for _, job := range jobs {
		job := job
		if _, err := c.AddFunc(job.spec, func() { runJob(job.name, job.run) }); err != nil {
			return nil, err
		}
		log.Infof("[Cron] %s scheduled %q", job.name, job.spec)
	}
	return c, nil
}

func runJob(name string, run func(context.Context) (service.SyncSummary, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	started := time.Now()
	summary, err := run(ctx)
	if err != nil {
		log.Errorf("[Cron] %s: %v", name, err)
		return
	}
	log.Infof("[Cron] %s done in %s: %d total, %d failed", name, time.Since(started).Round(time.Millisecond), summary.Total, summary.Failed)
}
