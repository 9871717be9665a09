package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"hostctl_backend/internal/controller"
	"hostctl_backend/internal/repository"
	"hostctl_backend/internal/service"
	"hostctl_backend/pkg/alert"
	"hostctl_backend/pkg/config"
	"hostctl_backend/pkg/cron"
	"hostctl_backend/pkg/database"
	"hostctl_backend/pkg/email"
	"hostctl_backend/pkg/erp"
	"hostctl_backend/pkg/gateway"
	"hostctl_backend/pkg/lock"
	"hostctl_backend/pkg/probe"
	"hostctl_backend/pkg/provisioner"
	"hostctl_backend/pkg/seed"
	"hostctl_backend/pkg/utils/jwt"
	"hostctl_backend/pkg/utils/vault"
)

func gateways(cfg *config.Config) *gateway.Registry {
	var adapters []gateway.Adapter
	if cfg.Stripe.SecretKey != "" {
		adapters = append(adapters, gateway.NewStripeAdapter(gateway.NewStripeSDK(cfg.Stripe.SecretKey)))
	}
	if cfg.Paystack.SecretKey != "" {
		adapters = append(adapters, gateway.NewPaystackAdapter(gateway.NewPaystackClient(cfg.Paystack.SecretKey, cfg.Paystack.BaseURL)))
	}
	if len(adapters) == 0 {
		log.Warn("No payment gateway configured")
	}
	return gateway.NewRegistry(adapters...)
}

func locker(ctx context.Context, cfg config.RedisConfig) lock.Locker {
	if cfg.Addr == "" {
		log.Warn("REDIS_ADDR not set, using in-process locks")
		return lock.NewLocal()
	}
	client, err := lock.Connect(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		log.Fatalf("Could not connect to redis: %v", err)
	}
	return lock.NewRedis(client)
}

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	jwt.Init(cfg.JWT.Secret, cfg.JWT.TTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(cfg.Database.DSN())
	if err != nil {
		log.Fatal(err)
	}
	if err := database.MigrateDatabase(db, repository.Models()...); err != nil {
		log.Warnf("Migration warning: %v", err)
	}
	if err := seed.SeedPackages(db, seed.DefaultPackages); err != nil {
		log.Warnf("Seeding warning: %v", err)
	}
	store := repository.NewStore(db)

	credentials, err := vault.Connect(ctx, vault.Options{
		Region:          cfg.Vault.Region,
		AccessKeyID:     cfg.Vault.AccessKeyID,
		SecretAccessKey: cfg.Vault.SecretAccessKey,
	})
	if err != nil {
		log.Fatalf("Could not initialize credential vault: %v", err)
	}

	deps := service.Deps{
		Store:         store,
		Gateways:      gateways(cfg),
		Vault:         credentials,
		Deployer:      provisioner.NewClient(cfg.Provisioner.URL, cfg.Provisioner.Token),
		Prober:        probe.NewHTTP(10 * time.Second),
		ERP:           erp.Local{},
		Locker:        locker(ctx, cfg.Redis),
		Alerts:        alert.Nop{},
		Policy:        cfg.Billing.Policy(),
		ClusterDomain: cfg.Billing.ClusterDomain,
		DefaultRegion: cfg.Billing.DefaultRegion,
		FrontendURL:   cfg.Billing.FrontendURL,
	}
	if cfg.ERP.URL != "" {
		deps.ERP = erp.NewClient(cfg.ERP.URL, cfg.ERP.APIKey, cfg.ERP.APISecret)
	}
	if cfg.Slack.BotToken != "" {
		deps.Alerts = alert.NewSlack(cfg.Slack.BotToken, alert.SlackOption{
			InfoChannelID:  cfg.Slack.InfoChannelID,
			ErrorChannelID: cfg.Slack.ErrorChannelID,
		})
	}
	if cfg.Email.ResendAPIKey != "" {
		if err := email.InitEmailService(cfg.Email.ResendAPIKey, cfg.Email.From); err != nil {
			log.Fatalf("Could not initialize email service: %v", err)
		}
		deps.Mailer = email.GlobalEmailService
	} else {
		log.Warn("RESEND_API_KEY not set, customer emails are disabled")
	}
	svc := service.New(deps)

	scheduler, err := cron.New(svc.Reconciler, cron.Schedule{
		SubscriptionSync: cfg.Cron.SubscriptionSync,
		PaymentPoll:      cfg.Cron.PaymentPoll,
		InstanceCheck:    cfg.Cron.InstanceCheck,
	})
	if err != nil {
		log.Fatalf("Could not schedule jobs: %v", err)
	}
	scheduler.Start()

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	handler := controller.NewHandler(store, svc, controller.WebhookSecrets{
		Stripe:   cfg.Stripe.WebhookSecret,
		Paystack: cfg.Paystack.SecretKey,
	})
	controller.SetupRoutes(app, handler, cfg.Server.AdminTokenHash)

	go func() {
		<-ctx.Done()
		log.Info("Shutting down")
		<-scheduler.Stop().Done()
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Errorf("Shutdown: %v", err)
		}
	}()

	log.Infof("Server is running on port %s", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatal(err)
	}
}
