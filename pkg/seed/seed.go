package seed

import (
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"hostctl_backend/internal/model"
)

// DefaultPackages is the plan catalogue created on an empty database. Gateway
// price references are placeholders until set from the dashboards.
var DefaultPackages = []model.Package{
	{
		Name:             "starter",
		Description:      "One small instance for evaluation and small teams",
		Price:            1900,
		Currency:         "USD",
		Periodicity:      model.PeriodMonthly,
		StripePriceID:    "price_test_starter",
		PaystackPlanCode: "PLN_test_starter",
		VaultPath:        "/hosting/starter",
		Enabled:          true,
	},
	{
		Name:             "business",
		Description:      "Production instance with daily backups",
		Price:            4900,
		Currency:         "USD",
		Periodicity:      model.PeriodMonthly,
		StripePriceID:    "price_test_business",
		PaystackPlanCode: "PLN_test_business",
		VaultPath:        "/hosting/business",
		Enabled:          true,
	},
	{
		Name:             "enterprise",
		Description:      "Dedicated resources, billed yearly",
		Price:            49900,
		Currency:         "USD",
		Periodicity:      model.PeriodYearly,
		StripePriceID:    "price_test_enterprise",
		PaystackPlanCode: "PLN_test_enterprise",
		VaultPath:        "/hosting/enterprise",
		Enabled:          true,
	},
}

func SeedPackages(db *gorm.DB, packages []model.Package) error {
	for _, pkg := range packages {
		if err := db.FirstOrCreate(&pkg, model.Package{Name: pkg.Name}).Error; err != nil {
			log.Errorf("[Seed] package %s: %v", pkg.Name, err)
			return err
		}
	}
	log.Infof("[Seed] %d packages ensured", len(packages))
	return nil
}
