package migration

import (
	"github.com/restyleworks/restyle/internal/config"
	generationdomain "github.com/restyleworks/restyle/internal/generation/domain"
	ledgerdomain "github.com/restyleworks/restyle/internal/ledger/domain"
	paymentdomain "github.com/restyleworks/restyle/internal/payment/domain"
	userdomain "github.com/restyleworks/restyle/internal/user/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Non-postgres targets (local sqlite, mysql) fall back to
			// schema sync from the models.
			return conn.AutoMigrate(
				&userdomain.User{},
				&ledgerdomain.CreditTransaction{},
				&generationdomain.Generation{},
				&paymentdomain.EventRecord{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
