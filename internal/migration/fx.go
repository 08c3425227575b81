package migration

import (
	"github.com/smallbiznis/papermill/internal/auth/session"
	billingdomain "github.com/smallbiznis/papermill/internal/billing/domain"
	"github.com/smallbiznis/papermill/internal/config"
	creditdomain "github.com/smallbiznis/papermill/internal/credit/domain"
	oplogdomain "github.com/smallbiznis/papermill/internal/oplog/domain"
	userdomain "github.com/smallbiznis/papermill/internal/user/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// SQL migrations target postgres; local sqlite and mysql
			// setups fall back to schema sync from the models.
			return conn.AutoMigrate(
				&userdomain.User{},
				&session.Session{},
				&creditdomain.OneTimePurchase{},
				&creditdomain.ConsumedOneTimePayment{},
				&billingdomain.EventRecord{},
				&oplogdomain.OperationRecord{},
				&oplogdomain.OperationDailyStat{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
