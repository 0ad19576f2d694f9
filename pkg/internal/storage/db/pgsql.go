//go:build !no_postgres

package db

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yeisme/tmvault/pkg/configs"
)

func init() {
	open := func(dsn string) gorm.Dialector {
		return postgres.New(postgres.Config{DSN: dsn})
	}

	for _, t := range []configs.DBType{configs.PostgreSQL, configs.Postgres, configs.Pg} {
		RegisterDialectorFactory(t, open)
	}
}
