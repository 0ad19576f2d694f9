//go:build !no_mysql

package db

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/yeisme/tmvault/pkg/configs"
)

func init() {
	open := func(dsn string) gorm.Dialector {
		// utf8mb4 下 191 字符以内的 varchar 才能建索引
		return mysql.New(mysql.Config{
			DSN:               dsn,
			DefaultStringSize: 191,
		})
	}

	for _, t := range []configs.DBType{configs.MySQL, configs.MariaDB} {
		RegisterDialectorFactory(t, open)
	}
}
