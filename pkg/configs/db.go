package configs

import (
	"fmt"
	"net/url"

	"github.com/spf13/viper"
)

// DBType 中心库方言.
type DBType string

const (
	PostgreSQL DBType = "postgresql"
	Postgres   DBType = "postgres"
	Pg         DBType = "pg"
	MySQL      DBType = "mysql"
	MariaDB    DBType = "mariadb"
	SQLite     DBType = "sqlite" // 单机部署与测试
)

const (
	DefaultDatabaseHost    = "localhost"
	DefaultDatabasePort    = 5432
	DefaultDatabaseUser    = "tmvault"
	DefaultDatabaseName    = "tmvault"
	DefaultDatabaseSSLMode = "disable"
	DefaultMaxOpenConns    = 20
	DefaultMaxIdleConns    = 5
	DefaultDBLogLevel      = "warn"
)

// DBConfig 中心库连接配置.
type DBConfig struct {
	Type         DBType `mapstructure:"type"           rule:"oneof=postgresql postgres pg mysql mariadb sqlite"`
	Host         string `mapstructure:"host"           rule:"hostname"`
	Port         int    `mapstructure:"port"           rule:"min=1,max=65535"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"sslmode"        rule:"omitempty,oneof=disable require verify-ca verify-full"`
	MaxOpenConns int    `mapstructure:"max_open_conns" rule:"min=1"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" rule:"min=0"`
	// DSN 非空时直接使用，忽略 host/port 等字段.
	DSN string `mapstructure:"dsn"`
	// LogLevel GORM 日志级别.
	LogLevel string `mapstructure:"log_level" rule:"omitempty,oneof=silent error warn info"`
}

// Dialect 返回方言的展示名.
func (c *DBConfig) Dialect() string {
	switch c.Type {
	case PostgreSQL, Postgres, Pg:
		return "postgres"
	case MySQL, MariaDB:
		return "mysql"
	case SQLite:
		return "sqlite"
	default:
		return string(c.Type)
	}
}

// GetDSN 返回连接串；未知方言返回空串.
func (c *DBConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}

	switch c.Dialect() {
	case "postgres":
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
			Path:     c.Database,
			RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
		}

		return u.String()
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "sqlite":
		return c.Database + ".db"
	}

	return ""
}

// setDefaults prefix 为配置节名称.
func (c *DBConfig) setDefaults(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".type", PostgreSQL)
	v.SetDefault(prefix+".host", DefaultDatabaseHost)
	v.SetDefault(prefix+".port", DefaultDatabasePort)
	v.SetDefault(prefix+".user", DefaultDatabaseUser)
	v.SetDefault(prefix+".database", DefaultDatabaseName)
	v.SetDefault(prefix+".sslmode", DefaultDatabaseSSLMode)
	v.SetDefault(prefix+".max_open_conns", DefaultMaxOpenConns)
	v.SetDefault(prefix+".max_idle_conns", DefaultMaxIdleConns)
	v.SetDefault(prefix+".log_level", DefaultDBLogLevel)
}
