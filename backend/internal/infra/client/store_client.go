package infra

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/antrhizom/prompt-managerin/backend/internal/config"

	mysqlcfg "github.com/go-sql-driver/mysql"
	mysqlDriver "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const defaultMySQLParams = "charset=utf8mb4&parseTime=true&loc=Local"

// OpenStore 根据配置打开 Record Store 所在的数据库，并执行一次 Ping。
// 返回的 *sql.DB 由调用方在退出前关闭。
func OpenStore(ctx context.Context, cfg config.StoreConfig) (*gorm.DB, *sql.DB, error) {
	dialector, err := buildDialector(cfg)
	if err != nil {
		return nil, nil, err
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("get sql db: %w", err)
	}

	if cfg.Driver == config.DriverSQLite {
		// SQLite 只允许单写者，连接池收敛到 1 避免 database is locked。
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetConnMaxLifetime(60 * time.Minute)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(25)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("ping %s store: %w", cfg.Driver, err)
	}

	return gormDB, sqlDB, nil
}

func buildDialector(cfg config.StoreConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		dsn := cfg.DSN
		if dsn == "" {
			if cfg.SQLitePath == "" {
				return nil, fmt.Errorf("sqlite path is required")
			}
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
			dsn = cfg.SQLitePath + "?_foreign_keys=1&_busy_timeout=5000"
		}
		return sqlite.Open(dsn), nil
	case config.DriverMySQL:
		dsn := cfg.DSN
		if dsn == "" {
			built, err := BuildMySQLDSN(cfg.MySQL)
			if err != nil {
				return nil, err
			}
			dsn = built
		}
		return mysqlDriver.Open(dsn), nil
	case config.DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("STORE_DSN is required for postgres")
		}
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// BuildMySQLDSN 校验必填字段后用驱动自带的 Config 生成 DSN，避免手工拼接时的转义问题。
func BuildMySQLDSN(cfg config.MySQLConfig) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("mysql host is required")
	}
	if cfg.Username == "" {
		return "", fmt.Errorf("mysql username is required")
	}
	if cfg.Database == "" {
		return "", fmt.Errorf("mysql database is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	dsnCfg := mysqlcfg.NewConfig()
	dsnCfg.User = cfg.Username
	dsnCfg.Passwd = cfg.Password
	dsnCfg.Net = "tcp"
	dsnCfg.Addr = cfg.Host + ":" + strconv.Itoa(port)
	dsnCfg.DBName = cfg.Database

	params := cfg.Params
	if params == "" {
		params = defaultMySQLParams
	}
	for _, pair := range strings.Split(params, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			continue
		}
		switch key {
		case "parseTime":
			dsnCfg.ParseTime = value == "true"
		case "loc":
			if loc, err := time.LoadLocation(value); err == nil {
				dsnCfg.Loc = loc
			}
		default:
			if dsnCfg.Params == nil {
				dsnCfg.Params = map[string]string{}
			}
			dsnCfg.Params[key] = value
		}
	}
	return dsnCfg.FormatDSN(), nil
}
