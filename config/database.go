package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenDatabase connects to the database named by DatabaseURL. postgres:// and
// postgresql:// URLs use the Postgres driver; sqlite://path, file: DSNs and :memory:
// use SQLite.
func OpenDatabase(c *Config, logger *zap.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(c.DatabaseURL)
	if err != nil {
		return nil, err
	}

	level := gormlogger.Warn
	if c.IsProduction() || c.IsTest() {
		level = gormlogger.Error
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
		NowFunc: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	if dialector.Name() == "sqlite" {
		// SQLite allows a single writer; a shared in-memory database also needs
		// every query on the same connection.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	logger.Info("Database connection established", zap.String("driver", dialector.Name()))
	return db, nil
}

func dialectorFor(url string) (gorm.Dialector, error) {
	switch {
	case url == "":
		return nil, fmt.Errorf("DATABASE_URL is required")
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return postgres.Open(url), nil
	case strings.HasPrefix(url, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(url, "sqlite://")), nil
	case strings.HasPrefix(url, "file:"), url == ":memory:":
		return sqlite.Open(url), nil
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %q", url)
	}
}

// DatabaseStatus pings the database
func DatabaseStatus(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
