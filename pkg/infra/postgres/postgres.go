package postgres

import (
	"log"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	_ "github.com/lib/pq" // nolint
	"go.uber.org/zap"
	pg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"
)

type Config struct {
	DataSource        string          `yaml:"data_source"`
	ReplicaSources    []string        `yaml:"replica_sources"`
	MaxOpenConns      int             `yaml:"max_open_conns"`
	MaxIdleConns      int             `yaml:"max_idle_conns"`
	ConnMaxLifeTimeMs int64           `yaml:"conn_max_life_time_ms"`
	MigrationConnURL  string          `yaml:"migration_conn_url"`
	LogLevel          logger.LogLevel `yaml:"log_level"`
}

// Connect opens the primary and registers any read replicas behind a
// random resolver policy.
func Connect(cfg *Config) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      cfg.LogLevel,
			Colorful:      true,
		},
	)

	db, err := gorm.Open(pg.Open(cfg.DataSource), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		zap.S().Debugf("open postgres fail: %+v", err)
		return nil, err
	}

	var replicas []gorm.Dialector
	for _, s := range cfg.ReplicaSources {
		replicas = append(replicas, pg.Open(s))
	}
	if len(replicas) > 0 {
		err := db.Use(dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		}))
		if err != nil {
			zap.S().Debugf("register postgres replicas fail: %+v", err)
			return nil, err
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifeTimeMs) * time.Millisecond)

	return db, nil
}

// ConnectWithBackoff retries Connect with exponential backoff until the
// database comes up or the backoff gives up.
func ConnectWithBackoff(cfg *Config) (*gorm.DB, error) {
	var db *gorm.DB
	boff := backoff.NewExponentialBackOff()
	err := backoff.Retry(func() error {
		var err error
		db, err = Connect(cfg)
		if err != nil {
			zap.S().Warnf("connect postgres error: %v", err)
		}
		return err
	}, boff)
	if err != nil {
		return nil, err
	}
	return db, nil
}
