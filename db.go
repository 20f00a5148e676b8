package main

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"lapboard/pkg/store"
)

// openStore connects to Postgres and, unless disabled, migrates the schema.
// Migration errors are logged and ignored so a read-only role can still serve.
func openStore(cfg Config, log *zap.Logger, forceMigrate bool) (*store.Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("DB_DSN is not set. This service requires a Postgres DSN (--db-dsn, LAPBOARD_DB_DSN or DB_DSN)")
	}
	level := logger.Warn
	if log.Core().Enabled(zap.DebugLevel) {
		level = logger.Info
	}
	s, err := store.Open(cfg.DSN, level)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate || forceMigrate {
		if err := s.Migrate(); err != nil {
			if forceMigrate {
				_ = s.Close()
				return nil, err
			}
			log.Warn("migration warning (lap_records)", zap.Error(err))
		}
	}
	return s, nil
}
