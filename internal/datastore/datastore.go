// Package datastore opens the gateway's persistence layer. Cache entries
// and durable state live in a single database; sqlite is the default, mysql
// is supported for shared deployments.
package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/timezen-gateway/internal/conf"
	"github.com/tphakala/timezen-gateway/internal/datastore/entities"
)

// Open connects to the configured database and migrates the schema.
func Open(settings conf.DatabaseSettings) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch settings.Driver {
	case "", "sqlite":
		path := settings.Path
		if path == "" {
			path = "timezen-gateway.db"
		}
		dialector = sqlite.Open(path)
	case "mysql":
		if settings.DSN == "" {
			return nil, fmt.Errorf("mysql driver requires a DSN")
		}
		dialector = mysql.Open(settings.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", settings.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema for all gateway entities.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&entities.CacheEntry{}, &entities.StateEntry{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
