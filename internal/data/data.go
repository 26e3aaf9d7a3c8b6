// Package data bootstraps the on-device metadata store: a SQLite
// database accessed through GORM. The rest of the system only sees the
// *gorm.DB handle and its transactional contract.
package data

import (
	"fmt"
	"log/slog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/docscan/docscan/internal/models"
)

// Open connects to the SQLite file at dbPath, enables foreign-key
// enforcement so page rows cascade with their document, and migrates the
// schema. The returned cleanup closes the underlying connection.
func Open(dbPath string) (*gorm.DB, func(), error) {
	db, err := gorm.Open(sqlite.Open(dbPath+"?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening metadata store: %w", err)
	}

	if err := db.AutoMigrate(&models.Document{}, &models.Page{}); err != nil {
		return nil, nil, fmt.Errorf("migrating metadata schema: %w", err)
	}

	cleanup := func() {
		sqlDB, err := db.DB()
		if err != nil {
			slog.Warn("Failed to resolve sql.DB for cleanup.", "error", err)
			return
		}
		if err := sqlDB.Close(); err != nil {
			slog.Warn("Failed to close metadata store.", "error", err)
		}
	}

	slog.Info("Metadata store ready.", "path", dbPath)
	return db, cleanup, nil
}
