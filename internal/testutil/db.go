// Package testutil: общие помощники для тестов.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/psds-microservice/support-bot/internal/database"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB возвращает sqlite с применённой схемой в t.TempDir.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "tickets.db"))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
