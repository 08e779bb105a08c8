package database

import (
	"fmt"

	"github.com/psds-microservice/support-bot/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Поддерживаемые значения DB_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open подключается к БД выбранным драйвером. Для sqlite dsn: путь к файлу.
func Open(driver, dsn string) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
	switch driver {
	case DriverPostgres:
		return gorm.Open(postgres.Open(dsn), gcfg)
	case DriverSQLite:
		db, err := gorm.Open(sqlite.Open(dsn+"?_foreign_keys=on&_busy_timeout=5000"), gcfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// один писатель: sqlite сериализует транзакции
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

// AutoMigrate создаёт схему средствами gorm. Используется для sqlite:
// миграции goose написаны под postgres.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Ticket{}, &model.Message{}); err != nil {
		return err
	}
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_tickets_open_owner ON tickets (owner_id) WHERE status = 'open'`).Error
}
