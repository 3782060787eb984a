package database

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"qc-standards/internal/models"
)

const retryDelay = 2 * time.Second

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "", "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported db driver %q", driver)
}

// Open connects with retries; the database container usually starts after us.
func Open(driver, dsn string, attempts int, log zerolog.Logger) (*gorm.DB, error) {
	d, err := dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	if attempts <= 0 {
		attempts = 1
	}

	var db *gorm.DB
	for i := 1; i <= attempts; i++ {
		log.Info().Int("attempt", i).Int("max", attempts).Str("driver", driver).Msg("connecting to DB")

		db, err = gorm.Open(d, &gorm.Config{
			Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
			NowFunc: func() time.Time { return time.Now().UTC() },
		})
		if err == nil {
			log.Info().Msg("connected to DB")
			return db, nil
		}

		log.Warn().Err(err).Msg("failed to connect to DB")
		if i < attempts {
			time.Sleep(retryDelay)
		}
	}
	return nil, fmt.Errorf("connect to db after %d attempts: %w", attempts, err)
}

// Migrate creates or updates every table the store uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.ProductModel{},
		&models.Stage{},
		&models.Template{},
		&models.Step{},
		&models.QCDoc{},
		&models.QCResult{},
		&models.Photo{},
		&models.AuditLog{},
	)
}
