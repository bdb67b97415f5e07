package pg

import (
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"trypie/config"
)

// CreateDSN points databaseURL at the application schema. Both the key=value and the
// postgres:// forms are accepted.
func CreateDSN(databaseURL string) string {
	appSchema := config.AppName
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		u, err := url.Parse(databaseURL)
		if err != nil {
			return databaseURL
		}
		q := u.Query()
		if q.Get("search_path") == "" {
			q.Set("search_path", appSchema)
		}
		u.RawQuery = q.Encode()
		return u.String()
	}
	if strings.Contains(databaseURL, "search_path=") {
		return databaseURL
	}
	return strings.TrimSpace(databaseURL + fmt.Sprintf(" search_path=%s", appSchema))
}

func CloseGORM(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		slog.Error("get sql.DB from gorm", "error", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		slog.Error("close postgres", "error", err)
	}
}

func gormConfig() *gorm.Config {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      true,
		},
	)
	return &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	}
}

// InitPostgresGORM opens and pings a postgres connection.
func InitPostgresGORM(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
