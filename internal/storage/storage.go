package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"qline/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Models — все таблицы сервиса в порядке зависимостей.
var Models = []any{&models.User{}, &models.Queue{}, &models.CustomField{}, &models.QueueEntry{}}

// Open подключается к PostgreSQL.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	slog.Info("Подключение к базе данных успешно")
	return db, nil
}

// AutoMigrate создаёт схему средствами GORM. Используется в тестах; в проде — MigrateUp.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models...)
}

// MigrateUp применяет SQL-миграции из migrations/.
func MigrateUp(databaseURL string) error {
	return withGoose(databaseURL, func(db *sql.DB) error {
		return goose.Up(db, "migrations")
	})
}

// MigrationStatus печатает состояние миграций.
func MigrationStatus(databaseURL string) error {
	return withGoose(databaseURL, func(db *sql.DB) error {
		return goose.Status(db, "migrations")
	})
}

func withGoose(databaseURL string, fn func(*sql.DB) error) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return fn(db)
}

// OpenRedis подключается к Redis и проверяет соединение.
func OpenRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}
