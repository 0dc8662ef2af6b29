// Package storagetest поднимает SQLite в памяти со схемой сервиса для тестов.
package storagetest

import (
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"qline/internal/models"
	"qline/internal/storage"
)

// New возвращает изолированную базу. Соединение одно, поэтому транзакции
// выполняются строго по очереди, как под блокировкой строки очереди в PostgreSQL.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, storage.AutoMigrate(db))
	return db
}

// Postgres подключается к базе из TEST_DATABASE_URL и применяет миграции.
// Без переменной тест пропускается. Пул соединений обычный, как в сервисе.
func Postgres(t testing.TB) *gorm.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL не задан")
	}
	require.NoError(t, storage.MigrateUp(url))
	db, err := storage.Open(url)
	require.NoError(t, err)
	db.Logger = logger.Discard

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// User создаёт пользователя с уникальным email.
func User(t testing.TB, db *gorm.DB, name string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: fmt.Sprintf("%s_%s@example.com", name, uuid.NewString()[:8])}
	require.NoError(t, db.Create(u).Error)
	return u
}

// Queue создаёт активную публичную очередь владельца.
func Queue(t testing.TB, db *gorm.DB, owner *models.User, fields ...models.CustomField) *models.Queue {
	t.Helper()
	for i := range fields {
		fields[i].Order = i
	}
	q := &models.Queue{
		Name:         "Coffee Shop Queue",
		Location:     "Downtown Branch",
		Category:     "Food & Drink",
		IsActive:     true,
		IsPublic:     true,
		OwnerID:      owner.ID,
		CustomFields: fields,
	}
	require.NoError(t, db.Create(q).Error)
	return q
}

// WaitingPositions возвращает позиции ожидающих записей очереди по возрастанию.
func WaitingPositions(t testing.TB, db *gorm.DB, queueID string) []int {
	t.Helper()
	var positions []int
	require.NoError(t, db.Model(&models.QueueEntry{}).
		Where("queue_id = ? AND status = ?", queueID, models.StatusWaiting).
		Order("position ASC").
		Pluck("position", &positions).Error)
	return positions
}

// Entry перечитывает запись из базы.
func Entry(t testing.TB, db *gorm.DB, id string) *models.QueueEntry {
	t.Helper()
	var e models.QueueEntry
	require.NoError(t, db.First(&e, "id = ?", id).Error)
	return &e
}
