// Package testutil wires in-memory backends for package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aman-churiwal/ai-gateway/internal/storage"
)

// NewRedis starts a miniredis server bound to t.
func NewRedis(t *testing.T) (*storage.RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return storage.NewRedisFromClient(client), mini
}

// NewDB opens a migrated in-memory SQLite database behind the Postgres wrapper.
func NewDB(t *testing.T) *storage.Postgres {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	pg := &storage.Postgres{DB: db}
	if err := pg.AutoMigrate(); err != nil {
		t.Fatal(err)
	}
	return pg
}
