// Package dbtest opens isolated in-memory sqlite databases for repository and
// service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nexusarena/payment-service/pkg/db"
	"github.com/nexusarena/payment-service/pkg/db/models"
)

// Models lists every table the service owns.
var Models = []any{
	&models.Wallet{},
	&models.WalletTransaction{},
	&models.Payment{},
	&models.Payout{},
	&models.Subscription{},
	&models.OutboxEvent{},
	&models.OutboxDLQ{},
}

const liveSubscriptionIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_subscriptions_user_live
	ON subscriptions (user_id) WHERE status IN ('active', 'trialing')`

// New opens a private in-memory database with the full schema. A single
// connection is used so concurrent transactions serialize the way row locks
// serialize them in Postgres.
func New(t testing.TB) *db.Client {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(Models...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	if err := conn.Exec(liveSubscriptionIndex).Error; err != nil {
		t.Fatalf("create live subscription index: %v", err)
	}

	return db.NewWithConn(conn)
}
