package repository

import (
	"context"
	"encoding/json"
	"testing"

	"finledger/internal/infrastructure/database"
	"finledger/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func TestOutboxLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewOutboxRepository(db)
	ctx := context.Background()

	err := repo.CreateEvent(ctx, nil, "test.transaction.events", model.EventTransactionCreated,
		"TXN001", map[string]interface{}{"transaction_no": "TXN001", "amount": "100.00"})
	require.NoError(t, err)

	pending, err := repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	msg := pending[0]
	require.Equal(t, model.OutboxStatusPending, msg.Status)
	require.Equal(t, model.EventTransactionCreated, msg.EventType)
	require.Equal(t, "TXN001", msg.MessageKey)
	require.Equal(t, 0, msg.RetryCount)

	// payload 是合法 JSON，消费方直接反序列化
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payload))
	require.Equal(t, "TXN001", payload["transaction_no"])

	// 发送成功后不再出现在待发队列
	require.NoError(t, repo.MarkAsSent(ctx, msg.ID))
	pending, err = repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestOutboxRetryAndFail(t *testing.T) {
	db := newTestDB(t)
	repo := NewOutboxRepository(db)
	ctx := context.Background()

	err := repo.CreateEvent(ctx, nil, "test.approval.events", model.EventApprovalRejected,
		"TXN002", map[string]interface{}{"approval_id": 1})
	require.NoError(t, err)

	pending, err := repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	id := pending[0].ID

	// 投递失败累计重试次数，消息仍在队列里
	require.NoError(t, repo.IncrementRetryCount(ctx, id))
	require.NoError(t, repo.IncrementRetryCount(ctx, id))

	pending, err = repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 2, pending[0].RetryCount)

	// 超过重试上限后标记失败并出队
	require.NoError(t, repo.MarkAsFailed(ctx, id))

	pending, err = repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	var failed model.OutboxMessage
	require.NoError(t, db.First(&failed, id).Error)
	require.Equal(t, model.OutboxStatusFailed, failed.Status)
	require.Equal(t, 3, failed.RetryCount)
}
