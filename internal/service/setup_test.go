package service

import (
	"context"
	"testing"
	"time"

	"finledger/internal/config"
	"finledger/internal/infrastructure/database"
	"finledger/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 单测跑在内存 SQLite 上，表结构与生产环境共用 database.Migrate。
// redis 客户端传 nil，服务自动降级为单机模式（跳过分布式锁与缓存）。

var testDate = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// :memory: 下每个连接都是独立的库，必须收敛到单连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				TransactionEvents: "test.transaction.events",
				ApprovalEvents:    "test.approval.events",
			},
		},
		Business: config.BusinessConfig{
			MaxRetryCount:        3,
			AuditIntervalMinutes: 10,
			BalanceSheetCacheTTL: 30,
			ApprovalLockSeconds:  30,
		},
	}
}

func createTestAccount(t *testing.T, db *gorm.DB, code, accountType string) *model.Account {
	t.Helper()

	account := &model.Account{
		Code:     code,
		Name:     "测试账户-" + code,
		Type:     accountType,
		Balance:  decimal.Zero,
		IsActive: true,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func accountBalance(t *testing.T, db *gorm.DB, id int64) decimal.Decimal {
	t.Helper()

	var account model.Account
	require.NoError(t, db.First(&account, id).Error)
	return account.Balance
}

// createDraftTransaction 创建一笔最简单的平衡交易：借 debitID，贷 creditID
func createDraftTransaction(t *testing.T, svc *TransactionService, debitID, creditID int64, amount decimal.Decimal) *model.Transaction {
	t.Helper()

	txn, err := svc.Create(context.Background(), &CreateTransactionRequest{
		Type:            model.TransactionTypeIncome,
		TransactionDate: testDate,
		Description:     "单测交易",
		CreatedBy:       1,
		Entries: []EntryInput{
			{AccountID: debitID, Type: model.EntryTypeDebit, Amount: amount},
			{AccountID: creditID, Type: model.EntryTypeCredit, Amount: amount},
		},
	})
	require.NoError(t, err)
	return txn
}

func countRows(t *testing.T, db *gorm.DB, mdl interface{}) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(mdl).Count(&count).Error)
	return count
}

func outboxEventTypes(t *testing.T, db *gorm.DB) []string {
	t.Helper()

	var messages []*model.OutboxMessage
	require.NoError(t, db.Order("id ASC").Find(&messages).Error)
	types := make([]string, 0, len(messages))
	for _, msg := range messages {
		types = append(types, msg.EventType)
	}
	return types
}
