package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	content := `server:
  port: 9090

mysql:
  host: db.local
  port: 3306
  user: ledger
  password: secret
  database: ledger
  max_open_conns: 20
  max_idle_conns: 5

redis:
  host: cache.local
  port: 6379
  password: ""
  db: 1

kafka:
  brokers:
    - broker1:9092
    - broker2:9092
  topic:
    transaction_events: ledger.transaction.events
    approval_events: ledger.approval.events

business:
  max_retry_count: 7
  audit_interval_minutes: 15
  balance_sheet_cache_ttl: 60
  approval_lock_seconds: 20
`

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := LoadConfig(path)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "db.local", cfg.MySQL.Host)
	require.Equal(t, 20, cfg.MySQL.MaxOpenConns)
	require.Equal(t, 1, cfg.Redis.DB)
	require.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, "ledger.transaction.events", cfg.Kafka.Topic.TransactionEvents)
	require.Equal(t, "ledger.approval.events", cfg.Kafka.Topic.ApprovalEvents)
	require.Equal(t, 7, cfg.Business.MaxRetryCount)
	require.Equal(t, 15, cfg.Business.AuditIntervalMinutes)
	require.Equal(t, 60, cfg.Business.BalanceSheetCacheTTL)
	require.Equal(t, 20, cfg.Business.ApprovalLockSeconds)

	// LoadConfig 同时发布到全局变量，供未显式传递配置的地方使用
	require.Same(t, cfg, GlobalConfig)
}
