package integrity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var digestDate = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

func TestTransactionDigestIsDeterministic(t *testing.T) {
	amount := decimal.RequireFromString("100.50")

	first := TransactionDigest(1, amount, digestDate, "draft")
	second := TransactionDigest(1, amount, digestDate, "draft")
	require.Equal(t, first, second)
	require.Len(t, first, 64, "SHA-256 十六进制摘要固定 64 字符")
}

func TestTransactionDigestCoversEachField(t *testing.T) {
	amount := decimal.NewFromInt(100)
	base := TransactionDigest(1, amount, digestDate, "draft")

	require.NotEqual(t, base, TransactionDigest(2, amount, digestDate, "draft"))
	require.NotEqual(t, base, TransactionDigest(1, decimal.NewFromInt(101), digestDate, "draft"))
	require.NotEqual(t, base, TransactionDigest(1, amount, digestDate.AddDate(0, 0, 1), "draft"))
	require.NotEqual(t, base, TransactionDigest(1, amount, digestDate, "completed"))
}

func TestTransactionDigestNormalizesAmountAndDate(t *testing.T) {
	// 100.5 与 100.50 是同一个金额，摘要必须一致
	require.Equal(t,
		TransactionDigest(1, decimal.RequireFromString("100.5"), digestDate, "draft"),
		TransactionDigest(1, decimal.RequireFromString("100.50"), digestDate, "draft"))

	// 摘要只取年月日，数据库往返丢失时分秒不影响校验
	withTime := time.Date(2024, 5, 10, 15, 30, 45, 0, time.UTC)
	require.Equal(t,
		TransactionDigest(1, decimal.NewFromInt(100), digestDate, "draft"),
		TransactionDigest(1, decimal.NewFromInt(100), withTime, "draft"))
}

func TestVerify(t *testing.T) {
	amount := decimal.NewFromInt(100)
	hash := TransactionDigest(1, amount, digestDate, "draft")

	require.True(t, Verify(hash, 1, amount, digestDate, "draft"))
	require.False(t, Verify(hash, 1, amount, digestDate, "completed"), "状态变了旧哈希必须失效")
	require.False(t, Verify(hash, 1, decimal.NewFromInt(999), digestDate, "draft"))
	require.False(t, Verify("", 1, amount, digestDate, "draft"), "缺失哈希视为校验失败")
}
