package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易完整性哈希
// ============================================================================
//
// 每笔交易在落库时计算一个 SHA-256 摘要，覆盖交易的可变关键字段
// （ID、金额、交易日期、状态）。读取时重新计算并与存储值比对，
// 不一致说明数据被绕过引擎直接修改过。
//
// 摘要必须是纯函数：相同输入永远得到相同输出，不依赖任何隐藏状态。
// 金额统一格式化为两位小数，日期只取年月日，避免精度差异导致误报。
// ============================================================================

// TransactionDigest 计算交易的完整性哈希
func TransactionDigest(id int64, amount decimal.Decimal, date time.Time, status string) string {
	data := fmt.Sprintf("%d-%s-%s-%s", id, amount.StringFixed(2), date.Format("2006-01-02"), status)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// Verify 校验存储的哈希与当前状态是否一致
func Verify(storedHash string, id int64, amount decimal.Decimal, date time.Time, status string) bool {
	if storedHash == "" {
		return false
	}
	return storedHash == TransactionDigest(id, amount, date, status)
}
