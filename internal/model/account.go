package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 会计科目类别
// ============================================================================

const (
	AccountTypeAsset     = "asset"     // 资产
	AccountTypeLiability = "liability" // 负债
	AccountTypeEquity    = "equity"    // 权益
	AccountTypeRevenue   = "revenue"   // 收入
	AccountTypeExpense   = "expense"   // 费用
)

// ValidAccountTypes 合法的科目类别集合
var ValidAccountTypes = map[string]bool{
	AccountTypeAsset:     true,
	AccountTypeLiability: true,
	AccountTypeEquity:    true,
	AccountTypeRevenue:   true,
	AccountTypeExpense:   true,
}

const (
	EntryTypeDebit  = "debit"  // 借
	EntryTypeCredit = "credit" // 贷
)

// Account 科目账户表
// 余额永远是所有已记账分录按记账方向规则累加的结果，
// 只能通过分录过账变动，不允许绕过引擎直接改写
type Account struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Code        string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"` // 科目编码，全局唯一
	Name        string          `gorm:"type:varchar(128);not null" json:"name"`
	Description string          `gorm:"type:varchar(256)" json:"description"`
	Type        string          `gorm:"type:varchar(20);not null" json:"type"` // 科目类别
	Balance     decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"balance"`
	IsActive    bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

// DebitIncreases 借方是否增加余额
//
// 记账方向规则（过账与冲销共用同一张表）：
//   资产、费用类科目：借增贷减
//   负债、权益、收入类科目：贷增借减
func DebitIncreases(accountType string) bool {
	return accountType == AccountTypeAsset || accountType == AccountTypeExpense
}

// PostingDelta 计算一笔分录对账户余额的带符号变动量
func PostingDelta(accountType, entryType string, amount decimal.Decimal) decimal.Decimal {
	increases := DebitIncreases(accountType)
	if entryType == EntryTypeCredit {
		increases = !increases
	}
	if increases {
		return amount
	}
	return amount.Neg()
}

// ReverseEntryType 冲销方向：借变贷，贷变借
func ReverseEntryType(entryType string) string {
	if entryType == EntryTypeDebit {
		return EntryTypeCredit
	}
	return EntryTypeDebit
}
