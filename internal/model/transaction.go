package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易类型与状态
// ============================================================================

const (
	TransactionTypeIncome   = "income"   // 收入
	TransactionTypeExpense  = "expense"  // 支出
	TransactionTypeTransfer = "transfer" // 转账
	TransactionTypePayroll  = "payroll"  // 薪酬发放
)

var ValidTransactionTypes = map[string]bool{
	TransactionTypeIncome:   true,
	TransactionTypeExpense:  true,
	TransactionTypeTransfer: true,
	TransactionTypePayroll:  true,
}

const (
	TransactionStatusDraft           = "draft"
	TransactionStatusPendingApproval = "pending_approval"
	TransactionStatusApproved        = "approved"
	TransactionStatusRejected        = "rejected"
	TransactionStatusCompleted       = "completed"
	TransactionStatusCancelled       = "cancelled"
)

// ValidTransactionTransitions 交易状态迁移表
// 不在表里的组合一律非法，completed / cancelled 是终态
var ValidTransactionTransitions = map[string][]string{
	TransactionStatusDraft:           {TransactionStatusPendingApproval, TransactionStatusCompleted, TransactionStatusCancelled},
	TransactionStatusPendingApproval: {TransactionStatusApproved, TransactionStatusRejected, TransactionStatusCancelled},
	TransactionStatusApproved:        {TransactionStatusCompleted, TransactionStatusCancelled},
	TransactionStatusRejected:        {TransactionStatusCancelled},
}

// CanTransitionTo 校验交易状态迁移是否合法
func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidTransactionTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// ============================================================================
// 交易与分录实体
// ============================================================================

// Transaction 交易表
//
// 【设计原则】
// 1. 一笔交易由若干借贷分录组成，借方合计必须等于贷方合计（容差 0.01）
// 2. 交易创建后分录不可修改 —— 更正走"回滚 + 重建"，不做原地编辑
// 3. hash 覆盖 (id, amount, date, status)，每次状态变更都重算；
//    previous_hash 指向上一笔交易的 hash，形成篡改可检测的链
type Transaction struct {
	ID              int64              `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo   string             `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 交易号，全局唯一
	Type            string             `gorm:"type:varchar(20);not null" json:"type"`
	Status          string             `gorm:"type:varchar(20);index;not null" json:"status"`
	Amount          decimal.Decimal    `gorm:"type:decimal(15,2);not null" json:"amount"`
	TransactionDate time.Time          `gorm:"type:date;not null" json:"transaction_date"`
	Description     string             `gorm:"type:varchar(256)" json:"description"`
	Reference       string             `gorm:"type:varchar(64)" json:"reference"`
	CategoryID      *int64             `gorm:"index" json:"category_id"` // 分类由外部系统管理，这里只存引用
	CreatedBy       int64              `gorm:"index;not null" json:"created_by"`
	Hash            string             `gorm:"type:varchar(64)" json:"hash"`
	PreviousHash    string             `gorm:"type:varchar(64)" json:"previous_hash"`
	Entries         []TransactionEntry `gorm:"foreignKey:TransactionID" json:"entries,omitempty"`
	Approval        *Approval          `gorm:"foreignKey:TransactionID" json:"approval,omitempty"`
	CreatedAt       time.Time          `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transaction"
}

// TransactionEntry 交易分录表
// 分录归属于交易，随交易一起创建、一起销毁，创建后不可变
type TransactionEntry struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionID int64           `gorm:"index;not null" json:"transaction_id"`
	AccountID     int64           `gorm:"index;not null" json:"account_id"`
	Account       *Account        `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	Type          string          `gorm:"type:varchar(10);not null" json:"type"` // debit / credit
	Amount        decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Description   string          `gorm:"type:varchar(256)" json:"description"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (TransactionEntry) TableName() string {
	return "transaction_entry"
}
