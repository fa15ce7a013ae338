package model

import (
	"time"
)

// ============================================================================
// 审批单与审批步骤
// ============================================================================

const (
	ApprovalStatusPending    = "pending"
	ApprovalStatusInProgress = "in_progress"
	ApprovalStatusApproved   = "approved"
	ApprovalStatusRejected   = "rejected"
	ApprovalStatusCancelled  = "cancelled"
)

// ValidApprovalTransitions 审批单状态迁移表
// cancelled 由外部取消产生，本引擎只承认它是合法终态
var ValidApprovalTransitions = map[string][]string{
	ApprovalStatusPending:    {ApprovalStatusInProgress, ApprovalStatusApproved, ApprovalStatusRejected, ApprovalStatusCancelled},
	ApprovalStatusInProgress: {ApprovalStatusApproved, ApprovalStatusRejected, ApprovalStatusCancelled},
}

// ApprovalCanTransitionTo 校验审批单状态迁移是否合法
func ApprovalCanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidApprovalTransitions[currentStatus]
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

// ApprovalIsOpen 审批单是否还能继续处理步骤
func ApprovalIsOpen(status string) bool {
	return status == ApprovalStatusPending || status == ApprovalStatusInProgress
}

const (
	StepStatusPending  = "pending"
	StepStatusApproved = "approved"
	StepStatusRejected = "rejected"
	StepStatusSkipped  = "skipped"
)

// Approval 审批单表
// 一笔交易至多对应一张审批单；审批单到达终态后不再变化
type Approval struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionID   int64          `gorm:"uniqueIndex;not null" json:"transaction_id"`
	Status          string         `gorm:"type:varchar(20);index;not null" json:"status"`
	CreatedBy       int64          `gorm:"index;not null" json:"created_by"`
	Steps           []ApprovalStep `gorm:"foreignKey:ApprovalID" json:"steps,omitempty"`
	ApprovedAt      *time.Time     `json:"approved_at"`
	RejectedAt      *time.Time     `json:"rejected_at"`
	RejectionReason string         `gorm:"type:varchar(256)" json:"rejection_reason"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Approval) TableName() string {
	return "approval"
}

// ApprovalStep 审批步骤表
//
// step_order 记录发起时指定的顺序，但引擎不强制按序审批：
// 任意待审步骤都可以被其指派审批人处理，全部通过才算整单通过，
// 任何一步拒绝则整单立即拒绝。步骤只能被处理一次，不允许改判。
type ApprovalStep struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ApprovalID int64      `gorm:"index;not null" json:"approval_id"`
	StepOrder  int        `gorm:"not null" json:"step_order"` // 1 起始，审批单内唯一
	ApproverID int64      `gorm:"index;not null" json:"approver_id"`
	Status     string     `gorm:"type:varchar(20);index;not null" json:"status"`
	Comment    string     `gorm:"type:varchar(256)" json:"comment"`
	DecidedAt  *time.Time `json:"decided_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ApprovalStep) TableName() string {
	return "approval_step"
}
