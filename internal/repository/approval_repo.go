package repository

import (
	"context"
	"errors"
	"time"

	"finledger/internal/model"
	"finledger/pkg/errs"

	"gorm.io/gorm"
)

type ApprovalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

func (r *ApprovalRepository) Create(ctx context.Context, tx *gorm.DB, approval *model.Approval) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(approval).Error
}

func (r *ApprovalRepository) CreateStep(ctx context.Context, tx *gorm.DB, step *model.ApprovalStep) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(step).Error
}

func (r *ApprovalRepository) GetByID(ctx context.Context, id int64) (*model.Approval, error) {
	var approval model.Approval
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Where("id = ?", id).
		First(&approval).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Newf(errs.KindNotFound, "审批单不存在: id=%d", id)
		}
		return nil, err
	}
	return &approval, nil
}

// GetByTransactionID 查询交易对应的审批单，不存在时返回 nil，供唯一性预检使用
func (r *ApprovalRepository) GetByTransactionID(ctx context.Context, transactionID int64) (*model.Approval, error) {
	var approval model.Approval
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&approval).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &approval, nil
}

func (r *ApprovalRepository) List(ctx context.Context, page, pageSize int) ([]*model.Approval, int64, error) {
	var approvals []*model.Approval
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Approval{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&approvals).Error
	return approvals, total, err
}

// GetStepsForUpdate 在事务内加锁读取审批单的全部步骤
// "是否全部通过"的判定必须基于锁内视图，避免两个审批人同时通过最后两步时判重
func (r *ApprovalRepository) GetStepsForUpdate(ctx context.Context, tx *gorm.DB, approvalID int64) ([]*model.ApprovalStep, error) {
	var steps []*model.ApprovalStep
	err := forUpdate(tx.WithContext(ctx)).
		Where("approval_id = ?", approvalID).
		Order("step_order ASC").
		Find(&steps).Error
	return steps, err
}

// UpdateStepDecision 写入审批步骤的处理结果
//
// WHERE 限定 status = pending：步骤只能被处理一次，
// RowsAffected == 0 说明已被处理过（或并发处理），直接报状态错误。
func (r *ApprovalRepository) UpdateStepDecision(ctx context.Context, tx *gorm.DB, stepID int64, toStatus, comment string, decidedAt time.Time) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.ApprovalStep{}).
		Where("id = ? AND status = ?", stepID, model.StepStatusPending).
		Updates(map[string]interface{}{
			"status":     toStatus,
			"comment":    comment,
			"decided_at": decidedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errs.Newf(errs.KindInvalidState, "审批步骤已处理，不允许重复处理: id=%d", stepID)
	}
	return nil
}

// UpdateStatus 带迁移表校验的审批单状态更新
func (r *ApprovalRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, approvalID int64, fromStatus, toStatus string, extra map[string]interface{}) error {
	if !model.ApprovalCanTransitionTo(fromStatus, toStatus) {
		return errs.Newf(errs.KindInvalidState, "审批单状态不允许从 %s 变更为 %s", fromStatus, toStatus)
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{"status": toStatus}
	for k, v := range extra {
		updates[k] = v
	}

	result := tx.WithContext(ctx).
		Model(&model.Approval{}).
		Where("id = ? AND status = ?", approvalID, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errs.Newf(errs.KindInvalidState, "审批单状态已变更，更新失败: id=%d", approvalID)
	}
	return nil
}

// ListPendingSteps 查询指定审批人名下待处理的步骤，按创建时间正序分页
func (r *ApprovalRepository) ListPendingSteps(ctx context.Context, approverID int64, page, pageSize int) ([]*model.ApprovalStep, int64, error) {
	var steps []*model.ApprovalStep
	var total int64

	query := r.db.WithContext(ctx).
		Model(&model.ApprovalStep{}).
		Where("approver_id = ? AND status = ?", approverID, model.StepStatusPending)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&steps).Error
	return steps, total, err
}

// DeleteByTransactionID 随交易回滚一并删除审批单及其步骤
func (r *ApprovalRepository) DeleteByTransactionID(ctx context.Context, tx *gorm.DB, transactionID int64) error {
	if tx == nil {
		tx = r.db
	}

	var approval model.Approval
	err := tx.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&approval).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if err := tx.WithContext(ctx).
		Where("approval_id = ?", approval.ID).
		Delete(&model.ApprovalStep{}).Error; err != nil {
		return err
	}

	return tx.WithContext(ctx).Delete(&model.Approval{}, approval.ID).Error
}
