package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"finledger/internal/config"
	"finledger/internal/infrastructure/lock"
	"finledger/internal/model"
	"finledger/internal/repository"
	"finledger/pkg/errs"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ApprovalService 审批工作流
//
// 策略是"全员通过、顺序仅作记录"：step_order 保留发起时指定的顺序，
// 但任意待审步骤都可以被其指派审批人先行处理；全部步骤通过后整单通过，
// 任何一步拒绝则整单立即拒绝。步骤更新、审批单更新、交易状态级联
// 始终在同一个数据库事务内完成，不会出现审批单已通过而交易还挂着的中间态。
type ApprovalService struct {
	db              *gorm.DB
	redisClient     *redis.Client // 可为 nil（单机/测试模式）
	cfg             *config.Config
	approvalRepo    *repository.ApprovalRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewApprovalService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *ApprovalService {
	return &ApprovalService{
		db:              db,
		redisClient:     redisClient,
		cfg:             cfg,
		approvalRepo:    repository.NewApprovalRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

func (s *ApprovalService) lockTransaction(ctx context.Context, transactionID int64, holder string) (*lock.DistributedLock, error) {
	if s.redisClient == nil {
		return nil, nil
	}
	approvalLock := lock.NewApprovalLock(s.redisClient, transactionID, holder,
		time.Duration(s.cfg.Business.ApprovalLockSeconds)*time.Second)
	if err := approvalLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	return approvalLock, nil
}

// Open 为一笔交易开启审批流程
//
// 前置条件：交易存在且恰好处于 pending_approval 状态；该交易尚无审批单；
// 审批人列表非空。原子单元内创建审批单（pending）和全部步骤（按给定顺序，
// step_order 从 1 开始，各步骤初始均为 pending）。
func (s *ApprovalService) Open(ctx context.Context, transactionID int64, approverIDs []int64, createdBy int64) (*model.Approval, error) {
	if len(approverIDs) == 0 {
		return nil, errs.Validation("审批人列表不能为空")
	}

	txn, err := s.transactionRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status != model.TransactionStatusPendingApproval {
		return nil, errs.Newf(errs.KindInvalidState, "交易不在待审批状态，无法发起审批: status=%s", txn.Status)
	}

	existing, err := s.approvalRepo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errs.Newf(errs.KindConflict, "该交易已存在审批单: transaction_id=%d", transactionID)
	}

	approvalLock, err := s.lockTransaction(ctx, transactionID, fmt.Sprintf("open-%d", createdBy))
	if err != nil {
		return nil, err
	}
	if approvalLock != nil {
		defer approvalLock.Unlock(ctx)

		// 拿到锁后再查一次，防止两个实例同时发起
		existing, err = s.approvalRepo.GetByTransactionID(ctx, transactionID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, errs.Newf(errs.KindConflict, "该交易已存在审批单: transaction_id=%d", transactionID)
		}
	}

	approval := &model.Approval{
		TransactionID: transactionID,
		Status:        model.ApprovalStatusPending,
		CreatedBy:     createdBy,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.approvalRepo.Create(ctx, tx, approval); err != nil {
			return fmt.Errorf("创建审批单失败: %w", err)
		}

		for i, approverID := range approverIDs {
			step := &model.ApprovalStep{
				ApprovalID: approval.ID,
				StepOrder:  i + 1,
				ApproverID: approverID,
				Status:     model.StepStatusPending,
			}
			if err := s.approvalRepo.CreateStep(ctx, tx, step); err != nil {
				return fmt.Errorf("创建审批步骤失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("审批流程开启: approval_id=%d, transaction_id=%d, steps=%d", approval.ID, transactionID, len(approverIDs))
	return s.approvalRepo.GetByID(ctx, approval.ID)
}

// Get 查询审批单及其全部步骤
func (s *ApprovalService) Get(ctx context.Context, id int64) (*model.Approval, error) {
	return s.approvalRepo.GetByID(ctx, id)
}

// List 分页查询审批单
func (s *ApprovalService) List(ctx context.Context, page, pageSize int) ([]*model.Approval, int64, error) {
	return s.approvalRepo.List(ctx, page, pageSize)
}

// ResolveStep 处理一个审批步骤
//
// 只有步骤指派的审批人可以处理，且每个步骤只能处理一次；
// 交易必须仍处于待审批状态，挂在已取消交易上的审批单直接拒绝受理。
// 通过：若全部步骤都已通过，审批单置为 approved 并级联交易状态；
//       否则审批单进入 in_progress，交易保持待审批。
// 拒绝：审批单与交易立即置为 rejected，不管其余步骤处于什么状态。
func (s *ApprovalService) ResolveStep(ctx context.Context, approvalID, stepID, approverID int64, approved bool, comment string) (*model.Approval, error) {
	approval, err := s.approvalRepo.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}

	var step *model.ApprovalStep
	for i := range approval.Steps {
		if approval.Steps[i].ID == stepID {
			step = &approval.Steps[i]
			break
		}
	}
	if step == nil {
		return nil, errs.Newf(errs.KindNotFound, "审批步骤不存在: id=%d", stepID)
	}

	if step.ApproverID != approverID {
		return nil, errs.Newf(errs.KindForbidden, "当前用户不是该步骤的指派审批人: step_id=%d", stepID)
	}
	if step.Status != model.StepStatusPending {
		return nil, errs.Newf(errs.KindInvalidState, "审批步骤已处理，不允许重复处理: id=%d", stepID)
	}
	if !model.ApprovalIsOpen(approval.Status) {
		return nil, errs.Newf(errs.KindInvalidState, "审批单已到终态，不允许继续处理: status=%s", approval.Status)
	}

	txn, err := s.transactionRepo.GetByID(ctx, approval.TransactionID)
	if err != nil {
		return nil, err
	}
	// 交易被外部取消（或以其他方式离开待审批）后，审批单不再受理任何步骤
	if txn.Status != model.TransactionStatusPendingApproval {
		return nil, errs.Newf(errs.KindInvalidState, "交易已不在待审批状态，审批单不再受理: status=%s", txn.Status)
	}

	approvalLock, err := s.lockTransaction(ctx, approval.TransactionID, fmt.Sprintf("resolve-%d", approverID))
	if err != nil {
		return nil, err
	}
	if approvalLock != nil {
		defer approvalLock.Unlock(ctx)
	}

	now := time.Now()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if approved {
			if err := s.approvalRepo.UpdateStepDecision(ctx, tx, stepID, model.StepStatusApproved, comment, now); err != nil {
				return err
			}

			// 基于锁内视图判断是否全部通过，乱序的最后一票同样生效
			steps, err := s.approvalRepo.GetStepsForUpdate(ctx, tx, approvalID)
			if err != nil {
				return err
			}
			allApproved := true
			for _, sibling := range steps {
				if sibling.Status != model.StepStatusApproved {
					allApproved = false
					break
				}
			}

			if allApproved {
				if err := s.approvalRepo.UpdateStatus(ctx, tx, approvalID, approval.Status, model.ApprovalStatusApproved,
					map[string]interface{}{"approved_at": now}); err != nil {
					return err
				}
				if err := s.transactionRepo.UpdateStatus(ctx, tx, txn, txn.Status, model.TransactionStatusApproved); err != nil {
					return err
				}
				return s.outboxRepo.CreateEvent(ctx, tx, s.cfg.Kafka.Topic.ApprovalEvents,
					model.EventApprovalApproved, txn.TransactionNo, map[string]interface{}{
						"approval_id":    approvalID,
						"transaction_no": txn.TransactionNo,
					})
			}

			if approval.Status == model.ApprovalStatusPending {
				return s.approvalRepo.UpdateStatus(ctx, tx, approvalID, model.ApprovalStatusPending, model.ApprovalStatusInProgress, nil)
			}
			return nil
		}

		// 单票否决：一步拒绝，整单与交易立即拒绝
		if err := s.approvalRepo.UpdateStepDecision(ctx, tx, stepID, model.StepStatusRejected, comment, now); err != nil {
			return err
		}
		if err := s.approvalRepo.UpdateStatus(ctx, tx, approvalID, approval.Status, model.ApprovalStatusRejected,
			map[string]interface{}{"rejected_at": now, "rejection_reason": comment}); err != nil {
			return err
		}
		if err := s.transactionRepo.UpdateStatus(ctx, tx, txn, txn.Status, model.TransactionStatusRejected); err != nil {
			return err
		}
		return s.outboxRepo.CreateEvent(ctx, tx, s.cfg.Kafka.Topic.ApprovalEvents,
			model.EventApprovalRejected, txn.TransactionNo, map[string]interface{}{
				"approval_id":      approvalID,
				"transaction_no":   txn.TransactionNo,
				"rejection_reason": comment,
			})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("审批步骤处理完成: approval_id=%d, step_id=%d, approved=%v", approvalID, stepID, approved)
	return s.approvalRepo.GetByID(ctx, approvalID)
}

// ListPendingForApprover 查询审批人名下待处理的步骤，最早发起的在前
func (s *ApprovalService) ListPendingForApprover(ctx context.Context, approverID int64, page, pageSize int) ([]*model.ApprovalStep, int64, error) {
	return s.approvalRepo.ListPendingSteps(ctx, approverID, page, pageSize)
}
