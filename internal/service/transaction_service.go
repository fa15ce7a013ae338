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
	"finledger/pkg/idgen"
	"finledger/pkg/integrity"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// balanceTolerance 借贷平衡容差：0.01 货币单位
var balanceTolerance = decimal.NewFromFloat(0.01)

// TransactionService 账本引擎的核心：交易创建、查询、状态流转与回滚
//
// 每个公开操作都是一个全有或全无的工作单元：
// 交易、分录、账户余额、审批、outbox 事件要么一起落库，要么一起丢弃。
// 任何前置校验失败都发生在写入之前，失败时原始错误原样抛给调用方。
type TransactionService struct {
	db              *gorm.DB
	redisClient     *redis.Client // 可为 nil（单机/测试模式），仅影响分布式锁与缓存
	cfg             *config.Config
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	approvalRepo    *repository.ApprovalRepository
	outboxRepo      *repository.OutboxRepository
}

func NewTransactionService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *TransactionService {
	return &TransactionService{
		db:              db,
		redisClient:     redisClient,
		cfg:             cfg,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		approvalRepo:    repository.NewApprovalRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

// EntryInput 创建交易时的单条分录
type EntryInput struct {
	AccountID   int64           `json:"account_id" binding:"required"`
	Type        string          `json:"type" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Description string          `json:"description"`
}

// CreateTransactionRequest 创建交易请求
type CreateTransactionRequest struct {
	Type            string
	TransactionDate time.Time
	Description     string
	Reference       string
	CategoryID      *int64
	CreatedBy       int64
	Entries         []EntryInput
}

// validateEntries 创建前的全部校验，必须在任何写入发生之前完成
func validateEntries(req *CreateTransactionRequest) (decimal.Decimal, error) {
	if !model.ValidTransactionTypes[req.Type] {
		return decimal.Zero, errs.Newf(errs.KindValidation, "交易类型不合法: %s", req.Type)
	}
	if len(req.Entries) == 0 {
		return decimal.Zero, errs.Validation("交易必须至少包含一条分录")
	}

	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for _, e := range req.Entries {
		if e.Type != model.EntryTypeDebit && e.Type != model.EntryTypeCredit {
			return decimal.Zero, errs.Newf(errs.KindValidation, "分录方向不合法: %s", e.Type)
		}
		if !e.Amount.IsPositive() {
			return decimal.Zero, errs.Validation("分录金额必须大于0")
		}
		if e.Type == model.EntryTypeDebit {
			totalDebit = totalDebit.Add(e.Amount)
		} else {
			totalCredit = totalCredit.Add(e.Amount)
		}
	}

	// 复式记账约束：借方合计 == 贷方合计（容差 0.01）
	if totalDebit.Sub(totalCredit).Abs().GreaterThan(balanceTolerance) {
		return decimal.Zero, errs.Newf(errs.KindValidation,
			"借贷不平衡: 借方合计=%s 贷方合计=%s", totalDebit.StringFixed(2), totalCredit.StringFixed(2))
	}

	return totalDebit, nil
}

// Create 创建一笔交易
//
// 原子单元内依次完成：分配交易号、落库草稿、逐条写入分录并过账、
// 计算完整性哈希（previous_hash 指向上一笔交易）、写入领域事件。
// 任何一步失败整体回滚，不会出现孤儿交易或半截过账。
func (s *TransactionService) Create(ctx context.Context, req *CreateTransactionRequest) (*model.Transaction, error) {
	amount, err := validateEntries(req)
	if err != nil {
		return nil, err
	}

	txn := &model.Transaction{
		TransactionNo:   idgen.GenerateTransactionNo(),
		Type:            req.Type,
		Status:          model.TransactionStatusDraft,
		Amount:          amount,
		TransactionDate: req.TransactionDate,
		Description:     req.Description,
		Reference:       req.Reference,
		CategoryID:      req.CategoryID,
		CreatedBy:       req.CreatedBy,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		previousHash, err := s.transactionRepo.GetLatestHash(ctx, tx)
		if err != nil {
			return fmt.Errorf("读取链尾哈希失败: %w", err)
		}

		if err := s.transactionRepo.Create(ctx, tx, txn); err != nil {
			return fmt.Errorf("创建交易失败: %w", err)
		}

		for _, e := range req.Entries {
			entry := &model.TransactionEntry{
				TransactionID: txn.ID,
				AccountID:     e.AccountID,
				Type:          e.Type,
				Amount:        e.Amount,
				Description:   e.Description,
			}
			if err := s.transactionRepo.CreateEntry(ctx, tx, entry); err != nil {
				return fmt.Errorf("写入分录失败: %w", err)
			}

			// 过账会校验账户存在且启用，失败时整个事务回滚
			if _, err := s.accountRepo.ApplyPosting(ctx, tx, e.AccountID, e.Amount, e.Type); err != nil {
				return err
			}
		}

		hash := integrity.TransactionDigest(txn.ID, txn.Amount, txn.TransactionDate, txn.Status)
		if err := s.transactionRepo.UpdateHash(ctx, tx, txn.ID, hash, previousHash); err != nil {
			return fmt.Errorf("写入交易哈希失败: %w", err)
		}

		return s.outboxRepo.CreateEvent(ctx, tx, s.cfg.Kafka.Topic.TransactionEvents,
			model.EventTransactionCreated, txn.TransactionNo, map[string]interface{}{
				"transaction_no": txn.TransactionNo,
				"type":           txn.Type,
				"amount":         txn.Amount.StringFixed(2),
				"status":         txn.Status,
				"created_by":     txn.CreatedBy,
			})
	})
	if err != nil {
		return nil, err
	}

	invalidateBalanceSheetCache(ctx, s.redisClient)
	log.Printf("交易创建成功: no=%s, amount=%s, entries=%d", txn.TransactionNo, txn.Amount.StringFixed(2), len(req.Entries))

	return s.transactionRepo.GetByID(ctx, txn.ID)
}

// Get 查询交易完整视图，读取时校验完整性哈希
func (s *TransactionService) Get(ctx context.Context, id int64) (*model.Transaction, error) {
	return s.transactionRepo.GetByID(ctx, id)
}

// GetByNo 按交易号查询
func (s *TransactionService) GetByNo(ctx context.Context, transactionNo string) (*model.Transaction, error) {
	return s.transactionRepo.GetByNo(ctx, transactionNo)
}

// List 分页查询交易，供报表等读场景使用
func (s *TransactionService) List(ctx context.Context, filter repository.ListFilter, page, pageSize int) ([]*model.Transaction, int64, error) {
	return s.transactionRepo.List(ctx, filter, page, pageSize)
}

// SetStatus 按迁移表推进交易状态，状态与哈希同步更新
func (s *TransactionService) SetStatus(ctx context.Context, id int64, toStatus string) (*model.Transaction, error) {
	txn, err := s.transactionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.transactionRepo.UpdateStatus(ctx, tx, txn, txn.Status, toStatus); err != nil {
			return err
		}
		return s.outboxRepo.CreateEvent(ctx, tx, s.cfg.Kafka.Topic.TransactionEvents,
			model.EventTransactionStatusChanged, txn.TransactionNo, map[string]interface{}{
				"transaction_no": txn.TransactionNo,
				"from_status":    txn.Status,
				"to_status":      toStatus,
			})
	})
	if err != nil {
		return nil, err
	}

	return s.transactionRepo.GetByID(ctx, id)
}

// Rollback 回滚一笔交易
//
// 已完成的交易不可回滚。其余状态下：逐条按相反方向冲销过账、
// 删除审批单与步骤、删除分录、删除交易，全部在一个原子单元内。
// 过账是线性的，冲销后每个账户的余额精确恢复到创建前的值。
func (s *TransactionService) Rollback(ctx context.Context, id int64) error {
	txn, err := s.transactionRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if txn.Status == model.TransactionStatusCompleted {
		return errs.Newf(errs.KindInvalidState, "已完成的交易不允许回滚: no=%s", txn.TransactionNo)
	}

	if s.redisClient != nil {
		rollbackLock := lock.NewRollbackLock(s.redisClient, txn.ID, txn.TransactionNo,
			time.Duration(s.cfg.Business.ApprovalLockSeconds)*time.Second)
		if err := rollbackLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer rollbackLock.Unlock(ctx)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, entry := range txn.Entries {
			if _, err := s.accountRepo.ApplyPosting(ctx, tx, entry.AccountID, entry.Amount, model.ReverseEntryType(entry.Type)); err != nil {
				return err
			}
		}

		if err := s.approvalRepo.DeleteByTransactionID(ctx, tx, txn.ID); err != nil {
			return fmt.Errorf("删除审批单失败: %w", err)
		}

		if err := s.transactionRepo.DeleteEntries(ctx, tx, txn.ID); err != nil {
			return fmt.Errorf("删除分录失败: %w", err)
		}

		if err := s.transactionRepo.Delete(ctx, tx, txn.ID); err != nil {
			return fmt.Errorf("删除交易失败: %w", err)
		}

		return s.outboxRepo.CreateEvent(ctx, tx, s.cfg.Kafka.Topic.TransactionEvents,
			model.EventTransactionRolledBack, txn.TransactionNo, map[string]interface{}{
				"transaction_no": txn.TransactionNo,
				"status":         txn.Status,
				"amount":         txn.Amount.StringFixed(2),
			})
	})
	if err != nil {
		return err
	}

	invalidateBalanceSheetCache(ctx, s.redisClient)
	log.Printf("交易回滚成功: no=%s", txn.TransactionNo)
	return nil
}

// ChainAuditResult 账本链审计结果
type ChainAuditResult struct {
	Checked     int      `json:"checked"`
	Corrupted   []string `json:"corrupted"`    // 哈希对不上的交易号
	BrokenLinks int      `json:"broken_links"` // 前驱指针对不上的行数（回滚删行会留下断点，只告警）
}

// VerifyChain 全量扫描交易表，逐行校验哈希并检查前驱指针
func (s *TransactionService) VerifyChain(ctx context.Context) (*ChainAuditResult, error) {
	result := &ChainAuditResult{Corrupted: []string{}}

	var afterID int64
	var prevHash string
	first := true
	const batchSize = 200

	for {
		batch, err := s.transactionRepo.ListForAudit(ctx, afterID, batchSize)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		for _, txn := range batch {
			result.Checked++
			if !integrity.Verify(txn.Hash, txn.ID, txn.Amount, txn.TransactionDate, txn.Status) {
				result.Corrupted = append(result.Corrupted, txn.TransactionNo)
			}
			if !first && txn.PreviousHash != prevHash {
				result.BrokenLinks++
			}
			first = false
			prevHash = txn.Hash
			afterID = txn.ID
		}

		if len(batch) < batchSize {
			break
		}
	}

	return result, nil
}
