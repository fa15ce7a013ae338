package repository

import (
	"context"
	"errors"
	"time"

	"finledger/internal/model"
	"finledger/pkg/errs"
	"finledger/pkg/integrity"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, txn *model.Transaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(txn).Error
}

func (r *TransactionRepository) CreateEntry(ctx context.Context, tx *gorm.DB, entry *model.TransactionEntry) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// GetByID 读取一笔交易的完整视图（分录、科目、审批单、审批步骤）
//
// 【关键点】返回前必须重算哈希并与存储值比对，
// 对不上说明数据被绕过引擎篡改，宁可报错也不能把脏数据交出去
func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*model.Transaction, error) {
	var txn model.Transaction
	err := r.db.WithContext(ctx).
		Preload("Entries").
		Preload("Entries.Account").
		Preload("Approval").
		Preload("Approval.Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Where("id = ?", id).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Newf(errs.KindNotFound, "交易不存在: id=%d", id)
		}
		return nil, err
	}

	if !integrity.Verify(txn.Hash, txn.ID, txn.Amount, txn.TransactionDate, txn.Status) {
		return nil, errs.Newf(errs.KindIntegrity, "交易完整性校验失败: no=%s", txn.TransactionNo)
	}

	return &txn, nil
}

func (r *TransactionRepository) GetByNo(ctx context.Context, transactionNo string) (*model.Transaction, error) {
	var txn model.Transaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Newf(errs.KindNotFound, "交易不存在: no=%s", transactionNo)
		}
		return nil, err
	}
	return r.GetByID(ctx, txn.ID)
}

// GetLatestHash 取最近一笔交易的哈希，作为新交易的前驱指针
func (r *TransactionRepository) GetLatestHash(ctx context.Context, tx *gorm.DB) (string, error) {
	if tx == nil {
		tx = r.db
	}
	var txn model.Transaction
	err := tx.WithContext(ctx).
		Select("hash").
		Order("id DESC").
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil // 账本里还没有交易，链从这里开始
		}
		return "", err
	}
	return txn.Hash, nil
}

// UpdateHash 交易创建流程的收尾：分录与过账都落库后写入最终哈希
func (r *TransactionRepository) UpdateHash(ctx context.Context, tx *gorm.DB, id int64, hash, previousHash string) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"hash":          hash,
			"previous_hash": previousHash,
		}).Error
}

// UpdateStatus 带迁移表校验的状态更新
//
// 状态参与哈希计算，所以每次状态变更都同步重算哈希，绝不让哈希过期。
// WHERE 带上旧状态，RowsAffected == 0 说明状态已被并发修改，直接失败。
func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, txn *model.Transaction, fromStatus, toStatus string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return errs.Newf(errs.KindInvalidState, "交易状态不允许从 %s 变更为 %s", fromStatus, toStatus)
	}

	if tx == nil {
		tx = r.db
	}

	newHash := integrity.TransactionDigest(txn.ID, txn.Amount, txn.TransactionDate, toStatus)

	result := tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", txn.ID, fromStatus).
		Updates(map[string]interface{}{
			"status": toStatus,
			"hash":   newHash,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errs.Newf(errs.KindInvalidState, "交易状态已变更，更新失败: id=%d", txn.ID)
	}
	return nil
}

func (r *TransactionRepository) DeleteEntries(ctx context.Context, tx *gorm.DB, transactionID int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Delete(&model.TransactionEntry{}).Error
}

func (r *TransactionRepository) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Delete(&model.Transaction{}, id).Error
}

// ListFilter 交易列表查询条件，零值字段不参与过滤
type ListFilter struct {
	Status   string
	Type     string
	DateFrom *time.Time
	DateTo   *time.Time
}

// List 分页查询交易（含分录），供报表等读场景使用
// 列表同样执行完整性校验：任何一行被篡改都让整个查询失败
func (r *TransactionRepository) List(ctx context.Context, filter ListFilter, page, pageSize int) ([]*model.Transaction, int64, error) {
	var transactions []*model.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Transaction{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.DateFrom != nil {
		query = query.Where("transaction_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("transaction_date <= ?", *filter.DateTo)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Entries").
		Preload("Entries.Account").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error
	if err != nil {
		return nil, 0, err
	}

	for _, txn := range transactions {
		if !integrity.Verify(txn.Hash, txn.ID, txn.Amount, txn.TransactionDate, txn.Status) {
			return nil, 0, errs.Newf(errs.KindIntegrity, "交易完整性校验失败: no=%s", txn.TransactionNo)
		}
	}

	return transactions, total, nil
}

// ListForAudit 按主键顺序批量读取原始交易行，不做完整性校验
// 专供链审计任务使用，审计本身就是来找被篡改的行的
func (r *TransactionRepository) ListForAudit(ctx context.Context, afterID int64, limit int) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&transactions).Error
	return transactions, err
}
