package repository

import (
	"context"
	"errors"

	"finledger/internal/model"
	"finledger/pkg/errs"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// forUpdate 给查询加上行级排他锁
// 单测跑在 SQLite 上，SQLite 不支持 FOR UPDATE 语法，其写入本身串行
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "mysql" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Newf(errs.KindNotFound, "账户不存在: id=%d", id)
		}
		return nil, err
	}
	return &account, nil
}

// GetByCode 按科目编码查询，不存在时返回 nil 而不是错误，供唯一性预检使用
func (r *AccountRepository) GetByCode(ctx context.Context, code string) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// GetByIDForUpdate 在事务内加行锁读取账户，保证同一账户的过账串行
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Account, error) {
	var account model.Account
	err := forUpdate(tx.WithContext(ctx)).
		Where("id = ?", id).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Newf(errs.KindNotFound, "账户不存在: id=%d", id)
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).Order("code ASC").Find(&accounts).Error
	return accounts, err
}

// Update 按字段更新账户基础信息，余额不在可更新字段之列
func (r *AccountRepository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errs.Newf(errs.KindNotFound, "账户不存在: id=%d", id)
	}
	return nil
}

func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&model.Account{}, id).Error
}

// CountEntries 统计引用该账户的分录数，用于删除前的引用检查
func (r *AccountRepository) CountEntries(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.TransactionEntry{}).
		Where("account_id = ?", accountID).
		Count(&count).Error
	return count, err
}

// ApplyPosting 在事务内对账户执行一笔过账并返回过账后余额
//
// 记账方向规则见 model.PostingDelta；冲销时调用方传入相反方向即可，
// 两者走同一条路径，保证过账与冲销严格互逆。
func (r *AccountRepository) ApplyPosting(ctx context.Context, tx *gorm.DB, accountID int64, amount decimal.Decimal, entryType string) (decimal.Decimal, error) {
	account, err := r.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return decimal.Zero, err
	}

	if !account.IsActive {
		return decimal.Zero, errs.Newf(errs.KindInvalidState, "账户已停用，不允许过账: code=%s", account.Code)
	}

	newBalance := account.Balance.Add(model.PostingDelta(account.Type, entryType, amount))

	err = tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", accountID).
		Update("balance", newBalance).Error
	if err != nil {
		return decimal.Zero, err
	}

	return newBalance, nil
}
