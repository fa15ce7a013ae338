package service

import (
	"context"
	"encoding/json"
	"time"

	"finledger/internal/config"
	"finledger/internal/model"
	"finledger/internal/repository"
	"finledger/pkg/errs"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// balanceSheetCacheKey 资产负债表缓存键，任何过账都会让它失效
const balanceSheetCacheKey = "report:balance_sheet"

func invalidateBalanceSheetCache(ctx context.Context, redisClient *redis.Client) {
	if redisClient != nil {
		redisClient.Del(ctx, balanceSheetCacheKey)
	}
}

// AccountService 科目账户管理与余额读模型
// 账户由管理员创建维护；余额只能通过交易分录过账变动
type AccountService struct {
	db          *gorm.DB
	redisClient *redis.Client // 可为 nil（单机/测试模式），仅影响报表缓存
	cfg         *config.Config
	accountRepo *repository.AccountRepository
}

func NewAccountService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *AccountService {
	return &AccountService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		accountRepo: repository.NewAccountRepository(db),
	}
}

// CreateAccountRequest 创建账户请求
type CreateAccountRequest struct {
	Code        string `json:"code" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Type        string `json:"type" binding:"required"`
}

func (s *AccountService) Create(ctx context.Context, req *CreateAccountRequest) (*model.Account, error) {
	if !model.ValidAccountTypes[req.Type] {
		return nil, errs.Newf(errs.KindValidation, "科目类别不合法: %s", req.Type)
	}

	existing, err := s.accountRepo.GetByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errs.Newf(errs.KindConflict, "科目编码已存在: %s", req.Code)
	}

	account := &model.Account{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Balance:     decimal.Zero,
		IsActive:    true,
	}
	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AccountService) Get(ctx context.Context, id int64) (*model.Account, error) {
	return s.accountRepo.GetByID(ctx, id)
}

func (s *AccountService) GetByCode(ctx context.Context, code string) (*model.Account, error) {
	account, err := s.accountRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, errs.Newf(errs.KindNotFound, "账户不存在: code=%s", code)
	}
	return account, nil
}

func (s *AccountService) List(ctx context.Context) ([]*model.Account, error) {
	return s.accountRepo.List(ctx)
}

// UpdateAccountRequest 账户更新请求
// 可更新字段逐一列举，nil 表示不更新该字段；
// code 和科目类别创建后不可变，改它们等于追溯改写历史过账的记账方向
type UpdateAccountRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

func (s *AccountService) Update(ctx context.Context, id int64, req *UpdateAccountRequest) (*model.Account, error) {
	if _, err := s.accountRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, errs.Validation("账户名称不能为空")
		}
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) > 0 {
		if err := s.accountRepo.Update(ctx, id, updates); err != nil {
			return nil, err
		}
	}
	return s.accountRepo.GetByID(ctx, id)
}

// Delete 删除账户；存在分录引用时拒绝删除
func (s *AccountService) Delete(ctx context.Context, id int64) error {
	if _, err := s.accountRepo.GetByID(ctx, id); err != nil {
		return err
	}

	count, err := s.accountRepo.CountEntries(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return errs.Newf(errs.KindConflict, "账户已被 %d 条分录引用，不允许删除", count)
	}

	return s.accountRepo.Delete(ctx, id)
}

// BalanceSnapshot 账户余额快照读模型
type BalanceSnapshot struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Balance   decimal.Decimal `json:"balance"`
	IsActive  bool            `json:"is_active"`
}

func (s *AccountService) GetBalance(ctx context.Context, id int64) (*BalanceSnapshot, error) {
	account, err := s.accountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &BalanceSnapshot{
		AccountID: account.ID,
		Code:      account.Code,
		Name:      account.Name,
		Type:      account.Type,
		Balance:   account.Balance,
		IsActive:  account.IsActive,
	}, nil
}

// BalanceSheetSection 资产负债表分组
type BalanceSheetSection struct {
	Accounts []*model.Account `json:"accounts"`
	Total    decimal.Decimal  `json:"total"`
}

// BalanceSheet 资产负债表读模型
// Balance = 资产合计 - (负债合计 + 权益合计)，复式记账下应为零
type BalanceSheet struct {
	Assets      BalanceSheetSection `json:"assets"`
	Liabilities BalanceSheetSection `json:"liabilities"`
	Equity      BalanceSheetSection `json:"equity"`
	Balance     decimal.Decimal     `json:"balance"`
}

// GetBalanceSheet 汇总资产负债表，结果短暂缓存，过账时失效
func (s *AccountService) GetBalanceSheet(ctx context.Context) (*BalanceSheet, error) {
	if s.redisClient != nil {
		cached, err := s.redisClient.Get(ctx, balanceSheetCacheKey).Result()
		if err == nil {
			var sheet BalanceSheet
			if json.Unmarshal([]byte(cached), &sheet) == nil {
				return &sheet, nil
			}
		}
	}

	accounts, err := s.accountRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	sheet := &BalanceSheet{
		Assets:      BalanceSheetSection{Accounts: []*model.Account{}, Total: decimal.Zero},
		Liabilities: BalanceSheetSection{Accounts: []*model.Account{}, Total: decimal.Zero},
		Equity:      BalanceSheetSection{Accounts: []*model.Account{}, Total: decimal.Zero},
	}

	for _, account := range accounts {
		switch account.Type {
		case model.AccountTypeAsset:
			sheet.Assets.Accounts = append(sheet.Assets.Accounts, account)
			sheet.Assets.Total = sheet.Assets.Total.Add(account.Balance)
		case model.AccountTypeLiability:
			sheet.Liabilities.Accounts = append(sheet.Liabilities.Accounts, account)
			sheet.Liabilities.Total = sheet.Liabilities.Total.Add(account.Balance)
		case model.AccountTypeEquity:
			sheet.Equity.Accounts = append(sheet.Equity.Accounts, account)
			sheet.Equity.Total = sheet.Equity.Total.Add(account.Balance)
		}
	}
	sheet.Balance = sheet.Assets.Total.Sub(sheet.Liabilities.Total.Add(sheet.Equity.Total))

	if s.redisClient != nil {
		if data, err := json.Marshal(sheet); err == nil {
			ttl := time.Duration(s.cfg.Business.BalanceSheetCacheTTL) * time.Second
			s.redisClient.Set(ctx, balanceSheetCacheKey, data, ttl)
		}
	}

	return sheet, nil
}
