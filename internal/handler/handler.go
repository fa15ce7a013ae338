package handler

import (
	"strconv"
	"time"

	"finledger/internal/config"
	"finledger/internal/repository"
	"finledger/internal/service"
	"finledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	accountService     *service.AccountService
	transactionService *service.TransactionService
	approvalService    *service.ApprovalService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		accountService:     service.NewAccountService(db, rdb, cfg),
		transactionService: service.NewTransactionService(db, rdb, cfg),
		approvalService:    service.NewApprovalService(db, rdb, cfg),
	}
}

// currentUserID 从网关注入的请求头里取调用者身份
// 鉴权和权限判定在上游完成，引擎只记录"是谁"
func currentUserID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	if err != nil || userID <= 0 {
		return 0, false
	}
	return userID, true
}

func parsePage(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}

// ============================================================
// 账户相关接口
// ============================================================

// CreateAccount 创建科目账户
// POST /api/v1/account/create
func (h *Handler) CreateAccount(c *gin.Context) {
	var req service.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.accountService.Create(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, account)
}

// GetAccount 查询账户详情
// GET /api/v1/account/detail?id=xxx 或 ?code=xxx
func (h *Handler) GetAccount(c *gin.Context) {
	if code := c.Query("code"); code != "" {
		account, err := h.accountService.GetByCode(c.Request.Context(), code)
		if err != nil {
			response.FromError(c, err)
			return
		}
		response.Success(c, account)
		return
	}

	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id 参数错误")
		return
	}

	account, err := h.accountService.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, account)
}

// ListAccounts 查询账户列表（按科目编码排序）
// GET /api/v1/account/list
func (h *Handler) ListAccounts(c *gin.Context) {
	accounts, err := h.accountService.List(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":  accounts,
		"total": len(accounts),
	})
}

// UpdateAccountRequest 更新账户请求，未提供的字段不更新
type UpdateAccountRequest struct {
	ID          int64   `json:"id" binding:"required"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

// UpdateAccount 更新账户基础信息（编码与科目类别不可变）
// POST /api/v1/account/update
func (h *Handler) UpdateAccount(c *gin.Context) {
	var req UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.accountService.Update(c.Request.Context(), req.ID, &service.UpdateAccountRequest{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, account)
}

// DeleteAccount 删除账户（被分录引用时拒绝）
// POST /api/v1/account/delete
func (h *Handler) DeleteAccount(c *gin.Context) {
	var req struct {
		ID int64 `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.accountService.Delete(c.Request.Context(), req.ID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "账户已删除"})
}

// GetBalance 查询账户余额快照
// GET /api/v1/account/balance?id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id 参数错误")
		return
	}

	snapshot, err := h.accountService.GetBalance(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, snapshot)
}

// GetBalanceSheet 查询资产负债表
// GET /api/v1/account/balance-sheet
func (h *Handler) GetBalanceSheet(c *gin.Context) {
	sheet, err := h.accountService.GetBalanceSheet(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, sheet)
}

// ============================================================
// 交易相关接口
// ============================================================

// CreateTransactionRequest 创建交易请求
type CreateTransactionRequest struct {
	Type            string               `json:"type" binding:"required"`
	TransactionDate string               `json:"transaction_date" binding:"required"` // 格式 2006-01-02
	Description     string               `json:"description"`
	Reference       string               `json:"reference"`
	CategoryID      *int64               `json:"category_id"`
	Entries         []service.EntryInput `json:"entries" binding:"required"`
}

// CreateTransaction 创建交易
// POST /api/v1/transaction/create
//
// 【关键点】创建是引擎最核心的操作，必须保证：
// 1. 借贷平衡校验发生在任何写入之前
// 2. 交易、分录、账户过账、完整性哈希同生共死
func (h *Handler) CreateTransaction(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.ParamError(c, "缺少 X-User-ID 请求头")
		return
	}

	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	date, err := time.Parse("2006-01-02", req.TransactionDate)
	if err != nil {
		response.ParamError(c, "transaction_date 格式错误，应为 2006-01-02")
		return
	}

	txn, err := h.transactionService.Create(c.Request.Context(), &service.CreateTransactionRequest{
		Type:            req.Type,
		TransactionDate: date,
		Description:     req.Description,
		Reference:       req.Reference,
		CategoryID:      req.CategoryID,
		CreatedBy:       userID,
		Entries:         req.Entries,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, txn)
}

// GetTransaction 查询交易详情（含分录、科目、审批单）
// GET /api/v1/transaction/detail?id=xxx 或 ?no=xxx
func (h *Handler) GetTransaction(c *gin.Context) {
	if no := c.Query("no"); no != "" {
		txn, err := h.transactionService.GetByNo(c.Request.Context(), no)
		if err != nil {
			response.FromError(c, err)
			return
		}
		response.Success(c, txn)
		return
	}

	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id 参数错误")
		return
	}

	txn, err := h.transactionService.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, txn)
}

// ListTransactions 分页查询交易
// GET /api/v1/transaction/list?status=xxx&type=xxx&date_from=xxx&date_to=xxx&page=1&page_size=10
func (h *Handler) ListTransactions(c *gin.Context) {
	filter := repository.ListFilter{
		Status: c.Query("status"),
		Type:   c.Query("type"),
	}
	if v := c.Query("date_from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			response.ParamError(c, "date_from 格式错误，应为 2006-01-02")
			return
		}
		filter.DateFrom = &t
	}
	if v := c.Query("date_to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			response.ParamError(c, "date_to 格式错误，应为 2006-01-02")
			return
		}
		filter.DateTo = &t
	}

	page, pageSize := parsePage(c)
	transactions, total, err := h.transactionService.List(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      transactions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// SetTransactionStatus 推进交易状态
// POST /api/v1/transaction/status
func (h *Handler) SetTransactionStatus(c *gin.Context) {
	var req struct {
		ID     int64  `json:"id" binding:"required"`
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	txn, err := h.transactionService.SetStatus(c.Request.Context(), req.ID, req.Status)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, txn)
}

// RollbackTransaction 回滚交易
// POST /api/v1/transaction/rollback
func (h *Handler) RollbackTransaction(c *gin.Context) {
	var req struct {
		ID int64 `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.transactionService.Rollback(c.Request.Context(), req.ID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "交易已回滚"})
}

// VerifyChain 全量审计账本链
// GET /api/v1/transaction/verify-chain
func (h *Handler) VerifyChain(c *gin.Context) {
	result, err := h.transactionService.VerifyChain(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 审批相关接口
// ============================================================

// CreateApprovalRequest 发起审批请求
type CreateApprovalRequest struct {
	TransactionID int64   `json:"transaction_id" binding:"required"`
	ApproverIDs   []int64 `json:"approver_ids" binding:"required"`
}

// CreateApproval 为交易发起审批流程
// POST /api/v1/approval/create
func (h *Handler) CreateApproval(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.ParamError(c, "缺少 X-User-ID 请求头")
		return
	}

	var req CreateApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	approval, err := h.approvalService.Open(c.Request.Context(), req.TransactionID, req.ApproverIDs, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, approval)
}

// GetApproval 查询审批单详情
// GET /api/v1/approval/detail?id=xxx
func (h *Handler) GetApproval(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id 参数错误")
		return
	}

	approval, err := h.approvalService.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, approval)
}

// ListApprovals 分页查询审批单
// GET /api/v1/approval/list?page=1&page_size=10
func (h *Handler) ListApprovals(c *gin.Context) {
	page, pageSize := parsePage(c)
	approvals, total, err := h.approvalService.List(c.Request.Context(), page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      approvals,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ResolveStepRequest 处理审批步骤请求
type ResolveStepRequest struct {
	ApprovalID int64  `json:"approval_id" binding:"required"`
	StepID     int64  `json:"step_id" binding:"required"`
	Approved   *bool  `json:"approved" binding:"required"` // 指针类型区分 false 与未提供
	Comment    string `json:"comment"`
}

// ResolveStep 审批人处理自己名下的步骤
// POST /api/v1/approval/resolve
func (h *Handler) ResolveStep(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.ParamError(c, "缺少 X-User-ID 请求头")
		return
	}

	var req ResolveStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	approval, err := h.approvalService.ResolveStep(c.Request.Context(), req.ApprovalID, req.StepID, userID, *req.Approved, req.Comment)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, approval)
}

// ListPendingSteps 查询当前审批人待处理的步骤
// GET /api/v1/approval/pending?page=1&page_size=10
func (h *Handler) ListPendingSteps(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.ParamError(c, "缺少 X-User-ID 请求头")
		return
	}

	page, pageSize := parsePage(c)
	steps, total, err := h.approvalService.ListPendingForApprover(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      steps,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
