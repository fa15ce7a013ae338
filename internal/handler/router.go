package handler

import (
	"finledger/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 账户相关
		account := api.Group("/account")
		{
			account.POST("/create", h.CreateAccount)
			account.GET("/detail", h.GetAccount)
			account.GET("/list", h.ListAccounts)
			account.POST("/update", h.UpdateAccount)
			account.POST("/delete", h.DeleteAccount)
			account.GET("/balance", h.GetBalance)
			account.GET("/balance-sheet", h.GetBalanceSheet)
		}

		// 交易相关
		transaction := api.Group("/transaction")
		{
			transaction.POST("/create", h.CreateTransaction)
			transaction.GET("/detail", h.GetTransaction)
			transaction.GET("/list", h.ListTransactions)
			transaction.POST("/status", h.SetTransactionStatus)
			transaction.POST("/rollback", h.RollbackTransaction)
			transaction.GET("/verify-chain", h.VerifyChain)
		}

		// 审批相关
		approval := api.Group("/approval")
		{
			approval.POST("/create", h.CreateApproval)
			approval.GET("/detail", h.GetApproval)
			approval.GET("/list", h.ListApprovals)
			approval.POST("/resolve", h.ResolveStep)
			approval.GET("/pending", h.ListPendingSteps)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
