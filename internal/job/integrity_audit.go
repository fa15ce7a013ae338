package job

import (
	"context"
	"log"
	"time"

	"finledger/internal/config"
	"finledger/internal/service"

	"gorm.io/gorm"
)

// IntegrityAuditJob 周期性扫描整个交易账本，校验每行的完整性哈希
// 与前驱指针，发现被绕过引擎篡改的数据尽早告警。
// 审计只读不修：哈希不一致视为数据损坏，绝不静默修复。
type IntegrityAuditJob struct {
	transactionService *service.TransactionService
	cfg                *config.Config
	interval           time.Duration
}

func NewIntegrityAuditJob(db *gorm.DB, cfg *config.Config) *IntegrityAuditJob {
	interval := time.Duration(cfg.Business.AuditIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &IntegrityAuditJob{
		transactionService: service.NewTransactionService(db, nil, cfg),
		cfg:                cfg,
		interval:           interval,
	}
}

func (j *IntegrityAuditJob) Start(ctx context.Context) {
	log.Printf("[IntegrityAudit] 账本链审计任务启动, 周期=%v", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[IntegrityAudit] 收到停止信号，任务退出")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *IntegrityAuditJob) runOnce(ctx context.Context) {
	result, err := j.transactionService.VerifyChain(ctx)
	if err != nil {
		log.Printf("[IntegrityAudit] 审计执行失败: %v", err)
		return
	}

	if len(result.Corrupted) > 0 {
		log.Printf("[IntegrityAudit] 发现被篡改的交易: %v (共检查 %d 行)", result.Corrupted, result.Checked)
		return
	}

	if result.BrokenLinks > 0 {
		// 回滚会删除交易行，留下的链断点属于正常现象，只记录不告警
		log.Printf("[IntegrityAudit] 审计通过: 检查 %d 行, 链断点 %d 处", result.Checked, result.BrokenLinks)
		return
	}

	log.Printf("[IntegrityAudit] 审计通过: 检查 %d 行", result.Checked)
}
