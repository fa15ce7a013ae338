package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 数据库行锁已经保证了单个原子操作内部的一致性，分布式锁解决的是
// 跨实例的重复进入问题：比如同一笔交易的审批在两个实例上同时被处理、
// 同一笔交易被并发回滚。锁粒度按交易维度，不同交易互不影响。
//
// 【Redis 锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（互斥）
//   - EX: 过期时间（持有者崩溃时自动释放，防死锁）
//   - value: 持有者标识，释放时验证，防止误删别人的锁
//
// 释放锁：Lua 脚本保证"检查 + 删除"原子执行
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string        // 持有者标识
	expiration time.Duration // 过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
// Lua 脚本先验证 value 再删除：锁过期后被别人持有时，自己的 Unlock 不能删掉别人的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewApprovalLock 审批锁（按交易维度）
// 同一笔交易的审批开启/步骤处理串行，不同交易的审批互不阻塞
func NewApprovalLock(client *redis.Client, transactionID int64, holder string, expiration time.Duration) *DistributedLock {
	key := fmt.Sprintf("approval:lock:txn:%d", transactionID)
	return NewDistributedLock(client, key, holder, expiration)
}

// NewRollbackLock 回滚锁（按交易维度）
func NewRollbackLock(client *redis.Client, transactionID int64, holder string, expiration time.Duration) *DistributedLock {
	key := fmt.Sprintf("rollback:lock:txn:%d", transactionID)
	return NewDistributedLock(client, key, holder, expiration)
}
