package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 【为什么需要分布式锁？】
//
// 场景：处理商对同一笔支付重复投递确认回调（at-least-once 投递），
// 或客户端确认请求与 webhook 几乎同时到达
//
// 没有锁时两个 goroutine 会同时走到入账事务，虽然幂等键唯一索引
// 最终只会放行一个，但另一个会白跑一次完整事务并回滚；
// 加锁后同一外部凭证的确认操作完全串行，第二个请求直接命中幂等短路
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：使用 Lua 脚本保证原子性
//   - 先检查 value 是否是自己的
//   - 再删除 key
//
// ============================================================================

var (
	ErrLockFailed  = errors.New("获取分布式锁失败")
	ErrLockExpired = errors.New("锁已过期")
)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
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
		// 等待一段时间后重试
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
//
// 【关键点】使用 Lua 脚本保证"检查+删除"操作的原子性
// 锁过期后被他人持有时，value 校验防止误删别人的锁
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

// ============================================================================
// 便捷函数：按业务维度的锁
// ============================================================================

// NewConfirmLock 创建结算确认锁（按外部支付凭证维度）
// 同一笔外部支付的确认操作必须完全串行，不同支付可并发确认
func NewConfirmLock(client *redis.Client, externalRef, holder string) *DistributedLock {
	key := fmt.Sprintf("settle:lock:ref:%s", externalRef)
	return NewDistributedLock(client, key, holder, 30*time.Second)
}

// NewRefundLock 创建退款锁（按结算单维度）
func NewRefundLock(client *redis.Client, settlementNo, holder string) *DistributedLock {
	key := fmt.Sprintf("refund:lock:settlement:%s", settlementNo)
	return NewDistributedLock(client, key, holder, 30*time.Second)
}

// NewPayoutLock 创建提现锁（按达人维度）
// 同一达人同一时刻只允许一笔提现申请在途，不同达人可并发提现
func NewPayoutLock(client *redis.Client, tipsterID int64, holder string) *DistributedLock {
	key := fmt.Sprintf("payout:lock:tipster:%d", tipsterID)
	return NewDistributedLock(client, key, holder, 30*time.Second)
}

// NewPayoutWebhookLock 创建提现回调锁（按外部转账凭证维度）
func NewPayoutWebhookLock(client *redis.Client, externalRef, holder string) *DistributedLock {
	key := fmt.Sprintf("payout:lock:ref:%s", externalRef)
	return NewDistributedLock(client, key, holder, 30*time.Second)
}
