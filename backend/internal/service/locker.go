package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alamriomar/moeen/backend/pkg/metrics"
	"github.com/alamriomar/moeen/backend/pkg/redis"
)

// ErrOwnerBusy 在等待时间内未能获得 owner 写锁
var ErrOwnerBusy = errors.New("该教师的考勤数据正在被其他请求修改，请稍后重试")

// OwnerLocker 按 owner 串行化 加载→修改→写回
type OwnerLocker interface {
	// Lock 获取写锁，返回的 unlock 必须调用且只调用一次
	Lock(ctx context.Context, ownerID string) (unlock func(), err error)
}

// NewOwnerLocker 根据 Redis 可用性选择锁实现
// rdb 为 nil 时仅使用进程内锁（与限流中间件的降级策略一致）
func NewOwnerLocker(rdb *redis.Client, ttl, wait time.Duration, logger *zap.Logger) OwnerLocker {
	local := NewLocalLocker(wait)
	if rdb == nil {
		return local
	}
	return newRedisLocker(rdb, ttl, wait, local, logger)
}

// ────────────────────── 进程内锁 ──────────────────────

type ownerSlot struct {
	ch   chan struct{}
	refs int
}

// localLocker 进程内按 owner 的互斥锁，等待可被 ctx 取消
type localLocker struct {
	mu    sync.Mutex
	slots map[string]*ownerSlot
	wait  time.Duration
}

// NewLocalLocker 创建进程内锁；wait<=0 表示一直等到 ctx 结束
func NewLocalLocker(wait time.Duration) OwnerLocker {
	return &localLocker{slots: make(map[string]*ownerSlot), wait: wait}
}

func (l *localLocker) Lock(ctx context.Context, ownerID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[ownerID]
	if !ok {
		slot = &ownerSlot{ch: make(chan struct{}, 1)}
		l.slots[ownerID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	var timeout <-chan time.Time
	if l.wait > 0 {
		timer := time.NewTimer(l.wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.release(ownerID, slot)
			})
		}, nil
	case <-ctx.Done():
		l.release(ownerID, slot)
		return nil, fmt.Errorf("%w: %w", ErrOwnerBusy, ctx.Err())
	case <-timeout:
		l.release(ownerID, slot)
		return nil, ErrOwnerBusy
	}
}

func (l *localLocker) release(ownerID string, slot *ownerSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, ownerID)
	}
}

// ────────────────────── Redis 锁 ──────────────────────

// lockBackend Redis 锁的最小依赖，便于测试替换
type lockBackend interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, name, token string) error
}

const lockRetryInterval = 50 * time.Millisecond

// redisLocker 跨进程锁；Redis 出错时降级为进程内锁（文档 version 仍会拦截冲突写入）
type redisLocker struct {
	backend  lockBackend
	ttl      time.Duration
	wait     time.Duration
	retry    time.Duration
	fallback OwnerLocker
	logger   *zap.Logger
}

func newRedisLocker(backend lockBackend, ttl, wait time.Duration, fallback OwnerLocker, logger *zap.Logger) *redisLocker {
	return &redisLocker{
		backend:  backend,
		ttl:      ttl,
		wait:     wait,
		retry:    lockRetryInterval,
		fallback: fallback,
		logger:   logger,
	}
}

func (l *redisLocker) Lock(ctx context.Context, ownerID string) (func(), error) {
	deadline := time.Now().Add(l.wait)
	for {
		token, ok, err := l.backend.AcquireLock(ctx, ownerID, l.ttl)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrOwnerBusy, ctx.Err())
			}
			l.logger.Warn("Redis 锁不可用，降级为进程内锁",
				zap.String("owner_id", ownerID),
				zap.Error(err),
			)
			metrics.LockFallback()
			return l.fallback.Lock(ctx, ownerID)
		}
		if ok {
			return l.unlockFunc(ownerID, token), nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrOwnerBusy
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrOwnerBusy, ctx.Err())
		case <-time.After(l.retry):
		}
	}
}

func (l *redisLocker) unlockFunc(ownerID, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// 请求 ctx 可能已取消，释放使用独立超时
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := l.backend.ReleaseLock(ctx, ownerID, token); err != nil {
				l.logger.Warn("释放 Redis 锁失败", zap.String("owner_id", ownerID), zap.Error(err))
			}
		})
	}
}
