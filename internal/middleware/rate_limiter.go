package middleware

import (
	"fmt"
	"sync"
	"time"
)

// ==================== SyncRateLimiter 同步限流器 ====================

// SyncRateLimiter keeps operators from hammering the remote API with manual
// sync triggers.
type SyncRateLimiter struct {
	locks sync.Map // key -> *lockEntry
	now   func() time.Time
}

type lockEntry struct {
	lastTime time.Time
	mu       sync.Mutex
}

func NewSyncRateLimiter() *SyncRateLimiter {
	return &SyncRateLimiter{now: time.Now}
}

var globalLimiter = NewSyncRateLimiter()

func GetLimiter() *SyncRateLimiter {
	return globalLimiter
}

// ==================== 限流检查 ====================

type CheckResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Check allows key once per interval and records the attempt when allowed.
func (r *SyncRateLimiter) Check(key string, interval time.Duration) CheckResult {
	actual, _ := r.locks.LoadOrStore(key, &lockEntry{})
	entry := actual.(*lockEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := r.now()
	elapsed := now.Sub(entry.lastTime)
	if elapsed < interval {
		return CheckResult{Allowed: false, RetryAfter: interval - elapsed}
	}

	entry.lastTime = now
	return CheckResult{Allowed: true}
}

// Reset clears key, e.g. after a trigger that was rejected by the service.
func (r *SyncRateLimiter) Reset(key string) {
	r.locks.Delete(key)
}

// ==================== Key 生成工具 ====================

// SyncType is the kind of manual trigger being limited.
type SyncType string

const (
	SyncTypeProducts   SyncType = "products"
	SyncTypeInventory  SyncType = "inventory"
	SyncTypeOrders     SyncType = "orders"
	SyncTypeCustomers  SyncType = "customers"
	SyncTypePriceTypes SyncType = "price_types"
)

func GlobalSyncKey(syncType SyncType) string {
	return fmt.Sprintf("global:%s", syncType)
}

// DefaultIntervals apply when the configured cooldown is zero.
var DefaultIntervals = map[SyncType]time.Duration{
	SyncTypeProducts:   time.Minute,
	SyncTypeInventory:  30 * time.Second,
	SyncTypeOrders:     30 * time.Second,
	SyncTypeCustomers:  10 * time.Second,
	SyncTypePriceTypes: time.Minute,
}

func GetInterval(syncType SyncType) time.Duration {
	if interval, ok := DefaultIntervals[syncType]; ok {
		return interval
	}
	return 30 * time.Second
}
