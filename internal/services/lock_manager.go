// internal/services/lock_manager.go
package services

import (
	"sync"
	"time"
)

const (
	maxIdleLocks = 200
	lockTimeout  = 30 * time.Minute
)

// LockManager 按项目 ID 分配互斥锁
type LockManager struct {
	locks      map[string]*LockInfo
	globalLock sync.Mutex
}

// LockInfo 包装锁和相关信息
type LockInfo struct {
	Mutex    *sync.Mutex
	LastUsed time.Time
	refs     int
}

func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]*LockInfo)}
}

// WithLock 在项目锁保护下执行 fn
func (lm *LockManager) WithLock(key string, fn func() error) error {
	info := lm.acquire(key)
	info.Mutex.Lock()
	defer func() {
		info.Mutex.Unlock()
		lm.release(key, info)
	}()
	return fn()
}

func (lm *LockManager) acquire(key string) *LockInfo {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	info, ok := lm.locks[key]
	if !ok {
		info = &LockInfo{Mutex: &sync.Mutex{}}
		lm.locks[key] = info
	}
	info.refs++
	info.LastUsed = time.Now()
	return info
}

func (lm *LockManager) release(key string, info *LockInfo) {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	info.refs--
	info.LastUsed = time.Now()
	if len(lm.locks) > maxIdleLocks {
		lm.cleanupLocked()
	}
}

// cleanupLocked 只清理无人引用且长时间未使用的锁
func (lm *LockManager) cleanupLocked() {
	now := time.Now()
	for key, info := range lm.locks {
		if info.refs == 0 && now.Sub(info.LastUsed) > lockTimeout {
			delete(lm.locks, key)
		}
	}
}

// Forget 删除项目时移除其锁
func (lm *LockManager) Forget(key string) {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	if info, ok := lm.locks[key]; ok && info.refs == 0 {
		delete(lm.locks, key)
	}
}
