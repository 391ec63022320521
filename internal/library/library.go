// internal/library/library.go
package library

import (
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Corphon/SceneForge/internal/models"
	"github.com/Corphon/SceneForge/internal/storage"
	"github.com/Corphon/SceneForge/internal/utils"
)

// Library 某一类锚点的持久化集合，按插入顺序保存。
// All operations are total: persistence failures are logged and kept in
// LastError while the in-memory list stays authoritative.
type Library[A models.Anchor] struct {
	mu         sync.RWMutex
	backend    storage.Backend
	collection string
	items      []A
	lastErr    error
	now        func() time.Time
}

// New 创建锚点库并从存储中加载已有集合
func New[A models.Anchor](backend storage.Backend, collection string) *Library[A] {
	lib := &Library[A]{
		backend:    backend,
		collection: collection,
		now:        time.Now,
	}

	var items []A
	found, err := backend.LoadCollection(collection, &items)
	if err != nil {
		lib.lastErr = err
		utils.GetLogger().Warn("failed to load anchor library", map[string]interface{}{
			"collection": collection,
			"error":      err,
		})
	}
	if found {
		for _, item := range items {
			// JSON null entries decode to nil pointers
			if !isNil(item) {
				lib.items = append(lib.items, item)
			}
		}
	}
	return lib
}

// Save 按 ID 插入或更新锚点；缺失的 ID 与创建时间会被补齐。
// Updating an existing id keeps the original createdAt.
func (l *Library[A]) Save(anchor A) A {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saveLocked(anchor)
}

// SaveIfAbsentByName 在同一把锁内按名称（忽略大小写）查重并插入。
// 已存在同名锚点时原样返回它，created 为 false。
func (l *Library[A]) SaveIfAbsentByName(anchor A) (saved A, created bool) {
	key := models.NameKey(anchor.GetName())
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, item := range l.items {
		if models.NameKey(item.GetName()) == key {
			return item, false
		}
	}
	return l.saveLocked(anchor), true
}

func (l *Library[A]) saveLocked(anchor A) A {
	if anchor.GetID() == "" {
		anchor.SetID(uuid.NewString())
	}

	if idx := l.indexLocked(anchor.GetID()); idx >= 0 {
		anchor.SetCreatedAt(l.items[idx].GetCreatedAt())
		l.items[idx] = anchor
	} else {
		if anchor.GetCreatedAt().IsZero() {
			anchor.SetCreatedAt(l.now())
		}
		l.items = append(l.items, anchor)
	}

	utils.GetMetricsCollector().IncrementCounter(utils.MetricLibrarySaves)
	l.persistLocked()
	return anchor
}

// Remove 删除锚点，不存在时为空操作
func (l *Library[A]) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexLocked(id)
	if idx < 0 {
		return
	}
	l.items = append(l.items[:idx], l.items[idx+1:]...)
	l.persistLocked()
}

// List 返回插入顺序的副本
func (l *Library[A]) List() []A {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]A, len(l.items))
	copy(out, l.items)
	return out
}

// Get 按 ID 查找锚点
func (l *Library[A]) Get(id string) (A, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if idx := l.indexLocked(id); idx >= 0 {
		return l.items[idx], true
	}
	var zero A
	return zero, false
}

// FindByName 按名称（忽略大小写）查找锚点
func (l *Library[A]) FindByName(name string) (A, bool) {
	key := models.NameKey(name)
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, item := range l.items {
		if models.NameKey(item.GetName()) == key {
			return item, true
		}
	}
	var zero A
	return zero, false
}

// Len 返回锚点数量
func (l *Library[A]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// AvailableToAdd 返回名称未出现在 active 中的库锚点
func (l *Library[A]) AvailableToAdd(active []A) []A {
	names := make([]string, 0, len(active))
	for _, a := range active {
		if !isNil(a) {
			names = append(names, a.GetName())
		}
	}
	return l.AvailableExcluding(names)
}

// AvailableExcluding filters by a plain list of names, for callers whose
// active set is not of the library's anchor type.
func (l *Library[A]) AvailableExcluding(names []string) []A {
	taken := make(map[string]struct{}, len(names))
	for _, n := range names {
		taken[models.NameKey(n)] = struct{}{}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]A, 0, len(l.items))
	for _, item := range l.items {
		if _, ok := taken[models.NameKey(item.GetName())]; ok {
			continue
		}
		out = append(out, item)
	}
	return out
}

// LastError 返回最近一次持久化失败，成功写入后清空
func (l *Library[A]) LastError() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastErr
}

// Collection 返回存储集合名称
func (l *Library[A]) Collection() string {
	return l.collection
}

func (l *Library[A]) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, item := range l.items {
		if item.GetID() == id {
			return i
		}
	}
	return -1
}

func (l *Library[A]) persistLocked() {
	if err := l.backend.SaveCollection(l.collection, l.items); err != nil {
		l.lastErr = err
		utils.GetLogger().Error("failed to persist anchor library", map[string]interface{}{
			"collection": l.collection,
			"count":      len(l.items),
			"error":      err,
		})
		return
	}
	l.lastErr = nil
}

func isNil[A models.Anchor](a A) bool {
	v := reflect.ValueOf(a)
	return !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil())
}
