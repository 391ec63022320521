// internal/di/container.go
package di

import (
	"fmt"
	"sort"
	"sync"
)

// 容器中的服务名
const (
	ServiceStorage    = "storage"
	ServiceLibraries  = "libraries"
	ServicePresets    = "presets"
	ServiceGeneration = "generation"
	ServiceSynthesis  = "synthesizer"
	ServiceLimiter    = "usage_limiter"
	ServiceWorkflow   = "workflow"
	ServiceProjects   = "projects"
	ServiceHub        = "hub"
)

// Container 按名称保存已初始化的服务，由 app.InitServices 填充、路由层读取
type Container struct {
	mu       sync.RWMutex
	services map[string]interface{}
}

var (
	globalContainer *Container
	globalOnce      sync.Once
)

// NewContainer 创建空容器
func NewContainer() *Container {
	return &Container{services: make(map[string]interface{})}
}

// GetContainer 返回进程级容器
func GetContainer() *Container {
	globalOnce.Do(func() {
		globalContainer = NewContainer()
	})
	return globalContainer
}

// Register 注册（或替换）服务
func (c *Container) Register(name string, service interface{}) {
	c.mu.Lock()
	c.services[name] = service
	c.mu.Unlock()
}

// Get 返回服务，未注册时为 nil
func (c *Container) Get(name string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.services[name]
}

func (c *Container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.services[name]
	return ok
}

func (c *Container) Remove(name string) {
	c.mu.Lock()
	delete(c.services, name)
	c.mu.Unlock()
}

// GetNames 按字母序返回已注册的服务名
func (c *Container) GetNames() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.services))
	for name := range c.services {
		names = append(names, name)
	}
	c.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Resolve 取出服务并断言为 T
func Resolve[T any](c *Container, name string) (T, error) {
	var zero T
	service := c.Get(name)
	if service == nil {
		return zero, fmt.Errorf("服务未注册: %s", name)
	}
	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("服务 %s 类型不匹配: %T", name, service)
	}
	return typed, nil
}
