// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Corphon/SceneForge/internal/api"
	"github.com/Corphon/SceneForge/internal/config"
	"github.com/Corphon/SceneForge/internal/di"
	"github.com/Corphon/SceneForge/internal/library"
	"github.com/Corphon/SceneForge/internal/services"
	"github.com/Corphon/SceneForge/internal/storage"
	"github.com/Corphon/SceneForge/internal/utils"

	// 注册 LLM 提供者
	_ "github.com/Corphon/SceneForge/internal/llm/providers/anthropic"
	_ "github.com/Corphon/SceneForge/internal/llm/providers/google"
	_ "github.com/Corphon/SceneForge/internal/llm/providers/offline"
	_ "github.com/Corphon/SceneForge/internal/llm/providers/openaicompat"
)

// Services 按依赖顺序组装好的核心服务
type Services struct {
	Backend     storage.Backend
	Libraries   *library.Libraries
	Presets     *library.Presets
	Generation  *services.GenerationService
	Synthesizer *services.Synthesizer
	Limiter     *services.UsageLimiter
	Workflow    *services.Workflow
	Projects    *services.ProjectService
}

// Close 释放存储后端
func (s *Services) Close() error {
	if s == nil || s.Backend == nil {
		return nil
	}
	return s.Backend.Close()
}

// BuildServices 组装 storage → library → generation → workflow → projects。
// publisher may be nil.
func BuildServices(cfg *config.AppConfig, publisher services.EventPublisher) (*Services, error) {
	backend, err := storage.Open(cfg.StoreBackend, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}

	presets, err := library.LoadPresets(cfg.PresetsFile)
	if err != nil {
		backend.Close()
		return nil, err
	}

	libs := library.Open(backend)
	generation := services.NewGenerationServiceFor(cfg.LLMProvider, cfg.LLMConfig)
	synth := services.NewSynthesizer(generation)
	limiter := services.NewUsageLimiter()
	workflow := services.NewWorkflow(synth, libs, limiter)
	projects := services.NewProjectService(backend, workflow, publisher, cfg.SceneConcurrency)

	if ready, state := generation.GetProviderStatus(); !ready {
		utils.GetLogger().Warn("generation service not ready", map[string]interface{}{
			"provider": cfg.LLMProvider,
			"status":   state,
		})
	}

	return &Services{
		Backend:     backend,
		Libraries:   libs,
		Presets:     presets,
		Generation:  generation,
		Synthesizer: synth,
		Limiter:     limiter,
		Workflow:    workflow,
		Projects:    projects,
	}, nil
}

// App 服务器进程的生命周期
type App struct {
	mu       sync.Mutex
	services *Services
	hub      *api.Hub
	stopChan chan struct{}
	stopped  bool
}

var (
	instance *App
	appOnce  sync.Once
)

// GetApp 返回全局应用实例
func GetApp() *App {
	appOnce.Do(func() {
		instance = &App{stopChan: make(chan struct{})}
	})
	return instance
}

// InitLogger 按配置初始化日志
func InitLogger(cfg *config.AppConfig) error {
	logger := utils.GetLogger()
	logger.SetLogLevel(utils.ParseLogLevel(cfg.LogLevel))
	if cfg.LogDir == "" {
		return nil
	}
	return utils.InitLogger(filepath.Join(cfg.LogDir, fmt.Sprintf("sceneforge_%s.log", time.Now().Format("2006-01-02"))))
}

// InitServices 初始化全部服务并注册到依赖注入容器
func InitServices() error {
	return GetApp().initServices(config.GetCurrentConfig(), di.GetContainer())
}

func (a *App) initServices(cfg *config.AppConfig, container *di.Container) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.services != nil {
		return nil
	}

	hub := api.NewHub()
	svc, err := BuildServices(cfg, hub)
	if err != nil {
		hub.Close()
		return err
	}

	container.Register(di.ServiceStorage, svc.Backend)
	container.Register(di.ServiceLibraries, svc.Libraries)
	container.Register(di.ServicePresets, svc.Presets)
	container.Register(di.ServiceGeneration, svc.Generation)
	container.Register(di.ServiceSynthesis, svc.Synthesizer)
	container.Register(di.ServiceLimiter, svc.Limiter)
	container.Register(di.ServiceWorkflow, svc.Workflow)
	container.Register(di.ServiceProjects, svc.Projects)
	container.Register(di.ServiceHub, hub)

	a.services = svc
	a.hub = hub

	utils.GetLogger().Info("services initialised", map[string]interface{}{
		"store":       cfg.StoreBackend,
		"concurrency": cfg.SceneConcurrency,
		"services":    container.GetNames(),
	})
	return nil
}

// Services 返回已初始化的服务，未初始化时为 nil
func (a *App) Services() *Services {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.services
}

// Done 在 Cleanup 后关闭
func (a *App) Done() <-chan struct{} {
	return a.stopChan
}

// Cleanup 关闭 WebSocket hub 与存储，可重复调用
func (a *App) Cleanup(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return nil
	}
	a.stopped = true
	close(a.stopChan)

	done := make(chan struct{})
	go func() {
		if a.hub != nil {
			a.hub.Close()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		utils.GetLogger().Warn("websocket hub did not stop in time", nil)
	}

	var err error
	if a.services != nil {
		err = a.services.Close()
	}
	_ = utils.GetLogger().Sync()
	return err
}
