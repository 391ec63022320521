// internal/api/router.go
package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/SceneForge/internal/config"
	"github.com/Corphon/SceneForge/internal/di"
	"github.com/Corphon/SceneForge/internal/library"
	"github.com/Corphon/SceneForge/internal/services"
)

// SetupRouter 从依赖注入容器取出服务并配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	projects, err := di.Resolve[*services.ProjectService](container, di.ServiceProjects)
	if err != nil {
		return nil, fmt.Errorf("项目服务未正确初始化: %w", err)
	}
	libs, err := di.Resolve[*library.Libraries](container, di.ServiceLibraries)
	if err != nil {
		return nil, fmt.Errorf("锚点库未正确初始化: %w", err)
	}
	presets, err := di.Resolve[*library.Presets](container, di.ServicePresets)
	if err != nil {
		return nil, fmt.Errorf("预设未正确初始化: %w", err)
	}
	generation, err := di.Resolve[*services.GenerationService](container, di.ServiceGeneration)
	if err != nil {
		return nil, fmt.Errorf("生成服务未正确初始化: %w", err)
	}
	hub, err := di.Resolve[*Hub](container, di.ServiceHub)
	if err != nil {
		return nil, fmt.Errorf("WebSocket hub 未正确初始化: %w", err)
	}

	handler := NewHandler(projects, libs, presets, generation, hub)
	return NewRouter(handler, cfg.DebugMode), nil
}

// NewRouter 注册全部路由
func NewRouter(handler *Handler, debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())
	r.Use(corsMiddleware())

	limiter := NewRateLimiter()

	// WebSocket 事件
	r.GET("/ws/projects/:id", handler.ProjectWebSocket)

	api := r.Group("/api")
	api.Use(DefaultRateLimit(limiter))
	{
		// ===============================
		// 锚点库
		// ===============================
		libraryGroup := api.Group("/library/:kind")
		{
			libraryGroup.GET("", handler.ListAnchors)
			libraryGroup.POST("", handler.SaveAnchor)
			libraryGroup.GET("/available", handler.AvailableAnchors)
			libraryGroup.DELETE("/:id", handler.DeleteAnchor)
		}

		// ===============================
		// 预设
		// ===============================
		api.GET("/presets", handler.GetPresets)
		api.POST("/presets/:kind/:name", handler.SavePreset)

		// ===============================
		// 项目
		// ===============================
		projectsGroup := api.Group("/projects")
		{
			projectsGroup.POST("", handler.CreateProject)
			projectsGroup.GET("", handler.ListProjects)
			projectsGroup.GET("/:id", handler.GetProject)
			projectsGroup.DELETE("/:id", handler.DeleteProject)

			projectsGroup.PUT("/:id/setup", handler.UpdateSetup)
			projectsGroup.POST("/:id/template", GenerationRateLimit(limiter), handler.GenerateTemplate)
			projectsGroup.POST("/:id/approve", handler.Approve)
			projectsGroup.POST("/:id/edit-setup", handler.EditSetup)

			scenesGroup := projectsGroup.Group("/:id/scenes")
			{
				scenesGroup.POST("", handler.AddScene)
				scenesGroup.POST("/generate-all", GenerationRateLimit(limiter), handler.GenerateAllScenes)
				scenesGroup.PATCH("/:sceneId", handler.UpdateScene)
				scenesGroup.DELETE("/:sceneId", handler.RemoveScene)
				scenesGroup.POST("/:sceneId/generate", GenerationRateLimit(limiter), handler.GenerateScene)
			}
		}

		// ===============================
		// 配额
		// ===============================
		api.GET("/usage", handler.GetUsage)
		api.POST("/usage/reset", handler.ResetUsage)

		// ===============================
		// LLM 配置与指标
		// ===============================
		llmGroup := api.Group("/llm")
		{
			llmGroup.GET("/status", handler.GetLLMStatus)
			llmGroup.PUT("/config", handler.UpdateLLMConfig)
		}
		api.GET("/metrics", handler.GetMetrics)
	}

	return r
}
