// internal/api/handlers.go
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/SceneForge/internal/config"
	"github.com/Corphon/SceneForge/internal/library"
	"github.com/Corphon/SceneForge/internal/llm"
	"github.com/Corphon/SceneForge/internal/models"
	"github.com/Corphon/SceneForge/internal/services"
	"github.com/Corphon/SceneForge/internal/utils"
)

// Handler 处理API请求
type Handler struct {
	Projects   *services.ProjectService    // 项目与工作流
	Libraries  *library.Libraries          // 锚点库
	Presets    *library.Presets            // 内置预设
	Generation *services.GenerationService // LLM 生成服务
	Limiter    *services.UsageLimiter      // 生成配额标志
	Hub        *Hub                        // WebSocket 事件推送
	Response   *ResponseHelper             // 响应助手
}

// NewHandler 创建处理器
func NewHandler(
	projects *services.ProjectService,
	libs *library.Libraries,
	presets *library.Presets,
	generation *services.GenerationService,
	hub *Hub,
) *Handler {
	return &Handler{
		Projects:   projects,
		Libraries:  libs,
		Presets:    presets,
		Generation: generation,
		Limiter:    projects.Workflow().Limiter(),
		Hub:        hub,
		Response:   NewResponseHelper(),
	}
}

// UpdateSceneRequest 修改场景单个字段
type UpdateSceneRequest struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// GenerateAllRequest 批量生成参数
type GenerateAllRequest struct {
	OnlyMissing bool `json:"only_missing"`
}

// UpdateLLMConfigRequest LLM 配置
type UpdateLLMConfigRequest struct {
	Provider string            `json:"provider"`
	Config   map[string]string `json:"config"`
}

// ===============================
// 锚点库
// ===============================

func (h *Handler) anchorKind(c *gin.Context) (models.AnchorKind, bool) {
	kind, ok := models.ParseAnchorKind(c.Param("kind"))
	if !ok {
		h.Response.Error(c, http.StatusBadRequest, ErrorInvalidKind, "未知的锚点类型: "+c.Param("kind"))
	}
	return kind, ok
}

// ListAnchors 列出某类型的全部锚点
func (h *Handler) ListAnchors(c *gin.Context) {
	kind, ok := h.anchorKind(c)
	if !ok {
		return
	}
	h.Response.Success(c, h.Libraries.List(kind))
}

// SaveAnchor 新建或更新锚点
func (h *Handler) SaveAnchor(c *gin.Context) {
	kind, ok := h.anchorKind(c)
	if !ok {
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.Response.BadRequest(c, "读取请求体失败", err.Error())
		return
	}
	anchor, err := library.Decode(kind, body)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}

	saved := h.Libraries.Save(anchor)
	if err := h.Libraries.LastError(kind); err != nil {
		// 内存中已保存，持久化失败只作提示
		h.Response.Success(c, saved, "锚点已保存，但写入存储失败")
		return
	}
	h.Response.Created(c, saved, "锚点已保存")
}

// DeleteAnchor 删除锚点
func (h *Handler) DeleteAnchor(c *gin.Context) {
	kind, ok := h.anchorKind(c)
	if !ok {
		return
	}

	id := c.Param("id")
	found := false
	for _, a := range h.Libraries.List(kind) {
		if a.GetID() == id {
			found = true
			break
		}
	}
	if !found {
		h.Response.NotFound(c, "锚点")
		return
	}

	h.Libraries.Remove(kind, id)
	h.Response.Success(c, gin.H{"id": id}, "锚点已删除")
}

// AvailableAnchors 返回尚未加入项目的锚点
func (h *Handler) AvailableAnchors(c *gin.Context) {
	kind, ok := h.anchorKind(c)
	if !ok {
		return
	}

	var active []string
	if projectID := c.Query("project"); projectID != "" {
		wc, err := h.Projects.GetProject(projectID)
		if err != nil {
			h.Response.FromError(c, err)
			return
		}
		active = activeNames(wc, kind)
	}
	h.Response.Success(c, h.Libraries.Available(kind, active))
}

func activeNames(wc models.WorkflowContext, kind models.AnchorKind) []string {
	var names []string
	switch kind {
	case models.KindCharacter:
		for _, c := range wc.Characters {
			names = append(names, c.Name)
		}
	case models.KindEnvironment:
		for _, e := range wc.Environments {
			names = append(names, e.Name)
		}
	case models.KindBrand:
		for _, b := range wc.Brands {
			names = append(names, b.Name)
		}
	}
	return names
}

// ===============================
// 预设
// ===============================

// GetPresets 列出内置预设
func (h *Handler) GetPresets(c *gin.Context) {
	h.Response.Success(c, h.Presets)
}

// SavePreset 将预设复制到锚点库
func (h *Handler) SavePreset(c *gin.Context) {
	kind, ok := h.anchorKind(c)
	if !ok {
		return
	}

	anchor, err := h.Presets.SaveTo(h.Libraries, kind, c.Param("name"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Created(c, anchor, "预设已加入锚点库")
}

// ===============================
// 项目与工作流
// ===============================

// CreateProject 创建项目，可附带初始设置
func (h *Handler) CreateProject(c *gin.Context) {
	var in services.SetupInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil && err != io.EOF {
			h.Response.BadRequest(c, "无效的请求格式", err.Error())
			return
		}
	}

	wc, err := h.Projects.CreateProject(in)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Created(c, wc, "项目已创建")
}

// ListProjects 列出项目
func (h *Handler) ListProjects(c *gin.Context) {
	projects, err := h.Projects.ListProjects()
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, projects)
}

// GetProject 获取项目完整状态
func (h *Handler) GetProject(c *gin.Context) {
	wc, err := h.Projects.GetProject(c.Param("id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, gin.H{
		"project":    wc,
		"generating": h.Projects.GeneratingScenes(wc.ProjectID),
	})
}

// DeleteProject 删除项目
func (h *Handler) DeleteProject(c *gin.Context) {
	if err := h.Projects.DeleteProject(c.Param("id")); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"project_id": c.Param("id")}, "项目已删除")
}

// UpdateSetup 修改 Setup 阶段输入
func (h *Handler) UpdateSetup(c *gin.Context) {
	var in services.SetupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	wc, err := h.Projects.UpdateSetup(c.Param("id"), in)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, wc)
}

// GenerateTemplate 生成视觉模板并自动保存抽取到的锚点
func (h *Handler) GenerateTemplate(c *gin.Context) {
	wc, report, err := h.Projects.GenerateTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"project": wc, "report": report}, "模板已生成")
}

// Approve 批准模板，进入场景阶段
func (h *Handler) Approve(c *gin.Context) {
	wc, err := h.Projects.Approve(c.Param("id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, wc)
}

// EditSetup 回到 Setup 阶段
func (h *Handler) EditSetup(c *gin.Context) {
	wc, err := h.Projects.EditSetup(c.Param("id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, wc)
}

// ===============================
// 场景
// ===============================

// AddScene 追加空白场景
func (h *Handler) AddScene(c *gin.Context) {
	wc, sceneID, err := h.Projects.AddScene(c.Param("id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Created(c, gin.H{"project": wc, "scene_id": sceneID}, "场景已添加")
}

// UpdateScene 修改场景字段。value 可以是字符串，也可以是任意 JSON（如 ID 数组）。
func (h *Handler) UpdateScene(c *gin.Context) {
	var req UpdateSceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	if strings.TrimSpace(req.Field) == "" {
		h.Response.BadRequest(c, "字段名不能为空")
		return
	}

	wc, err := h.Projects.UpdateScene(c.Param("id"), c.Param("sceneId"), req.Field, rawValue(req.Value))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, wc)
}

func rawValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// RemoveScene 删除场景
func (h *Handler) RemoveScene(c *gin.Context) {
	wc, err := h.Projects.RemoveScene(c.Param("id"), c.Param("sceneId"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, wc)
}

// GenerateScene 生成单个场景
func (h *Handler) GenerateScene(c *gin.Context) {
	wc, err := h.Projects.GenerateScene(c.Request.Context(), c.Param("id"), c.Param("sceneId"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, wc, "场景已生成")
}

// GenerateAllScenes 批量生成场景
func (h *Handler) GenerateAllScenes(c *gin.Context) {
	var req GenerateAllRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
			h.Response.BadRequest(c, "无效的请求格式", err.Error())
			return
		}
	}

	result, err := h.Projects.GenerateAllScenes(c.Request.Context(), c.Param("id"), req.OnlyMissing)
	if err != nil {
		h.Response.FromErrorWithData(c, err, result)
		return
	}
	h.Response.Success(c, result)
}

// ===============================
// 配额、LLM 与指标
// ===============================

// GetUsage 返回配额状态
func (h *Handler) GetUsage(c *gin.Context) {
	h.Response.Success(c, h.Limiter.Status())
}

// ResetUsage 用户确认后清除配额标志
func (h *Handler) ResetUsage(c *gin.Context) {
	h.Limiter.Reset()
	h.Response.Success(c, h.Limiter.Status(), "配额标志已清除")
}

// GetLLMStatus 获取LLM服务状态
func (h *Handler) GetLLMStatus(c *gin.Context) {
	ready, state := h.Generation.GetProviderStatus()
	provider := h.Generation.ProviderName()
	h.Response.Success(c, gin.H{
		"ready":     ready,
		"status":    state,
		"provider":  provider,
		"providers": llm.ListProviders(),
		"models":    llm.GetSupportedModelsForProvider(provider),
	})
}

// UpdateLLMConfig 更新LLM配置并持久化
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var req UpdateLLMConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	req.Provider = strings.TrimSpace(req.Provider)
	if req.Provider == "" {
		h.Response.Error(c, http.StatusBadRequest, ErrorLLMConfigInvalid, "provider 不能为空")
		return
	}

	if err := h.Generation.UpdateProvider(req.Provider, req.Config); err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorLLMConfigInvalid, "LLM 配置无效", err.Error())
		return
	}
	if err := config.UpdateLLMConfig(req.Provider, req.Config); err != nil {
		utils.GetLogger().Warn("llm config not persisted", map[string]interface{}{"error": err})
	}

	ready, state := h.Generation.GetProviderStatus()
	h.Response.Success(c, gin.H{
		"ready":    ready,
		"status":   state,
		"provider": h.Generation.ProviderName(),
		"api_key":  utils.MaskSecret(req.Config["api_key"]),
	}, "LLM 配置已更新")
}

// GetMetrics 运行指标
func (h *Handler) GetMetrics(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"metrics":   utils.GetMetricsCollector().GetMetrics(),
		"websocket": h.Hub.GetStatus(),
		"usage":     h.Limiter.Status(),
	})
}
