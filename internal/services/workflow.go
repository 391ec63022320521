// internal/services/workflow.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Corphon/SceneForge/internal/errors"
	"github.com/Corphon/SceneForge/internal/library"
	"github.com/Corphon/SceneForge/internal/models"
	"github.com/Corphon/SceneForge/internal/parser"
	"github.com/Corphon/SceneForge/internal/utils"
)

const defaultDuration = 10

// 可通过 UpdateScene 修改的场景字段
const (
	SceneFieldTitle         = "title"
	SceneFieldDescription   = "description"
	SceneFieldCharacters    = "selectedCharacterIds"
	SceneFieldEnvironment   = "selectedEnvironmentId"
	SceneFieldCustomEnv     = "customEnvironment"
	SceneFieldStyleTemplate = "styleTemplate"
	SceneFieldStyleID       = "styleId"
	SceneFieldContent       = "content"
)

// Workflow Setup → Template → Scenes 状态机。
// Every transition takes a context value and returns a new one; the input is
// never mutated.
type Workflow struct {
	synth   *Synthesizer
	libs    *library.Libraries
	limiter *UsageLimiter
	now     func() time.Time
}

func NewWorkflow(synth *Synthesizer, libs *library.Libraries, limiter *UsageLimiter) *Workflow {
	if limiter == nil {
		limiter = NewUsageLimiter()
	}
	return &Workflow{
		synth:   synth,
		libs:    libs,
		limiter: limiter,
		now:     time.Now,
	}
}

// Limiter 返回状态机使用的配额限制器
func (w *Workflow) Limiter() *UsageLimiter {
	return w.limiter
}

// NewWorkflowContext 新项目的初始状态
func NewWorkflowContext(projectID string) models.WorkflowContext {
	if projectID == "" {
		projectID = uuid.NewString()
	}
	return models.WorkflowContext{
		ProjectID:    projectID,
		Stage:        models.StageSetup,
		MediaType:    models.MediaVideo,
		Duration:     defaultDuration,
		Characters:   []*models.Character{},
		Environments: []*models.Environment{},
		Scenes:       []models.Scene{},
		UpdatedAt:    time.Now(),
	}
}

// SetupInput Setup 阶段的用户输入。Nil fields keep their current value.
type SetupInput struct {
	Concept        *string               `json:"concept,omitempty"`
	Duration       *int                  `json:"duration,omitempty"`
	VideoStyle     *string               `json:"video_style,omitempty"`
	MediaType      *string               `json:"media_type,omitempty"`
	CharacterIDs   []string              `json:"character_ids,omitempty"`
	EnvironmentIDs []string              `json:"environment_ids,omitempty"`
	BrandIDs       []string              `json:"brand_ids,omitempty"`
	Characters     []*models.Character   `json:"characters,omitempty"`
	Environments   []*models.Environment `json:"environments,omitempty"`
}

// TemplateReport 模板生成后自动保存的锚点
type TemplateReport struct {
	SavedCharacters   []*models.Character   `json:"saved_characters"`
	SavedEnvironments []*models.Environment `json:"saved_environments"`
	Duplicates        int                   `json:"duplicates"`
	Skipped           int                   `json:"skipped"`
}

func (w *Workflow) requireStage(wc models.WorkflowContext, action string, allowed ...models.Stage) error {
	for _, s := range allowed {
		if wc.Stage == s {
			return nil
		}
	}
	return errors.NewTransitionError(fmt.Sprintf("%s is not allowed in stage %q", action, wc.Stage))
}

func (w *Workflow) touch(wc models.WorkflowContext) models.WorkflowContext {
	wc.UpdatedAt = w.now()
	return wc
}

// UpdateSetup 更新概念、时长、风格与项目级锚点，仅在 setup 阶段可用。
// Anchor ids are resolved against the library; inline anchors are attached
// as given. A non-nil id list replaces the attached set of that kind.
func (w *Workflow) UpdateSetup(wc models.WorkflowContext, in SetupInput) (models.WorkflowContext, error) {
	if err := w.requireStage(wc, "update setup", models.StageSetup); err != nil {
		return wc, err
	}
	if in.Duration != nil && *in.Duration < 0 {
		return wc, errors.NewValidationError("duration must not be negative", nil)
	}

	out := wc.Clone()
	if in.Concept != nil {
		out.Concept = strings.TrimSpace(*in.Concept)
	}
	if in.Duration != nil {
		out.Duration = *in.Duration
	}
	if in.VideoStyle != nil {
		out.VideoStyle = strings.TrimSpace(*in.VideoStyle)
	}
	if in.MediaType != nil {
		out.MediaType = models.ParseMediaType(*in.MediaType)
	}

	if in.CharacterIDs != nil || in.Characters != nil {
		chars := w.libs.ResolveCharacters(in.CharacterIDs)
		for _, c := range in.Characters {
			if c != nil && strings.TrimSpace(c.Name) != "" {
				cp := *c
				chars = append(chars, &cp)
			}
		}
		out.Characters = cloneCharacters(chars)
	}

	if in.EnvironmentIDs != nil || in.Environments != nil {
		envs := make([]*models.Environment, 0, len(in.EnvironmentIDs)+len(in.Environments))
		for _, id := range in.EnvironmentIDs {
			if e, ok := w.libs.Environment(id); ok {
				envs = append(envs, e)
			}
		}
		for _, e := range in.Environments {
			if e != nil && strings.TrimSpace(e.Name) != "" {
				cp := *e
				envs = append(envs, &cp)
			}
		}
		out.Environments = cloneEnvironments(envs)
	}

	if in.BrandIDs != nil {
		out.Brands = make([]*models.BrandAnchor, 0, len(in.BrandIDs))
		for _, id := range in.BrandIDs {
			if b, ok := w.libs.Brands.Get(id); ok {
				cp := *b
				cp.Tokens = append([]string(nil), b.Tokens...)
				out.Brands = append(out.Brands, &cp)
			}
		}
	}

	return w.touch(out), nil
}

// BuildTemplateRequest 项目级模板请求
func (w *Workflow) BuildTemplateRequest(wc models.WorkflowContext) models.SynthesisRequest {
	return models.SynthesisRequest{
		Concept:      wc.Concept,
		Duration:     wc.Duration,
		VideoStyle:   wc.VideoStyle,
		MediaType:    wc.MediaType,
		Characters:   characterSummaries(wc.Characters),
		Environments: environmentSummaries(wc.Environments),
		Brands:       brandSummaries(wc.Brands),
	}
}

// GenerateTemplate setup → template。生成模板，解析并静默保存新锚点，然后进入 template 阶段。
// Regenerating from the template stage is allowed; on any failure the
// input context is returned unchanged.
func (w *Workflow) GenerateTemplate(ctx context.Context, wc models.WorkflowContext) (models.WorkflowContext, TemplateReport, error) {
	var report TemplateReport
	if err := w.requireStage(wc, "generate template", models.StageSetup, models.StageTemplate); err != nil {
		return wc, report, err
	}
	if strings.TrimSpace(wc.Concept) == "" {
		return wc, report, errors.NewValidationError("concept is required before generating a template", nil)
	}

	req := w.BuildTemplateRequest(wc)
	text, err := Guard(ctx, w.limiter, func(ctx context.Context) (string, error) {
		return w.synth.Synthesize(ctx, req)
	})
	if err != nil {
		return wc, report, err
	}
	if strings.TrimSpace(text) == "" {
		return wc, report, errors.NewSynthesisError("template is empty", nil)
	}

	report = w.persistExtracted(wc, parser.Extract(text))

	out := wc.Clone()
	out.Template = text
	out.Stage = models.StageTemplate
	return w.touch(out), report, nil
}

// persistExtracted 保存解析出的锚点：跳过与当前上下文（及本批次）同名的实体
func (w *Workflow) persistExtracted(wc models.WorkflowContext, ex parser.Extraction) TemplateReport {
	report := TemplateReport{Skipped: ex.Skipped}
	metrics := utils.GetMetricsCollector()
	metrics.AddCounter(utils.MetricParserSkipped, int64(ex.Skipped))

	seenChars := make(map[string]struct{}, len(wc.Characters)+len(ex.Characters))
	for _, c := range wc.Characters {
		seenChars[models.NameKey(c.Name)] = struct{}{}
	}
	for _, c := range ex.Characters {
		key := models.NameKey(c.Name)
		if _, dup := seenChars[key]; dup {
			report.Duplicates++
			continue
		}
		seenChars[key] = struct{}{}
		report.SavedCharacters = append(report.SavedCharacters, w.libs.Characters.Save(c))
	}

	seenEnvs := make(map[string]struct{}, len(wc.Environments)+len(ex.Environments))
	for _, e := range wc.Environments {
		seenEnvs[models.NameKey(e.Name)] = struct{}{}
	}
	for _, e := range ex.Environments {
		key := models.NameKey(e.Name)
		if _, dup := seenEnvs[key]; dup {
			report.Duplicates++
			continue
		}
		seenEnvs[key] = struct{}{}
		report.SavedEnvironments = append(report.SavedEnvironments, w.libs.Environments.Save(e))
	}

	saved := len(report.SavedCharacters) + len(report.SavedEnvironments)
	metrics.AddCounter(utils.MetricParserExtracted, int64(saved))
	utils.GetLogger().Info("anchors extracted from template", map[string]interface{}{
		"project_id": wc.ProjectID,
		"saved":      saved,
		"duplicates": report.Duplicates,
		"skipped":    report.Skipped,
	})
	return report
}

// Approve template → scenes，不调用生成服务
func (w *Workflow) Approve(wc models.WorkflowContext) (models.WorkflowContext, error) {
	if err := w.requireStage(wc, "approve", models.StageTemplate); err != nil {
		return wc, err
	}
	if strings.TrimSpace(wc.Template) == "" {
		return wc, errors.NewTransitionError("cannot approve an empty template")
	}
	out := wc.Clone()
	out.Stage = models.StageScenes
	return w.touch(out), nil
}

// EditSetup 返回 setup 阶段，保留 scenes 与 template
func (w *Workflow) EditSetup(wc models.WorkflowContext) (models.WorkflowContext, error) {
	out := wc.Clone()
	out.Stage = models.StageSetup
	return w.touch(out), nil
}

// AddScene 追加一个空场景
func (w *Workflow) AddScene(wc models.WorkflowContext) (models.WorkflowContext, string, error) {
	if err := w.requireStage(wc, "add scene", models.StageScenes); err != nil {
		return wc, "", err
	}
	out := wc.Clone()
	scene := models.Scene{
		ID:                   uuid.NewString(),
		Title:                fmt.Sprintf("Scene %d", len(out.Scenes)+1),
		SelectedCharacterIDs: []string{},
	}
	out.Scenes = append(out.Scenes, scene)
	return w.touch(out), scene.ID, nil
}

// UpdateScene 修改场景的单个字段
func (w *Workflow) UpdateScene(wc models.WorkflowContext, sceneID, field, value string) (models.WorkflowContext, error) {
	if err := w.requireStage(wc, "update scene", models.StageScenes); err != nil {
		return wc, err
	}
	idx := wc.SceneIndex(sceneID)
	if idx < 0 {
		return wc, errors.NewNotFoundError(fmt.Sprintf("scene %s not found", sceneID), nil)
	}

	out := wc.Clone()
	scene := &out.Scenes[idx]

	switch normalizeSceneField(field) {
	case SceneFieldTitle:
		scene.Title = value
	case SceneFieldDescription:
		scene.Description = value
	case SceneFieldCharacters:
		ids, err := parseIDList(value)
		if err != nil {
			return wc, err
		}
		scene.SelectedCharacterIDs = ids
	case SceneFieldEnvironment:
		scene.SelectedEnvironmentID = strings.TrimSpace(value)
	case SceneFieldCustomEnv:
		scene.CustomEnvironment = value
	case SceneFieldStyleTemplate:
		scene.StyleTemplate = value
	case SceneFieldStyleID:
		id := strings.TrimSpace(value)
		if id == "" {
			scene.StyleTemplate = ""
			break
		}
		style, ok := w.libs.Style(id)
		if !ok {
			return wc, errors.NewNotFoundError(fmt.Sprintf("style %s not found", id), nil)
		}
		scene.StyleTemplate = style.ResolvedTemplate()
	case SceneFieldContent:
		// 手动编辑已生成的内容
		scene.Content = value
	default:
		return wc, errors.NewValidationError(fmt.Sprintf("unknown scene field %q", field), nil)
	}

	return w.touch(out), nil
}

// RemoveScene 删除场景
func (w *Workflow) RemoveScene(wc models.WorkflowContext, sceneID string) (models.WorkflowContext, error) {
	if err := w.requireStage(wc, "remove scene", models.StageScenes); err != nil {
		return wc, err
	}
	idx := wc.SceneIndex(sceneID)
	if idx < 0 {
		return wc, errors.NewNotFoundError(fmt.Sprintf("scene %s not found", sceneID), nil)
	}
	out := wc.Clone()
	out.Scenes = append(out.Scenes[:idx], out.Scenes[idx+1:]...)
	return w.touch(out), nil
}

// ResolveSceneRequest 计算场景的有效角色、环境与风格
func (w *Workflow) ResolveSceneRequest(wc models.WorkflowContext, scene models.Scene) models.SynthesisRequest {
	req := w.BuildTemplateRequest(wc)
	req.SceneTitle = scene.Title
	req.SceneDescription = scene.Description
	req.StyleTemplate = scene.StyleTemplate
	if strings.TrimSpace(req.SceneTitle) == "" && strings.TrimSpace(req.SceneDescription) == "" {
		req.SceneTitle = scene.ID
	}

	req.Characters = characterSummaries(w.sceneCharacters(wc, scene))

	if env, ok := w.sceneEnvironment(wc, scene); ok {
		req.Environments = []models.EnvironmentSummary{env}
	} else {
		req.Environments = []models.EnvironmentSummary{}
	}
	return req
}

// sceneCharacters: explicit selection → library records, else workflow characters
func (w *Workflow) sceneCharacters(wc models.WorkflowContext, scene models.Scene) []*models.Character {
	if len(scene.SelectedCharacterIDs) == 0 {
		return wc.Characters
	}

	out := make([]*models.Character, 0, len(scene.SelectedCharacterIDs))
	for _, id := range scene.SelectedCharacterIDs {
		if c, ok := w.libs.Characters.Get(id); ok {
			out = append(out, c)
			continue
		}
		if c := findCharacter(wc.Characters, id); c != nil {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		utils.GetLogger().Warn("scene selects unknown characters, using project cast", map[string]interface{}{
			"project_id": wc.ProjectID,
			"scene_id":   scene.ID,
		})
		return wc.Characters
	}
	return out
}

// sceneEnvironment: customEnvironment > selectedEnvironmentId > environments[0]
func (w *Workflow) sceneEnvironment(wc models.WorkflowContext, scene models.Scene) (models.EnvironmentSummary, bool) {
	if custom := strings.TrimSpace(scene.CustomEnvironment); custom != "" {
		return models.CustomEnvironmentSummary(custom), true
	}
	if id := strings.TrimSpace(scene.SelectedEnvironmentID); id != "" {
		if e, ok := w.libs.Environment(id); ok {
			return e.Summarize(), true
		}
		if e := findEnvironment(wc.Environments, id); e != nil {
			return e.Summarize(), true
		}
	}
	if len(wc.Environments) > 0 && wc.Environments[0] != nil {
		return wc.Environments[0].Summarize(), true
	}
	return models.EnvironmentSummary{}, false
}

// SynthesizeScene 为场景生成内容但不修改上下文。
// Rate-limit errors set the limiter flag and are returned as is.
func (w *Workflow) SynthesizeScene(ctx context.Context, wc models.WorkflowContext, sceneID string) (string, error) {
	if err := w.requireStage(wc, "generate scene", models.StageScenes); err != nil {
		return "", err
	}
	idx := wc.SceneIndex(sceneID)
	if idx < 0 {
		return "", errors.NewNotFoundError(fmt.Sprintf("scene %s not found", sceneID), nil)
	}

	req := w.ResolveSceneRequest(wc, wc.Scenes[idx])
	return Guard(ctx, w.limiter, func(ctx context.Context) (string, error) {
		return w.synth.Synthesize(ctx, req)
	})
}

// ApplySceneContent 写入生成结果并标记 generated
func (w *Workflow) ApplySceneContent(wc models.WorkflowContext, sceneID, content string) (models.WorkflowContext, error) {
	idx := wc.SceneIndex(sceneID)
	if idx < 0 {
		return wc, errors.NewNotFoundError(fmt.Sprintf("scene %s not found", sceneID), nil)
	}
	out := wc.Clone()
	out.Scenes[idx].Content = content
	out.Scenes[idx].Generated = true
	return w.touch(out), nil
}

// GenerateScene = SynthesizeScene + ApplySceneContent
func (w *Workflow) GenerateScene(ctx context.Context, wc models.WorkflowContext, sceneID string) (models.WorkflowContext, error) {
	content, err := w.SynthesizeScene(ctx, wc, sceneID)
	if err != nil {
		return wc, err
	}
	return w.ApplySceneContent(wc, sceneID, content)
}

func normalizeSceneField(field string) string {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(field), "_", "")) {
	case "title":
		return SceneFieldTitle
	case "description":
		return SceneFieldDescription
	case "selectedcharacterids", "characterids", "characters":
		return SceneFieldCharacters
	case "selectedenvironmentid", "environmentid", "environment":
		return SceneFieldEnvironment
	case "customenvironment":
		return SceneFieldCustomEnv
	case "styletemplate":
		return SceneFieldStyleTemplate
	case "styleid", "style":
		return SceneFieldStyleID
	case "content":
		return SceneFieldContent
	}
	return field
}

// parseIDList accepts a JSON array or a comma separated list.
func parseIDList(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	ids := []string{}
	if value == "" {
		return ids, nil
	}
	if strings.HasPrefix(value, "[") {
		var raw []string
		if err := json.Unmarshal([]byte(value), &raw); err != nil {
			return nil, errors.NewValidationError("invalid character id list", err)
		}
		value = strings.Join(raw, ",")
	}
	seen := make(map[string]struct{})
	for _, id := range strings.Split(value, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func findCharacter(list []*models.Character, id string) *models.Character {
	for _, c := range list {
		if c != nil && c.ID == id {
			return c
		}
	}
	return nil
}

func findEnvironment(list []*models.Environment, id string) *models.Environment {
	for _, e := range list {
		if e != nil && e.ID == id {
			return e
		}
	}
	return nil
}

func cloneCharacters(in []*models.Character) []*models.Character {
	out := make([]*models.Character, 0, len(in))
	for _, c := range in {
		cp := *c
		out = append(out, &cp)
	}
	return out
}

func cloneEnvironments(in []*models.Environment) []*models.Environment {
	out := make([]*models.Environment, 0, len(in))
	for _, e := range in {
		cp := *e
		out = append(out, &cp)
	}
	return out
}
