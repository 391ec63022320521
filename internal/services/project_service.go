// internal/services/project_service.go
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Corphon/SceneForge/internal/errors"
	"github.com/Corphon/SceneForge/internal/models"
	"github.com/Corphon/SceneForge/internal/storage"
	"github.com/Corphon/SceneForge/internal/utils"
)

const projectPrefix = "projects/"

// ProjectService 管理每个项目的 WorkflowContext，并持久化到 projects/<id>。
// The per-project lock only covers load-transition-save; scene synthesis
// runs outside it and its result is applied to the latest context, so the
// last call to resolve for a scene id wins.
type ProjectService struct {
	backend     storage.Backend
	workflow    *Workflow
	publisher   EventPublisher
	concurrency int
	locks       *LockManager

	genMu      sync.Mutex
	generating map[string]map[string]int
}

// BatchResult GenerateAllScenes 的结果
type BatchResult struct {
	Generated []string          `json:"generated"`
	Failed    map[string]string `json:"failed"`
}

func NewProjectService(backend storage.Backend, workflow *Workflow, publisher EventPublisher, concurrency int) *ProjectService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	s := &ProjectService{
		backend:     backend,
		workflow:    workflow,
		publisher:   publisher,
		concurrency: concurrency,
		locks:       NewLockManager(),
		generating:  make(map[string]map[string]int),
	}

	workflow.Limiter().OnLimit(func(err error) {
		s.publisher.Publish(Event{
			Type:      EventUsageLimitReached,
			Data:      map[string]interface{}{"error": err.Error()},
			Timestamp: time.Now(),
		})
	})
	return s
}

// Workflow 返回底层状态机
func (s *ProjectService) Workflow() *Workflow {
	return s.workflow
}

func projectCollection(id string) string {
	return projectPrefix + id
}

func (s *ProjectService) load(projectID string) (models.WorkflowContext, error) {
	var wc models.WorkflowContext
	if strings.TrimSpace(projectID) == "" {
		return wc, errors.NewValidationError("project id is required", nil)
	}
	found, err := s.backend.LoadCollection(projectCollection(projectID), &wc)
	if err != nil {
		return wc, errors.NewProcessingError("failed to load project", err)
	}
	if !found {
		return wc, errors.NewNotFoundError(fmt.Sprintf("project %s not found", projectID), nil)
	}
	return wc, nil
}

func (s *ProjectService) save(wc models.WorkflowContext) error {
	err := s.backend.SaveCollection(projectCollection(wc.ProjectID), wc)
	return errors.WrapError(err, "failed to save project", errors.ErrorTypeError)
}

// mutate 在项目锁内加载、执行状态转换并保存
func (s *ProjectService) mutate(projectID string, fn func(models.WorkflowContext) (models.WorkflowContext, error)) (models.WorkflowContext, error) {
	var result models.WorkflowContext
	err := s.locks.WithLock(projectID, func() error {
		wc, err := s.load(projectID)
		if err != nil {
			return err
		}
		next, err := fn(wc)
		if err != nil {
			return err
		}
		if err := s.save(next); err != nil {
			return err
		}
		result = next
		return nil
	})
	return result, err
}

// CreateProject 创建新项目
func (s *ProjectService) CreateProject(in SetupInput) (models.WorkflowContext, error) {
	wc, err := s.workflow.UpdateSetup(NewWorkflowContext(""), in)
	if err != nil {
		return wc, err
	}
	if err := s.save(wc); err != nil {
		return wc, err
	}
	utils.GetLogger().Info("project created", map[string]interface{}{"project_id": wc.ProjectID})
	return wc, nil
}

// GetProject 读取项目
func (s *ProjectService) GetProject(projectID string) (models.WorkflowContext, error) {
	return s.load(projectID)
}

// ListProjects 列出全部项目（按更新时间倒序）
func (s *ProjectService) ListProjects() ([]models.ProjectMetadata, error) {
	names, err := s.backend.ListCollections(projectPrefix)
	if err != nil {
		return nil, errors.NewProcessingError("failed to list projects", err)
	}

	out := make([]models.ProjectMetadata, 0, len(names))
	for _, name := range names {
		wc, err := s.load(strings.TrimPrefix(name, projectPrefix))
		if err != nil {
			utils.GetLogger().Warn("skipping unreadable project", map[string]interface{}{
				"collection": name,
				"error":      err,
			})
			continue
		}
		out = append(out, models.ProjectMetadata{
			ProjectID:  wc.ProjectID,
			Stage:      wc.Stage,
			Concept:    wc.Concept,
			SceneCount: len(wc.Scenes),
			UpdatedAt:  wc.UpdatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// DeleteProject 删除项目
func (s *ProjectService) DeleteProject(projectID string) error {
	err := s.locks.WithLock(projectID, func() error {
		if _, err := s.load(projectID); err != nil {
			return err
		}
		if err := s.backend.DeleteCollection(projectCollection(projectID)); err != nil {
			return errors.NewProcessingError("failed to delete project", err)
		}
		return nil
	})
	if err == nil {
		s.locks.Forget(projectID)
	}
	return err
}

func (s *ProjectService) UpdateSetup(projectID string, in SetupInput) (models.WorkflowContext, error) {
	return s.mutate(projectID, func(wc models.WorkflowContext) (models.WorkflowContext, error) {
		return s.workflow.UpdateSetup(wc, in)
	})
}

// GenerateTemplate 在项目锁内生成模板；同一项目的模板生成串行执行
func (s *ProjectService) GenerateTemplate(ctx context.Context, projectID string) (models.WorkflowContext, TemplateReport, error) {
	var report TemplateReport
	wc, err := s.mutate(projectID, func(wc models.WorkflowContext) (models.WorkflowContext, error) {
		next, r, err := s.workflow.GenerateTemplate(ctx, wc)
		report = r
		return next, err
	})
	if err != nil {
		return wc, report, err
	}

	s.publisher.Publish(Event{
		Type:      EventTemplateReady,
		ProjectID: projectID,
		Data: map[string]interface{}{
			"saved_characters":   len(report.SavedCharacters),
			"saved_environments": len(report.SavedEnvironments),
		},
		Timestamp: time.Now(),
	})
	return wc, report, nil
}

func (s *ProjectService) Approve(projectID string) (models.WorkflowContext, error) {
	return s.mutate(projectID, s.workflow.Approve)
}

func (s *ProjectService) EditSetup(projectID string) (models.WorkflowContext, error) {
	return s.mutate(projectID, s.workflow.EditSetup)
}

func (s *ProjectService) AddScene(projectID string) (models.WorkflowContext, string, error) {
	var sceneID string
	wc, err := s.mutate(projectID, func(wc models.WorkflowContext) (models.WorkflowContext, error) {
		next, id, err := s.workflow.AddScene(wc)
		sceneID = id
		return next, err
	})
	return wc, sceneID, err
}

func (s *ProjectService) UpdateScene(projectID, sceneID, field, value string) (models.WorkflowContext, error) {
	return s.mutate(projectID, func(wc models.WorkflowContext) (models.WorkflowContext, error) {
		return s.workflow.UpdateScene(wc, sceneID, field, value)
	})
}

func (s *ProjectService) RemoveScene(projectID, sceneID string) (models.WorkflowContext, error) {
	return s.mutate(projectID, func(wc models.WorkflowContext) (models.WorkflowContext, error) {
		return s.workflow.RemoveScene(wc, sceneID)
	})
}

// GenerateScene 生成单个场景。合成在锁外进行，结果写入最新的上下文。
func (s *ProjectService) GenerateScene(ctx context.Context, projectID, sceneID string) (models.WorkflowContext, error) {
	snapshot, err := s.load(projectID)
	if err != nil {
		return snapshot, err
	}

	s.markGenerating(projectID, sceneID)
	s.publisher.Publish(Event{Type: EventSceneGenerating, ProjectID: projectID, SceneID: sceneID, Timestamp: time.Now()})

	content, err := s.workflow.SynthesizeScene(ctx, snapshot, sceneID)
	s.unmarkGenerating(projectID, sceneID)
	if err != nil {
		s.publisher.Publish(Event{
			Type:      EventSceneFailed,
			ProjectID: projectID,
			SceneID:   sceneID,
			Data: map[string]interface{}{
				"error":        err.Error(),
				"rate_limited": errors.IsRateLimitError(err),
			},
			Timestamp: time.Now(),
		})
		return snapshot, err
	}

	wc, err := s.mutate(projectID, func(latest models.WorkflowContext) (models.WorkflowContext, error) {
		return s.workflow.ApplySceneContent(latest, sceneID, content)
	})
	if err != nil {
		// 场景可能在生成期间被删除
		utils.GetLogger().Warn("discarding generated scene content", map[string]interface{}{
			"project_id": projectID,
			"scene_id":   sceneID,
			"error":      err,
		})
		return wc, err
	}

	s.publisher.Publish(Event{
		Type:      EventSceneGenerated,
		ProjectID: projectID,
		SceneID:   sceneID,
		Data:      map[string]interface{}{"length": len(content)},
		Timestamp: time.Now(),
	})
	return wc, nil
}

// GenerateAllScenes 并发生成项目中的场景，并发数受 concurrency 限制。
// A rate-limit failure stops the batch; other failures are collected.
func (s *ProjectService) GenerateAllScenes(ctx context.Context, projectID string, onlyMissing bool) (BatchResult, error) {
	result := BatchResult{Generated: []string{}, Failed: map[string]string{}}

	snapshot, err := s.load(projectID)
	if err != nil {
		return result, err
	}
	if snapshot.Stage != models.StageScenes {
		return result, errors.NewTransitionError(fmt.Sprintf("generate all scenes is not allowed in stage %q", snapshot.Stage))
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, scene := range snapshot.Scenes {
		if onlyMissing && scene.Generated {
			continue
		}
		sceneID := scene.ID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nil
			}
			_, err := s.GenerateScene(gctx, projectID, sceneID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[sceneID] = err.Error()
				if errors.IsRateLimitError(err) {
					return err
				}
				return nil
			}
			result.Generated = append(result.Generated, sceneID)
			return nil
		})
	}

	err = g.Wait()
	sort.Strings(result.Generated)
	return result, err
}

// GeneratingScenes 返回正在生成中的场景 ID
func (s *ProjectService) GeneratingScenes(projectID string) []string {
	s.genMu.Lock()
	defer s.genMu.Unlock()

	ids := make([]string, 0, len(s.generating[projectID]))
	for id := range s.generating[projectID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *ProjectService) markGenerating(projectID, sceneID string) {
	utils.GetMetricsCollector().IncGauge(utils.MetricScenesGenerating)

	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generating[projectID] == nil {
		s.generating[projectID] = make(map[string]int)
	}
	s.generating[projectID][sceneID]++
}

func (s *ProjectService) unmarkGenerating(projectID, sceneID string) {
	utils.GetMetricsCollector().DecGauge(utils.MetricScenesGenerating)

	s.genMu.Lock()
	defer s.genMu.Unlock()
	scenes := s.generating[projectID]
	if scenes == nil {
		return
	}
	if scenes[sceneID]--; scenes[sceneID] <= 0 {
		delete(scenes, sceneID)
	}
	if len(scenes) == 0 {
		delete(s.generating, projectID)
	}
}
