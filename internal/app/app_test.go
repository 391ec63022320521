package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/SceneForge/internal/config"
	"github.com/Corphon/SceneForge/internal/di"
	"github.com/Corphon/SceneForge/internal/models"
	"github.com/Corphon/SceneForge/internal/services"
)

func offlineConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	t.Setenv("LLM_PROVIDER", "offline")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("CONFIG_SECRET", "test")
	t.Setenv("LOG_DIR", "")
	require.NoError(t, config.InitConfig(t.TempDir()))
	return config.GetCurrentConfig()
}

func TestBuildServicesOfflinePipeline(t *testing.T) {
	cfg := offlineConfig(t)

	svc, err := BuildServices(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	assert.True(t, svc.Generation.IsReady())

	concept := "A barista pulls the perfect shot"
	wc, err := svc.Projects.CreateProject(services.SetupInput{Concept: &concept})
	require.NoError(t, err)

	ctx := context.Background()
	wc, report, err := svc.Projects.GenerateTemplate(ctx, wc.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, models.StageTemplate, wc.Stage)
	assert.Len(t, report.SavedCharacters, 1)
	assert.Equal(t, 1, svc.Libraries.Characters.Len())

	wc, err = svc.Projects.Approve(wc.ProjectID)
	require.NoError(t, err)

	wc, sceneID, err := svc.Projects.AddScene(wc.ProjectID)
	require.NoError(t, err)

	wc, err = svc.Projects.GenerateScene(ctx, wc.ProjectID, sceneID)
	require.NoError(t, err)
	scene := wc.Scenes[wc.SceneIndex(sceneID)]
	assert.True(t, scene.Generated)
	assert.Contains(t, scene.Content, concept)
}

func TestBuildServicesPresets(t *testing.T) {
	cfg := offlineConfig(t)
	svc, err := BuildServices(cfg, nil)
	require.NoError(t, err)
	defer svc.Close()

	assert.NotEmpty(t, svc.Presets.Characters)
	assert.NotEmpty(t, svc.Presets.Styles)
}

func TestInitServicesRegistersAndCleansUp(t *testing.T) {
	cfg := offlineConfig(t)

	a := &App{stopChan: make(chan struct{})}
	container := di.NewContainer()
	require.NoError(t, a.initServices(cfg, container))
	// 重复初始化是空操作
	require.NoError(t, a.initServices(cfg, container))

	for _, name := range []string{
		di.ServiceStorage, di.ServiceLibraries, di.ServicePresets, di.ServiceGeneration,
		di.ServiceSynthesis, di.ServiceLimiter, di.ServiceWorkflow, di.ServiceProjects, di.ServiceHub,
	} {
		assert.True(t, container.Has(name), name)
	}
	assert.NotNil(t, a.Services())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Cleanup(ctx))
	require.NoError(t, a.Cleanup(ctx))

	select {
	case <-a.Done():
	default:
		t.Fatal("Done should be closed after Cleanup")
	}
}
