// internal/services/events.go
package services

import "time"

// 生成事件类型
const (
	EventTemplateReady     = "template_ready"
	EventSceneGenerating   = "scene_generating"
	EventSceneGenerated    = "scene_generated"
	EventSceneFailed       = "scene_failed"
	EventUsageLimitReached = "usage_limit_reached"
)

// Event 推送给展示层的生成事件
type Event struct {
	Type      string                 `json:"type"`
	ProjectID string                 `json:"project_id,omitempty"`
	SceneID   string                 `json:"scene_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventPublisher receives workflow events. Publish must not block.
type EventPublisher interface {
	Publish(event Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}
