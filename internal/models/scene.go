// internal/models/scene.go
package models

// Scene 表示模板批准后的一个生成单元，携带自己的锚点选择覆盖
type Scene struct {
	ID                    string   `json:"id"`
	Title                 string   `json:"title"`
	Description           string   `json:"description"`
	Generated             bool     `json:"generated"`
	Content               string   `json:"content"`
	SelectedCharacterIDs  []string `json:"selected_character_ids"`
	SelectedEnvironmentID string   `json:"selected_environment_id,omitempty"`
	CustomEnvironment     string   `json:"custom_environment,omitempty"`
	StyleTemplate         string   `json:"style_template,omitempty"`
}

// Clone returns a deep copy of the scene.
func (s Scene) Clone() Scene {
	if s.SelectedCharacterIDs != nil {
		s.SelectedCharacterIDs = append([]string(nil), s.SelectedCharacterIDs...)
	}
	return s
}
