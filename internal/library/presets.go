// internal/library/presets.go
package library

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Corphon/SceneForge/internal/errors"
	"github.com/Corphon/SceneForge/internal/models"
)

//go:embed presets.yaml
var defaultPresets []byte

// PresetCharacter 预设角色
type PresetCharacter struct {
	Name     string `yaml:"name" json:"name"`
	Look     string `yaml:"look" json:"look"`
	Demeanor string `yaml:"demeanor" json:"demeanor"`
	Role     string `yaml:"role" json:"role"`
}

// PresetEnvironment 预设环境
type PresetEnvironment struct {
	Name     string `yaml:"name" json:"name"`
	Setting  string `yaml:"setting" json:"setting"`
	Lighting string `yaml:"lighting" json:"lighting"`
	Audio    string `yaml:"audio" json:"audio"`
	Props    string `yaml:"props" json:"props"`
}

// PresetStyle 预设风格
type PresetStyle struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Template    string `yaml:"template" json:"template"`
}

// PresetBrand 预设品牌
type PresetBrand struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Tokens      []string `yaml:"tokens" json:"tokens"`
}

// Presets 静态预设锚点，只读
type Presets struct {
	Characters   []PresetCharacter   `yaml:"characters" json:"characters"`
	Environments []PresetEnvironment `yaml:"environments" json:"environments"`
	Styles       []PresetStyle       `yaml:"styles" json:"styles"`
	Brands       []PresetBrand       `yaml:"brands" json:"brands"`
}

// LoadPresets reads presets from path, or the embedded defaults when path
// is empty.
func LoadPresets(path string) (*Presets, error) {
	data := defaultPresets
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取预设文件失败: %w", err)
		}
		data = raw
	}
	return ParsePresets(data)
}

// ParsePresets 解析 YAML 预设
func ParsePresets(data []byte) (*Presets, error) {
	var p Presets
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("解析预设失败: %w", err)
	}
	return &p, nil
}

// Build 将预设转换为新的锚点（无 ID，无创建时间）
func (p *Presets) Build(kind models.AnchorKind, name string) (models.Anchor, error) {
	key := models.NameKey(name)
	switch kind {
	case models.KindCharacter:
		for _, c := range p.Characters {
			if models.NameKey(c.Name) == key {
				return &models.Character{Name: c.Name, Look: c.Look, Demeanor: c.Demeanor, Role: c.Role}, nil
			}
		}
	case models.KindEnvironment:
		for _, e := range p.Environments {
			if models.NameKey(e.Name) == key {
				return &models.Environment{Name: e.Name, Setting: e.Setting, Lighting: e.Lighting, Audio: e.Audio, Props: e.Props}, nil
			}
		}
	case models.KindStyle:
		for _, s := range p.Styles {
			if models.NameKey(s.Name) == key {
				return &models.StyleAnchor{Name: s.Name, Description: s.Description, Template: s.Template}, nil
			}
		}
	case models.KindBrand:
		for _, b := range p.Brands {
			if models.NameKey(b.Name) == key {
				return &models.BrandAnchor{Name: b.Name, Description: b.Description, Tokens: append([]string(nil), b.Tokens...)}, nil
			}
		}
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("未知的锚点类型: %s", kind), nil)
	}
	return nil, errors.NewNotFoundError(fmt.Sprintf("预设不存在: %s/%s", kind, strings.TrimSpace(name)), nil)
}

// SaveTo copies a preset into the library. A library anchor with the same
// name is returned as is rather than duplicated.
func (p *Presets) SaveTo(libs *Libraries, kind models.AnchorKind, name string) (models.Anchor, error) {
	anchor, err := p.Build(kind, name)
	if err != nil {
		return nil, err
	}
	saved, _ := libs.SaveIfAbsentByName(anchor)
	return saved, nil
}
