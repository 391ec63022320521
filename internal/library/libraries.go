// internal/library/libraries.go
package library

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Corphon/SceneForge/internal/errors"
	"github.com/Corphon/SceneForge/internal/models"
	"github.com/Corphon/SceneForge/internal/storage"
)

// Libraries 四类锚点库的集合
type Libraries struct {
	Characters   *Library[*models.Character]
	Environments *Library[*models.Environment]
	Styles       *Library[*models.StyleAnchor]
	Brands       *Library[*models.BrandAnchor]
}

// Open 从同一个存储后端加载全部锚点库
func Open(backend storage.Backend) *Libraries {
	return &Libraries{
		Characters:   New[*models.Character](backend, string(models.KindCharacter)),
		Environments: New[*models.Environment](backend, string(models.KindEnvironment)),
		Styles:       New[*models.StyleAnchor](backend, string(models.KindStyle)),
		Brands:       New[*models.BrandAnchor](backend, string(models.KindBrand)),
	}
}

// ResolveCharacters maps ids to library records in the given order. Unknown
// ids are skipped.
func (l *Libraries) ResolveCharacters(ids []string) []*models.Character {
	out := make([]*models.Character, 0, len(ids))
	for _, id := range ids {
		if c, ok := l.Characters.Get(strings.TrimSpace(id)); ok {
			out = append(out, c)
		}
	}
	return out
}

// Environment 按 ID 查找环境锚点
func (l *Libraries) Environment(id string) (*models.Environment, bool) {
	if strings.TrimSpace(id) == "" {
		return nil, false
	}
	return l.Environments.Get(id)
}

// Style 按 ID 查找风格锚点
func (l *Libraries) Style(id string) (*models.StyleAnchor, bool) {
	return l.Styles.Get(id)
}

// List 按类型列出锚点
func (l *Libraries) List(kind models.AnchorKind) []models.Anchor {
	switch kind {
	case models.KindCharacter:
		return toAnchors(l.Characters.List())
	case models.KindEnvironment:
		return toAnchors(l.Environments.List())
	case models.KindStyle:
		return toAnchors(l.Styles.List())
	case models.KindBrand:
		return toAnchors(l.Brands.List())
	}
	return nil
}

// Available 返回名称不在 activeNames 中的锚点
func (l *Libraries) Available(kind models.AnchorKind, activeNames []string) []models.Anchor {
	switch kind {
	case models.KindCharacter:
		return toAnchors(l.Characters.AvailableExcluding(activeNames))
	case models.KindEnvironment:
		return toAnchors(l.Environments.AvailableExcluding(activeNames))
	case models.KindStyle:
		return toAnchors(l.Styles.AvailableExcluding(activeNames))
	case models.KindBrand:
		return toAnchors(l.Brands.AvailableExcluding(activeNames))
	}
	return nil
}

// Remove 按类型删除锚点
func (l *Libraries) Remove(kind models.AnchorKind, id string) {
	switch kind {
	case models.KindCharacter:
		l.Characters.Remove(id)
	case models.KindEnvironment:
		l.Environments.Remove(id)
	case models.KindStyle:
		l.Styles.Remove(id)
	case models.KindBrand:
		l.Brands.Remove(id)
	}
}

// LastError 返回对应类型最近一次持久化失败
func (l *Libraries) LastError(kind models.AnchorKind) error {
	switch kind {
	case models.KindCharacter:
		return l.Characters.LastError()
	case models.KindEnvironment:
		return l.Environments.LastError()
	case models.KindStyle:
		return l.Styles.LastError()
	case models.KindBrand:
		return l.Brands.LastError()
	}
	return nil
}

// Save stores an anchor in the library matching its kind.
func (l *Libraries) Save(anchor models.Anchor) models.Anchor {
	switch a := anchor.(type) {
	case *models.Character:
		return l.Characters.Save(a)
	case *models.Environment:
		return l.Environments.Save(a)
	case *models.StyleAnchor:
		return l.Styles.Save(a)
	case *models.BrandAnchor:
		return l.Brands.Save(a)
	}
	return anchor
}

// SaveIfAbsentByName 按类型分派到对应库的 SaveIfAbsentByName
func (l *Libraries) SaveIfAbsentByName(anchor models.Anchor) (models.Anchor, bool) {
	switch a := anchor.(type) {
	case *models.Character:
		return l.Characters.SaveIfAbsentByName(a)
	case *models.Environment:
		return l.Environments.SaveIfAbsentByName(a)
	case *models.StyleAnchor:
		return l.Styles.SaveIfAbsentByName(a)
	case *models.BrandAnchor:
		return l.Brands.SaveIfAbsentByName(a)
	}
	return anchor, false
}

// Decode 将 JSON 请求体解析为对应类型的锚点；名称不能为空
func Decode(kind models.AnchorKind, data []byte) (models.Anchor, error) {
	var anchor models.Anchor
	switch kind {
	case models.KindCharacter:
		anchor = &models.Character{}
	case models.KindEnvironment:
		anchor = &models.Environment{}
	case models.KindStyle:
		anchor = &models.StyleAnchor{}
	case models.KindBrand:
		anchor = &models.BrandAnchor{}
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("未知的锚点类型: %s", kind), nil)
	}

	if err := json.Unmarshal(data, anchor); err != nil {
		return nil, errors.NewValidationError("无效的锚点数据", err)
	}
	if strings.TrimSpace(anchor.GetName()) == "" {
		return nil, errors.NewValidationError("锚点名称不能为空", nil)
	}
	return anchor, nil
}

func toAnchors[A models.Anchor](items []A) []models.Anchor {
	out := make([]models.Anchor, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
