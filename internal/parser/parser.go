// internal/parser/parser.go
package parser

import (
	"regexp"
	"strings"

	"github.com/Corphon/SceneForge/internal/models"
	"github.com/Corphon/SceneForge/internal/utils"
)

// 标签格式: **Label**: value 或 **Label:** value，可带列表前缀
var (
	labelLine   = regexp.MustCompile(`^\s*(?:[-*+]\s+|\d+[.)]\s+)?\*\*\s*([^*:\n]+?)\s*(?::\s*\*\*|\*\*\s*:)\s*(.*)$`)
	boldLine    = regexp.MustCompile(`^\s*(?:[-*+]\s+|\d+[.)]\s+)?\*\*`)
	headingLine = regexp.MustCompile(`^\s*#{1,6}\s+(.*)$`)
)

const (
	labelName     = "name"
	labelLook     = "look"
	labelDemeanor = "demeanor"
	labelRole     = "role"
	labelSetting  = "setting"
	labelLighting = "lighting"
	labelAudio    = "audio"
	labelProps    = "props"
)

// label aliases seen in generated templates
var labelAliases = map[string]string{
	"name":             labelName,
	"character name":   labelName,
	"environment name": labelName,
	"location name":    labelName,
	"look":             labelLook,
	"appearance":       labelLook,
	"demeanor":         labelDemeanor,
	"demeanour":        labelDemeanor,
	"personality":      labelDemeanor,
	"role":             labelRole,
	"setting":          labelSetting,
	"location":         labelSetting,
	"lighting":         labelLighting,
	"audio":            labelAudio,
	"sound":            labelAudio,
	"props":            labelProps,
}

var characterLabels = []string{labelLook, labelDemeanor, labelRole}
var environmentLabels = []string{labelSetting, labelLighting, labelAudio, labelProps}

// Section 一个 **Label**: value 段落
type Section struct {
	Label string // normalised label, or the raw lower-cased text when unrecognised
	Value string
}

// CharacterFields 角色字段
type CharacterFields struct {
	Look     string `json:"look"`
	Demeanor string `json:"demeanor"`
	Role     string `json:"role"`
}

// EnvironmentFields 环境字段
type EnvironmentFields struct {
	Setting  string `json:"setting"`
	Lighting string `json:"lighting"`
	Audio    string `json:"audio"`
	Props    string `json:"props"`
}

// Candidate 从一个文本块中解析出的实体
type Candidate struct {
	Kind        models.AnchorKind
	Name        string
	Character   CharacterFields
	Environment EnvironmentFields
	Source      string
}

// Extraction 一次提取的结果
type Extraction struct {
	Characters   []*models.Character
	Environments []*models.Environment
	// Skipped counts blocks that carried anchor fields but no usable name.
	Skipped int
}

// Count 返回提取出的实体总数
func (e Extraction) Count() int {
	return len(e.Characters) + len(e.Environments)
}

func normalizeLabel(raw string) string {
	key := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if label, ok := labelAliases[key]; ok {
		return label
	}
	return key
}

// ParseSections 按顺序返回文本中的全部段落。段落值延续到下一个以 ** 开头的行、
// 标题行或文本结尾。
func ParseSections(text string) []Section {
	var sections []Section
	var current *Section
	var buf []string

	flush := func() {
		if current != nil {
			current.Value = strings.TrimSpace(strings.Join(buf, "\n"))
			sections = append(sections, *current)
		}
		current = nil
		buf = nil
	}

	for _, line := range splitLines(text) {
		if m := labelLine.FindStringSubmatch(line); m != nil {
			flush()
			current = &Section{Label: normalizeLabel(m[1])}
			buf = []string{m[2]}
			continue
		}
		if boldLine.MatchString(line) || headingLine.MatchString(line) {
			flush()
			continue
		}
		if current != nil {
			buf = append(buf, line)
		}
	}
	flush()
	return sections
}

// ParseCharacterFields captures Look/Demeanor/Role regardless of whether a
// name is present. The first occurrence of each label wins.
func ParseCharacterFields(text string) CharacterFields {
	values := firstValues(ParseSections(text))
	return CharacterFields{
		Look:     values[labelLook],
		Demeanor: values[labelDemeanor],
		Role:     values[labelRole],
	}
}

// ParseEnvironmentFields captures Setting/Lighting/Audio/Props.
func ParseEnvironmentFields(text string) EnvironmentFields {
	values := firstValues(ParseSections(text))
	return EnvironmentFields{
		Setting:  values[labelSetting],
		Lighting: values[labelLighting],
		Audio:    values[labelAudio],
		Props:    values[labelProps],
	}
}

// SplitBlocks 将文本拆分为实体块：每个标题行开启新块；
// a **Name** section opens a new block only when the current one already
// has a name, so a heading and the name beneath it stay together.
func SplitBlocks(text string) []string {
	var blocks []string
	var current []string
	hasName := false

	flush := func() {
		if block := strings.TrimSpace(strings.Join(current, "\n")); block != "" {
			blocks = append(blocks, block)
		}
		current = nil
		hasName = false
	}

	for _, line := range splitLines(text) {
		if headingLine.MatchString(line) {
			flush()
		} else if m := labelLine.FindStringSubmatch(line); m != nil && normalizeLabel(m[1]) == labelName {
			if hasName {
				flush()
			}
			hasName = true
		}
		current = append(current, line)
	}
	flush()
	return blocks
}

// ParseBlock 解析单个实体块。返回 false 表示块中没有可识别的字段，或缺少名称。
func ParseBlock(block string) (Candidate, bool) {
	sections := ParseSections(block)
	values := firstValues(sections)

	charCount := countPresent(values, characterLabels)
	envCount := countPresent(values, environmentLabels)
	if charCount == 0 && envCount == 0 {
		return Candidate{}, false
	}

	heading := firstHeading(block)
	hint := kindHint(heading)
	name := cleanName(values[labelName])
	if name == "" && hint != "" {
		name = headingName(heading)
	}
	if name == "" {
		return Candidate{}, false
	}

	c := Candidate{Name: name, Source: strings.TrimSpace(block)}
	switch hint {
	case models.KindEnvironment:
		c.Kind = models.KindEnvironment
	case models.KindCharacter:
		c.Kind = models.KindCharacter
	default:
		if envCount > charCount {
			c.Kind = models.KindEnvironment
		} else {
			c.Kind = models.KindCharacter
		}
	}

	if c.Kind == models.KindCharacter {
		c.Character = CharacterFields{Look: values[labelLook], Demeanor: values[labelDemeanor], Role: values[labelRole]}
	} else {
		c.Environment = EnvironmentFields{Setting: values[labelSetting], Lighting: values[labelLighting], Audio: values[labelAudio], Props: values[labelProps]}
	}
	return c, true
}

// Extract 解析文本中的全部实体块。纯函数：不会报错，也不会写入锚点库。
func Extract(text string) Extraction {
	var out Extraction
	for _, block := range SplitBlocks(text) {
		c, ok := ParseBlock(block)
		if !ok {
			if hasAnchorFields(block) {
				out.Skipped++
				utils.GetLogger().Debug("skipping unnamed anchor block", map[string]interface{}{
					"preview": preview(block),
				})
			}
			continue
		}
		switch c.Kind {
		case models.KindEnvironment:
			out.Environments = append(out.Environments, c.ToEnvironment())
		default:
			out.Characters = append(out.Characters, c.ToCharacter())
		}
	}
	return out
}

// ToCharacter 转换为未保存的角色锚点
func (c Candidate) ToCharacter() *models.Character {
	return &models.Character{
		Name:           c.Name,
		Look:           c.Character.Look,
		Demeanor:       c.Character.Demeanor,
		Role:           c.Character.Role,
		SourceTemplate: c.Source,
	}
}

// ToEnvironment 转换为未保存的环境锚点
func (c Candidate) ToEnvironment() *models.Environment {
	return &models.Environment{
		Name:           c.Name,
		Setting:        c.Environment.Setting,
		Lighting:       c.Environment.Lighting,
		Audio:          c.Environment.Audio,
		Props:          c.Environment.Props,
		SourceTemplate: c.Source,
	}
}

func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

func firstValues(sections []Section) map[string]string {
	values := make(map[string]string, len(sections))
	for _, s := range sections {
		if _, seen := values[s.Label]; !seen && s.Value != "" {
			values[s.Label] = s.Value
		}
	}
	return values
}

func countPresent(values map[string]string, labels []string) int {
	n := 0
	for _, l := range labels {
		if values[l] != "" {
			n++
		}
	}
	return n
}

func hasAnchorFields(block string) bool {
	values := firstValues(ParseSections(block))
	return countPresent(values, characterLabels)+countPresent(values, environmentLabels) > 0
}

func firstHeading(block string) string {
	for _, line := range splitLines(block) {
		if m := headingLine.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(strings.Trim(m[1], "*# "))
		}
	}
	return ""
}

// headingName 只接受 "Character: Mira" 这类带冒号的标题，调用方需先确认标题带有类型
func headingName(heading string) string {
	idx := strings.Index(heading, ":")
	if idx < 0 {
		return ""
	}
	return cleanName(heading[idx+1:])
}

func kindHint(heading string) models.AnchorKind {
	h := strings.ToLower(heading)
	if idx := strings.Index(h, ":"); idx >= 0 {
		h = h[:idx]
	}
	switch {
	case strings.Contains(h, "environment"), strings.Contains(h, "location"), strings.Contains(h, "setting"):
		return models.KindEnvironment
	case strings.Contains(h, "character"):
		return models.KindCharacter
	}
	return ""
}

func cleanName(s string) string {
	s = strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
	return strings.TrimSpace(strings.Trim(s, "*\"'`[]"))
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 80 {
		return string(r[:80]) + "..."
	}
	return s
}
