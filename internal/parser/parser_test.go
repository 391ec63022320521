package parser

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/SceneForge/internal/models"
)

const sampleTemplate = `# Template: The Wrong Order

A short comedy about a busy morning.

## Characters

**Name**: Mira
**Look**: Green apron, messy bun,
flour on one cheek
**Demeanor**: Tired but polite
**Role**: Barista

**Name**: Otto
**Look:** Grey suit
**Role:** Regular customer in a hurry

### Environment: Corner Cafe
**Setting**: Narrow cafe with a chalkboard menu
**Lighting**: Warm morning sun
**Audio**: Espresso machine hiss
**Props**: Paper cups, tip jar

## Scenes
1. Otto orders a flat white.
`

func TestParseCharacterFieldsTrimmed(t *testing.T) {
	got := ParseCharacterFields("**Look**: A\n**Demeanor**: B\n**Role**: C")
	assert.Equal(t, CharacterFields{Look: "A", Demeanor: "B", Role: "C"}, got)

	got = ParseCharacterFields("**Look**:   A  \n\n**Demeanor**:\tB\n**Role**: C   ")
	assert.Equal(t, CharacterFields{Look: "A", Demeanor: "B", Role: "C"}, got)
}

func TestParseSectionsMultilineValue(t *testing.T) {
	sections := ParseSections("**Setting**: a dock\nat night\n**Lighting**: sodium lamps")
	require.Len(t, sections, 2)
	assert.Equal(t, Section{Label: "setting", Value: "a dock\nat night"}, sections[0])
	assert.Equal(t, "lighting", sections[1].Label)
}

func TestParseSectionsStopsAtBoldHeading(t *testing.T) {
	sections := ParseSections("**Role**: villain\n**Scene 2**\nsomething unrelated")
	require.Len(t, sections, 1)
	assert.Equal(t, "villain", sections[0].Value)
}

func TestParseEnvironmentFields(t *testing.T) {
	got := ParseEnvironmentFields("- **Setting:** Rooftop\n- **Audio:** Wind\n- **Props:** Chairs")
	assert.Equal(t, EnvironmentFields{Setting: "Rooftop", Audio: "Wind", Props: "Chairs"}, got)
}

func TestParseBlockWithoutNameIsDiscarded(t *testing.T) {
	_, ok := ParseBlock("**Look**: A\n**Demeanor**: B\n**Role**: C")
	assert.False(t, ok)

	_, ok = ParseBlock("**Name**:   \n**Look**: A")
	assert.False(t, ok)

	_, ok = ParseBlock("Just some prose without labels.")
	assert.False(t, ok)
}

func TestExtractWithoutNameYieldsNothing(t *testing.T) {
	ex := Extract("**Look**: A\n**Demeanor**: B\n**Role**: C")
	assert.Equal(t, 0, ex.Count())
	assert.Equal(t, 1, ex.Skipped)
}

func TestTemplateTitleIsNotAnAnchorName(t *testing.T) {
	ex := Extract("**Title**: The Wrong Order\n**Setting**: A cramped coffee shop\n**Tone**: comedic")
	assert.Equal(t, 0, ex.Count())
	assert.Equal(t, 1, ex.Skipped)

	ex = Extract("# Template: The Wrong Order\n**Setting**: A cramped coffee shop\n**Tone**: comedic")
	assert.Equal(t, 0, ex.Count())
	assert.Equal(t, 1, ex.Skipped)
}

func TestPreviewKeepsRunesWhole(t *testing.T) {
	long := strings.Repeat("咖啡馆", 40)
	p := preview(long)
	assert.True(t, utf8.ValidString(p))
	assert.Equal(t, string([]rune(long)[:80])+"...", p)
	assert.Equal(t, "短文本", preview("  短文本 "))
}

func TestParseBlockHeadingSuppliesName(t *testing.T) {
	c, ok := ParseBlock("### Character: Mira\n**Look**: red scarf")
	require.True(t, ok)
	assert.Equal(t, "Mira", c.Name)
	assert.Equal(t, models.KindCharacter, c.Kind)
	assert.Equal(t, "red scarf", c.Character.Look)
}

func TestSplitBlocks(t *testing.T) {
	blocks := SplitBlocks("**Name**: A\n**Look**: x\n**Name**: B\n**Look**: y")
	require.Len(t, blocks, 2)
	assert.Contains(t, blocks[1], "**Name**: B")

	// a heading followed by its name stays in one block
	blocks = SplitBlocks("## Cast\n**Name**: A\n**Look**: x")
	assert.Len(t, blocks, 1)
}

func TestExtractMultipleBlocks(t *testing.T) {
	ex := Extract(sampleTemplate)

	require.Len(t, ex.Characters, 2)
	assert.Equal(t, "Mira", ex.Characters[0].Name)
	assert.Equal(t, "Green apron, messy bun,\nflour on one cheek", ex.Characters[0].Look)
	assert.Equal(t, "Barista", ex.Characters[0].Role)
	assert.Equal(t, "Otto", ex.Characters[1].Name)
	assert.Equal(t, "Grey suit", ex.Characters[1].Look)

	require.Len(t, ex.Environments, 1)
	env := ex.Environments[0]
	assert.Equal(t, "Corner Cafe", env.Name)
	assert.Equal(t, "Warm morning sun", env.Lighting)
	assert.Equal(t, "Paper cups, tip jar", env.Props)
	assert.NotEmpty(t, env.SourceTemplate)

	assert.Equal(t, 0, ex.Skipped)
}

func TestExtractIsPure(t *testing.T) {
	first := Extract(sampleTemplate)
	second := Extract(sampleTemplate)
	assert.Equal(t, first, second)
	assert.Empty(t, first.Characters[0].ID)
}

func TestExtractEmptyText(t *testing.T) {
	ex := Extract("")
	assert.Equal(t, 0, ex.Count())
	assert.Equal(t, 0, ex.Skipped)
}
