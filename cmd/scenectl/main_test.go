package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cafeTemplate = `# Template

**Name**: Mira
**Look**: Green apron
**Role**: Barista

### Environment: Corner Cafe
**Setting**: Narrow cafe with a chalkboard menu
**Lighting**: Warm morning sun
`

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func cliEnv(t *testing.T) string {
	t.Helper()
	t.Setenv("LLM_PROVIDER", "offline")
	t.Setenv("CONFIG_SECRET", "test")
	t.Setenv("STORE_BACKEND", "file")
	return t.TempDir()
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

var savedID = regexp.MustCompile(`\(([0-9a-f-]{36})\)`)

func TestLibraryAddListRemove(t *testing.T) {
	dir := cliEnv(t)

	out, err := run(t, "--data-dir", dir, "library", "add-character", "--name", "Mira", "--look", "green apron")
	require.NoError(t, err, out)
	m := savedID.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	id := m[1]

	out, err = run(t, "--data-dir", dir, "library", "list", "characters")
	require.NoError(t, err)
	assert.Contains(t, out, "Mira")
	assert.Contains(t, out, "green apron")

	_, err = run(t, "--data-dir", dir, "library", "remove", "character", "missing")
	assert.ErrorContains(t, err, "not found")

	out, err = run(t, "--data-dir", dir, "library", "remove", "character", id)
	require.NoError(t, err)
	assert.Contains(t, out, "removed")

	out, err = run(t, "--data-dir", dir, "library", "list", "characters")
	require.NoError(t, err)
	assert.Contains(t, out, "(empty)")
}

func TestLibraryRejectsUnknownKind(t *testing.T) {
	dir := cliEnv(t)
	_, err := run(t, "--data-dir", dir, "library", "list", "villains")
	assert.ErrorContains(t, err, "unknown anchor kind")

	_, err = run(t, "--data-dir", dir, "library", "add-character")
	assert.Error(t, err)
}

func TestParseSavesNewAnchorsOnce(t *testing.T) {
	dir := cliEnv(t)
	file := filepath.Join(dir, "template.md")
	require.NoError(t, os.WriteFile(file, []byte(cafeTemplate), 0644))

	out, err := run(t, "--data-dir", dir, "parse", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Mira")
	assert.Contains(t, out, "Corner Cafe")
	assert.NotContains(t, out, "saved")

	out, err = run(t, "--data-dir", dir, "parse", file, "--save")
	require.NoError(t, err)
	assert.Contains(t, out, "saved 2 anchor(s), 0 already in library")

	out, err = run(t, "--data-dir", dir, "parse", file, "--save")
	require.NoError(t, err)
	assert.Contains(t, out, "saved 0 anchor(s), 2 already in library")

	out, err = run(t, "--data-dir", dir, "library", "list", "environments")
	require.NoError(t, err)
	assert.Contains(t, out, "Warm morning sun")
}

func TestParseMissingFile(t *testing.T) {
	dir := cliEnv(t)
	_, err := run(t, "--data-dir", dir, "parse", filepath.Join(dir, "nope.md"))
	assert.Error(t, err)
}

func TestGenerateOffline(t *testing.T) {
	dir := cliEnv(t)

	out, err := run(t, "--data-dir", dir, "--store", "memory", "generate",
		"--concept", "A barista pulls the perfect shot",
		"--scene", "Steam curls over the cup")
	require.NoError(t, err, out)

	for _, want := range []string{"setup", "template", "approve", "scene", "A barista pulls the perfect shot", "stage scenes"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, out, "saved 1 character(s)")
}

func TestGenerateRequiresConcept(t *testing.T) {
	dir := cliEnv(t)
	_, err := run(t, "--data-dir", dir, "generate", "--concept", "  ")
	assert.ErrorContains(t, err, "concept")
}
