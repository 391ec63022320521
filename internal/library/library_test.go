package library

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/SceneForge/internal/errors"
	"github.com/Corphon/SceneForge/internal/models"
	"github.com/Corphon/SceneForge/internal/storage"
)

type failingBackend struct {
	*storage.MemoryStorage
}

func (f failingBackend) SaveCollection(string, any) error {
	return errors.New("disk full")
}

func TestSaveAssignsIDAndCreatedAt(t *testing.T) {
	lib := New[*models.Character](storage.NewMemoryStorage(), "characters")

	saved := lib.Save(&models.Character{Name: "Mira", Look: "red scarf"})
	require.NotEmpty(t, saved.ID)
	require.False(t, saved.CreatedAt.IsZero())

	got, ok := lib.Get(saved.ID)
	require.True(t, ok)
	assert.Equal(t, "red scarf", got.Look)
}

func TestSaveIfAbsentByName(t *testing.T) {
	lib := New[*models.Character](storage.NewMemoryStorage(), "characters")

	first, created := lib.SaveIfAbsentByName(&models.Character{Name: "Mira", Look: "red scarf"})
	require.True(t, created)
	require.NotEmpty(t, first.ID)

	second, created := lib.SaveIfAbsentByName(&models.Character{Name: "  MIRA ", Look: "blue coat"})
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "red scarf", second.Look)
	assert.Equal(t, 1, lib.Len())

	found, ok := lib.FindByName("mira")
	require.True(t, ok)
	assert.Equal(t, first.ID, found.ID)
	_, ok = lib.FindByName("otto")
	assert.False(t, ok)
}

func TestSaveUpsertKeepsCreatedAt(t *testing.T) {
	lib := New[*models.Character](storage.NewMemoryStorage(), "characters")
	original := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	first := lib.Save(&models.Character{Name: "Mira", CreatedAt: original})
	lib.Save(&models.Character{ID: first.ID, Name: "Mira", Look: "new coat"})

	require.Equal(t, 1, lib.Len())
	got, _ := lib.Get(first.ID)
	assert.Equal(t, "new coat", got.Look)
	assert.True(t, got.CreatedAt.Equal(original))
}

func TestListKeepsInsertionOrder(t *testing.T) {
	lib := New[*models.Environment](storage.NewMemoryStorage(), "environments")
	for _, name := range []string{"Cafe", "Alley", "Bridge"} {
		lib.Save(&models.Environment{Name: name})
	}

	list := lib.List()
	require.Len(t, list, 3)
	assert.Equal(t, "Cafe", list[0].Name)
	assert.Equal(t, "Bridge", list[2].Name)

	// the returned slice is a copy
	list[0] = nil
	assert.NotNil(t, lib.List()[0])
}

func TestRemove(t *testing.T) {
	lib := New[*models.StyleAnchor](storage.NewMemoryStorage(), "styles")
	a := lib.Save(&models.StyleAnchor{Name: "Noir"})
	lib.Save(&models.StyleAnchor{Name: "Pastel"})

	lib.Remove("missing")
	require.Equal(t, 2, lib.Len())

	lib.Remove(a.ID)
	require.Equal(t, 1, lib.Len())
	_, ok := lib.Get(a.ID)
	assert.False(t, ok)
}

func TestAvailableToAddIsCaseInsensitiveAndIdempotent(t *testing.T) {
	lib := New[*models.Character](storage.NewMemoryStorage(), "characters")
	lib.Save(&models.Character{Name: "Mira"})
	lib.Save(&models.Character{Name: "Otto"})
	lib.Save(&models.Character{Name: "June"})

	active := []*models.Character{{Name: "  mira "}, {Name: "JUNE"}, nil}

	first := lib.AvailableToAdd(active)
	second := lib.AvailableToAdd(active)

	require.Len(t, first, 1)
	assert.Equal(t, "Otto", first[0].Name)
	assert.Equal(t, first, second)
	assert.Len(t, lib.AvailableToAdd(nil), 3)
}

func TestPersistsAcrossReload(t *testing.T) {
	backend := storage.NewMemoryStorage()
	lib := New[*models.BrandAnchor](backend, "brands")
	saved := lib.Save(&models.BrandAnchor{Name: "Acme", Tokens: []string{"red"}})

	reloaded := New[*models.BrandAnchor](backend, "brands")
	got, ok := reloaded.Get(saved.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"red"}, got.Tokens)
}

func TestPersistenceFailureIsLoggedNotReturned(t *testing.T) {
	lib := New[*models.Character](failingBackend{storage.NewMemoryStorage()}, "characters")

	saved := lib.Save(&models.Character{Name: "Mira"})
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, 1, lib.Len())
	require.Error(t, lib.LastError())
}

func TestLibrariesDispatchByKind(t *testing.T) {
	libs := Open(storage.NewMemoryStorage())

	anchor, err := Decode(models.KindEnvironment, []byte(`{"name":"Dock","setting":"harbour at night"}`))
	require.NoError(t, err)
	saved := libs.Save(anchor)
	require.NotEmpty(t, saved.GetID())

	env, ok := libs.Environment(saved.GetID())
	require.True(t, ok)
	assert.Equal(t, "harbour at night", env.Setting)

	assert.Len(t, libs.List(models.KindEnvironment), 1)
	assert.Empty(t, libs.Available(models.KindEnvironment, []string{"DOCK"}))

	libs.Remove(models.KindEnvironment, saved.GetID())
	assert.Empty(t, libs.List(models.KindEnvironment))
}

func TestDecodeRejectsNamelessAnchor(t *testing.T) {
	_, err := Decode(models.KindCharacter, []byte(`{"look":"tall"}`))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))

	_, err = Decode("vehicles", []byte(`{"name":"x"}`))
	assert.Error(t, err)
}

func TestResolveCharactersSkipsUnknownIDs(t *testing.T) {
	libs := Open(storage.NewMemoryStorage())
	a := libs.Characters.Save(&models.Character{Name: "A"})
	b := libs.Characters.Save(&models.Character{Name: "B"})

	got := libs.ResolveCharacters([]string{b.ID, "nope", a.ID})
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].Name)
	assert.Equal(t, "A", got[1].Name)
}
