package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinsResolve(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	for _, id := range []string{Economist, PolicyBrief, FactExtractor} {
		p, err := r.Resolve(id, "")
		require.NoError(t, err, id)
		assert.NotEmpty(t, p.Role, id)
		assert.NotEmpty(t, p.StyleGuide, id)
	}
	p, err := r.Resolve("", "")
	require.NoError(t, err)
	assert.Equal(t, Default, p.ID)
	assert.Equal(t, []string{Custom, Economist, FactExtractor, PolicyBrief}, r.IDs())
}

func TestCustomPersona(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	p, err := r.Resolve(Custom, "  Write like a haiku.  ")
	require.NoError(t, err)
	assert.Equal(t, "Write like a haiku.", p.StyleGuide)
	assert.Equal(t, customRole, p.Role)

	_, err = r.Resolve(Custom, "   ")
	assert.Error(t, err)
	assert.True(t, r.Known(Custom))
}

func TestUnknownPersona(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	_, err = r.Resolve("poet", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available")
	assert.False(t, r.Known("poet"))
}

func TestLoadFileAndRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`personas:
  - id: journalist
    title: Data journalist
    role: You are a data journalist.
    style_guide: Lead with a striking number.
`), 0o644))
	extra, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, extra, 1)

	r, err := NewRegistry(extra...)
	require.NoError(t, err)
	p, err := r.Resolve("journalist", "")
	require.NoError(t, err)
	assert.Equal(t, "Lead with a striking number.", p.StyleGuide)
	assert.Len(t, r.List(), 5)
}

func TestRegistryRejectsShadowingAndInvalid(t *testing.T) {
	_, err := NewRegistry(Persona{ID: Economist, Title: "x", Role: "y"})
	assert.Error(t, err)
	_, err = NewRegistry(Persona{ID: Custom, Title: "x", Role: "y"})
	assert.Error(t, err)
	_, err = NewRegistry(Persona{ID: "no-role", Title: "x"})
	assert.Error(t, err)
	_, err = NewRegistry(Persona{ID: "has space", Title: "x", Role: "y"})
	assert.Error(t, err)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("personas: [unclosed"), 0o644))
	_, err = LoadFile(bad)
	assert.Error(t, err)
}
