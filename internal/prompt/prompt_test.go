package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilderValidatesBuiltins(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Validate())
}

func TestSupportedIsCaseInsensitive(t *testing.T) {
	b := NewBuilder()
	require.True(t, b.Supported("cursor"))
	require.True(t, b.Supported(" Cursor "))
	require.True(t, b.Supported("V0"))
	require.False(t, b.Supported("emacs"))
	require.False(t, b.Supported(""))
}

func TestBuildIncludesPlatformSpecifics(t *testing.T) {
	b := NewBuilder()
	for _, p := range SupportedPlatforms() {
		system := b.Build(p)
		require.NotEmpty(t, system, "platform %s", p)
		require.Contains(t, system, "blueprint", "platform %s should carry the generic preamble", p)

		tpl, ok := b.Template(p)
		require.True(t, ok)
		require.Contains(t, system, tpl.SystemPrompt)
		require.Contains(t, system, tpl.TechStack[0])
	}
}

func TestBuildDiffersAcrossPlatforms(t *testing.T) {
	b := NewBuilder()
	require.NotEqual(t, b.Build(PlatformReplit), b.Build(PlatformCursor))
}

func TestLoadOverridesMergesPartialEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	content := `
cursor:
  system_prompt: "Custom cursor instructions."
bolt:
  display_name: "Bolt.new"
  tech_stack: ["Astro", "Node.js"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	b := NewBuilder()
	require.NoError(t, b.LoadOverrides(path))

	require.Contains(t, b.Build(PlatformCursor), "Custom cursor instructions.")

	tpl, ok := b.Template(PlatformBolt)
	require.True(t, ok)
	require.Equal(t, "Bolt.new", tpl.DisplayName)
	require.Equal(t, []string{"Astro", "Node.js"}, tpl.TechStack)
	// Untouched fields keep their built-in values.
	require.NotEmpty(t, tpl.SystemPrompt)
}

func TestLoadOverridesRejectsUnknownPlatform(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("emacs:\n  system_prompt: \"x\"\n"), 0o644))

	b := NewBuilder()
	err := b.LoadOverrides(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "emacs")
}

func TestNamesSorted(t *testing.T) {
	names := Names()
	require.Len(t, names, 6)
	require.True(t, sortedStrings(names))
	require.Contains(t, names, "windsurf")
}

func sortedStrings(ss []string) bool {
	for i := 1; i < len(ss); i++ {
		if strings.Compare(ss[i-1], ss[i]) > 0 {
			return false
		}
	}
	return true
}
