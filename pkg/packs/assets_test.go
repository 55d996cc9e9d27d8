package packs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksLikePath(t *testing.T) {
	for s, want := range map[string]bool{
		"rules/a.json":          true,
		`rules\a.json`:          true,
		"domain_map.yaml":       true,
		"README.md":             true,
		"https://example.com/x": false,
		"anhui_hefei_general":   false,
		"build":                 false,
		"  ":                    false,
	} {
		assert.Equal(t, want, LooksLikePath(s), s)
	}
}

func TestReferencedPaths(t *testing.T) {
	base := t.TempDir()
	raw := map[string]any{
		"project_profile_rules": "rules/profile.json",
		"base_packs":            []any{"kg/a.json", "kg/a.json", "./kg/b.json"},
		"region_upgrade_rules":  map[string]any{"hf": "rules/region/hf.json"},
		"domain_map":            filepath.Join(base, "kg", "map.json"),
		"outside":               filepath.Join(filepath.Dir(base), "elsewhere.json"),
		"escape":                "../secrets.json",
		"artifact_dir":          "build",
		"packs":                 map[string]any{"v1": map[string]any{"manifest": "packs/v1/manifest.json"}},
		"active_pack_history":   []any{map[string]any{"to": "x.json"}},
	}
	assert.Equal(t, []string{
		"kg/a.json",
		"kg/b.json",
		"kg/map.json",
		"rules/profile.json",
		"rules/region/hf.json",
	}, ReferencedPaths(raw, base))
}

func TestLocalPath(t *testing.T) {
	assert.True(t, localPath("kg/a.json"))
	assert.False(t, localPath("../a.json"))
	assert.False(t, localPath("kg/../../a.json"))
	assert.False(t, localPath("/etc/passwd"))
	assert.False(t, localPath(""))
}
