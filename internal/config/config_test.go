package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/preflight/internal/config"
	"github.com/aretw0/preflight/internal/testutils"
	"github.com/aretw0/preflight/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Defaults(t *testing.T) {
	p := testutils.SetupProject(t)

	cfg, err := config.Resolve(p.ConfigPath())
	require.NoError(t, err)

	assert.Equal(t, p.Root, cfg.Root)
	assert.Equal(t, p.Root, cfg.BaseDir, "the default pack is rooted at the config directory")
	assert.Equal(t, domain.DefaultPackID, cfg.Settings.ActivePack)
	assert.Equal(t, filepath.Join(p.Root, "build"), cfg.ArtifactDir())

	path, err := cfg.ProjectProfileRulePath()
	require.NoError(t, err)
	assert.Equal(t, p.Path(testutils.ProfileRulesFile), path)

	assert.Equal(t, "anhui_hefei_general", cfg.DefaultRegion())
	assert.Len(t, cfg.BasePackPaths(), len(testutils.PackFiles))

	id := cfg.PackIdentity()
	assert.False(t, id.ManifestExists)
	assert.Equal(t, filepath.Join(p.Root, "manifest.json"), id.Manifest)
}

func TestResolve_MissingRequiredPaths(t *testing.T) {
	p := testutils.SetupProject(t)
	p.UpdateConfig(t, func(cfg map[string]any) {
		delete(cfg, "project_profile_rules")
		delete(cfg, "precheck_guard_rules")
		delete(cfg, "domain_map")
	})

	cfg, err := config.Resolve(p.ConfigPath())
	require.NoError(t, err)

	_, err = cfg.ProjectProfileRulePath()
	assert.ErrorIs(t, err, domain.ErrConfig)
	_, err = cfg.PrecheckGuardRulePath()
	assert.ErrorIs(t, err, domain.ErrConfig)
	assert.Empty(t, cfg.DomainMapPath(), "the domain map is optional")
}

func TestResolve_MissingConfig(t *testing.T) {
	_, err := config.Resolve(filepath.Join(t.TempDir(), "kg_config.json"))
	var cerr *domain.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Reason, "not found")
}

func TestResolve_ActivePackBaseDir(t *testing.T) {
	p := testutils.SetupProject(t)
	p.WriteJSON(t, "packs/v2/manifest.json", map[string]any{"schema_version": 1})
	p.UpdateConfig(t, func(cfg map[string]any) {
		cfg["active_pack"] = "v2"
		cfg["packs"] = map[string]any{
			"v2": map[string]any{"base_dir": "packs/v2", "pack_version": "2.0", "schema_version": 1},
		}
	})

	cfg, err := config.Resolve(p.ConfigPath())
	require.NoError(t, err)
	assert.Equal(t, p.Path("packs/v2"), cfg.BaseDir)
	assert.Equal(t, p.Path("packs/v2/rules/precheck_guard_rules.json"), cfg.Path(testutils.GuardRulesFile))

	id := cfg.PackIdentity()
	assert.Equal(t, "v2", id.ActivePack)
	assert.Equal(t, "2.0", id.PackVersion)
	assert.True(t, id.ManifestExists)
	assert.Len(t, id.ManifestSHA256, 64)
}

func TestResolve_ActivePackMissingDir(t *testing.T) {
	p := testutils.SetupProject(t)
	p.UpdateConfig(t, func(cfg map[string]any) {
		cfg["active_pack"] = "ghost"
		cfg["packs"] = map[string]any{"ghost": map[string]any{"base_dir": "packs/ghost"}}
	})

	_, err := config.Resolve(p.ConfigPath())
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestResolve_InvalidPackRegistration(t *testing.T) {
	p := testutils.SetupProject(t)
	p.UpdateConfig(t, func(cfg map[string]any) {
		cfg["packs"] = map[string]any{"broken": map[string]any{"pack_version": "1"}}
	})

	_, err := config.Resolve(p.ConfigPath())
	assert.ErrorIs(t, err, domain.ErrConfig, "base_dir is required")
}

func TestResolve_YAML(t *testing.T) {
	p := testutils.SetupProject(t)
	yamlCfg := `
project_profile_rules: rules/project_profile_rules.json
precheck_guard_rules: rules/precheck_guard_rules.json
region_upgrade_rules:
  zz_last: rules/region/anhui_hefei_general.json
  aa_first: rules/region/anhui_hefei_general.json
artifact_dir: out
`
	p.Write(t, "kg_config.yaml", yamlCfg)

	cfg, err := config.Resolve(p.Path("kg_config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"aa_first", "zz_last"}, cfg.RegionKeys())
	assert.Equal(t, "aa_first", cfg.DefaultRegion(), "first sorted key without a legacy default")
	assert.Equal(t, p.Path("out"), cfg.ArtifactDir())
}

func TestDefaultRegion_Explicit(t *testing.T) {
	p := testutils.SetupProject(t)
	p.UpdateConfig(t, func(cfg map[string]any) {
		cfg["default_region_key"] = "custom"
	})
	cfg, err := config.Resolve(p.ConfigPath())
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.DefaultRegion())

	_, ok := cfg.RegionRulePath("custom")
	assert.False(t, ok)
}

func TestEncode(t *testing.T) {
	raw := map[string]any{"b": "<装饰>", "a": 1}

	out, err := config.Encode("kg_config.json", raw)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1,\n  \"b\": \"<装饰>\"\n}\n", string(out))

	out, err = config.Encode("kg_config.yaml", raw)
	require.NoError(t, err)
	assert.Contains(t, string(out), "a: 1")

	path := filepath.Join(t.TempDir(), "kg_config.yaml")
	require.NoError(t, os.WriteFile(path, out, 0644))
	f, err := config.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "<装饰>", f.Raw["b"])
}

func TestValidPackID(t *testing.T) {
	assert.True(t, config.ValidPackID("v2.0_rc-1"))
	assert.False(t, config.ValidPackID(""))
	assert.False(t, config.ValidPackID(".hidden"))
	assert.False(t, config.ValidPackID("../escape"))
	assert.False(t, config.ValidPackID("a/b"))
}

func TestLocate(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, config.DefaultFileName), config.Locate(dir, ""))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "kg_config.yml"), []byte("{}"), 0644))
	assert.Equal(t, filepath.Join(dir, "kg_config.yml"), config.Locate(dir, ""))

	assert.Equal(t, filepath.Join(dir, "custom.json"), config.Locate(dir, "custom.json"))
	abs := filepath.Join(t.TempDir(), "other.json")
	assert.Equal(t, abs, config.Locate(dir, abs))
}
