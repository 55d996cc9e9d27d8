package testutils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Fixture paths, relative to the project root.
const (
	ConfigFile       = "kg_config.json"
	ProfileRulesFile = "rules/project_profile_rules.json"
	GuardRulesFile   = "rules/precheck_guard_rules.json"
	RegionRulesFile  = "rules/region/anhui_hefei_general.json"
	DomainMapFile    = "kg/domain_map.json"
)

// PackFiles are the knowledge packs every fixture project declares, in config order.
var PackFiles = []string{
	"kg/Universal_Base_Pack.json",
	"kg/Risk_Specialist_Pack.json",
	"kg/Civil_Basic_Pack.json",
	"kg/Transport_Infra_Pack.json",
	"kg/Energy_Industrial_Pack.json",
	"kg/Special_Medical_Pack.json",
}

// Project is a temporary project directory with a complete, valid rule tree.
type Project struct {
	Root string
}

// SetupProject creates a temporary project with config, rules, domain map and packs.
// It fails the test immediately on error.
func SetupProject(t testing.TB) *Project {
	t.Helper()

	root, err := filepath.Abs(t.TempDir())
	require.NoError(t, err, "Failed to get absolute path for temp dir")
	p := &Project{Root: root}

	p.WriteJSON(t, ProfileRulesFile, map[string]any{
		"profile_rule_version": "2024.06",
		"confidence_thresholds": map[string]any{
			"auto_accept":            0.85,
			"require_manual_confirm": 0.70,
		},
		"project_type_inference": map[string]any{"base_confidence": 0.75},
		"mandatory_dimension_inference": map[string]any{
			"base_rules": []any{
				map[string]any{"if_project_type": "装饰装修", "mandatory_dimensions": []any{"工序工艺", "质量验收", "成品保护"}},
				map[string]any{"if_project_type": "市政道路", "mandatory_dimensions": []any{"交通导改"}},
			},
		},
		"technology_tolerance_inference": map[string]any{"default": "standard"},
		"logic_chain_policy":             map[string]any{"mode": "strict"},
	})
	p.WriteJSON(t, GuardRulesFile, map[string]any{"version": "1"})
	p.WriteJSON(t, RegionRulesFile, map[string]any{
		"name":            "合肥通用升级",
		"version":         "1.2",
		"upgrade_version": "2024",
		"upgrades":        map[string]any{"quality": "GB 50300"},
	})
	p.WriteJSON(t, DomainMapFile, map[string]any{
		"version": "1",
		"maps": []any{
			map[string]any{"cn_name": "装饰装修工程", "en_key": "decoration", "keywords": []any{"装修", "装饰", "精装"}, "desc": "室内外装饰装修"},
			map[string]any{"cn_name": "市政道路工程", "domain_key": "municipal_road", "keywords": "道路,沥青；路面", "desc": "市政道路新建与改造"},
			map[string]any{"cn_name": "机电安装工程", "keywords": []any{"机电", "暖通"}, "desc": "建筑机电"},
			map[string]any{"cn_name": "综合", "keywords": []any{"综合"}, "desc": "无法归类"},
		},
	})
	for _, f := range PackFiles {
		p.WriteJSON(t, f, map[string]any{"name": filepath.Base(f)})
	}
	p.WriteJSON(t, "kg/Civil_Basic_Pack.json", map[string]any{
		"name": "Civil_Basic_Pack",
		"work_items": []any{
			map[string]any{
				"id":   "W-001",
				"工序名称": "墙面抹灰",
				"操作步骤": "基层处理、挂网、分层抹灰",
				"质量控制": "平整度 ≤ 4mm",
				"风险点":  "空鼓开裂",
			},
		},
	})

	packs := make([]any, 0, len(PackFiles))
	for _, f := range PackFiles {
		packs = append(packs, f)
	}
	p.WriteJSON(t, ConfigFile, map[string]any{
		"project_profile_rules": ProfileRulesFile,
		"precheck_guard_rules":  GuardRulesFile,
		"domain_map":            DomainMapFile,
		"base_packs":            packs,
		"region_upgrade_rules":  map[string]any{"anhui_hefei_general": RegionRulesFile},
	})
	return p
}

// Path returns the absolute path of rel inside the project.
func (p *Project) Path(rel string) string {
	return filepath.Join(p.Root, filepath.FromSlash(rel))
}

// ConfigPath returns the absolute path of the config file.
func (p *Project) ConfigPath() string {
	return p.Path(ConfigFile)
}

// Write creates rel with the given content.
func (p *Project) Write(t testing.TB, rel, content string) {
	t.Helper()
	path := p.Path(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// WriteJSON creates rel with v encoded as indented JSON.
func (p *Project) WriteJSON(t testing.TB, rel string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	p.Write(t, rel, string(data))
}

// Read returns the content of rel.
func (p *Project) Read(t testing.TB, rel string) []byte {
	t.Helper()
	data, err := os.ReadFile(p.Path(rel))
	require.NoError(t, err)
	return data
}

// Remove deletes rel.
func (p *Project) Remove(t testing.TB, rel string) {
	t.Helper()
	require.NoError(t, os.Remove(p.Path(rel)))
}

// UpdateConfig applies fn to the decoded config and writes it back.
func (p *Project) UpdateConfig(t testing.TB, fn func(cfg map[string]any)) {
	t.Helper()
	var cfg map[string]any
	require.NoError(t, json.Unmarshal(p.Read(t, ConfigFile), &cfg))
	fn(cfg)
	p.WriteJSON(t, ConfigFile, cfg)
}
