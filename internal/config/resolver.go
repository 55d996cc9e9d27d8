package config

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/aretw0/preflight/internal/canon"
	"github.com/aretw0/preflight/pkg/domain"
)

// LegacyDefaultRegionKey is preferred as the default region when it is configured.
const LegacyDefaultRegionKey = "anhui_hefei_general"

// DefaultArtifactDir is relative to the config directory.
const DefaultArtifactDir = "build"

// Resolved is the configuration of a single run. It is resolved once and passed to every stage,
// so a run never observes a config file that changes underneath it.
type Resolved struct {
	Root         string // Directory holding the config file
	ConfigPath   string
	ConfigSHA256 string
	BaseDir      string // Directory rule paths resolve against (the active pack)
	Settings     Settings
	Raw          map[string]any
}

// Resolve reads the config at configPath and resolves the active pack's base directory.
func Resolve(configPath string) (*Resolved, error) {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, &domain.ConfigError{Path: configPath, Reason: err.Error()}
	}
	f, err := Read(abs)
	if err != nil {
		return nil, err
	}
	s, err := f.Settings()
	if err != nil {
		return nil, err
	}
	r := &Resolved{
		Root:         filepath.Dir(abs),
		ConfigPath:   abs,
		ConfigSHA256: canon.SumBytes(f.Bytes),
		Settings:     s,
		Raw:          f.Raw,
	}
	r.BaseDir = r.Root
	if p, ok := s.Packs[s.ActivePack]; ok {
		base := r.fromRoot(p.BaseDir)
		info, err := os.Stat(base)
		if err != nil || !info.IsDir() {
			return nil, &domain.ConfigError{Path: abs, Reason: "pack base_dir not found: pack=" + s.ActivePack + " base_dir=" + base}
		}
		r.BaseDir = base
	}
	return r, nil
}

func (r *Resolved) fromRoot(p string) string {
	if p == "" {
		return r.Root
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(r.Root, filepath.FromSlash(p))
}

// Path resolves a rule path against the active pack.
func (r *Resolved) Path(rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(r.BaseDir, filepath.FromSlash(rel))
}

// ProjectProfileRulePath is required; its absence is a configuration error.
func (r *Resolved) ProjectProfileRulePath() (string, error) {
	if r.Settings.ProjectProfileRules == "" {
		return "", &domain.ConfigError{Path: r.ConfigPath, Reason: "project_profile_rules not configured"}
	}
	return r.Path(r.Settings.ProjectProfileRules), nil
}

// PrecheckGuardRulePath is required; its absence is a configuration error.
func (r *Resolved) PrecheckGuardRulePath() (string, error) {
	if r.Settings.PrecheckGuardRules == "" {
		return "", &domain.ConfigError{Path: r.ConfigPath, Reason: "precheck_guard_rules not configured"}
	}
	return r.Path(r.Settings.PrecheckGuardRules), nil
}

// DomainMapPath returns "" when no domain map is configured.
func (r *Resolved) DomainMapPath() string {
	if r.Settings.DomainMap == "" {
		return ""
	}
	return r.Path(r.Settings.DomainMap)
}

// BasePackPaths returns the configured knowledge packs in declaration order.
func (r *Resolved) BasePackPaths() []string {
	out := make([]string, 0, len(r.Settings.BasePacks))
	for _, p := range r.Settings.BasePacks {
		out = append(out, r.Path(p))
	}
	return out
}

// RegionRulePath returns the rule file mapped to key.
func (r *Resolved) RegionRulePath(key string) (string, bool) {
	rel, ok := r.Settings.RegionUpgradeRules[key]
	if !ok || rel == "" {
		return "", false
	}
	return r.Path(rel), true
}

// RegionKeys returns the configured region keys in sorted order.
func (r *Resolved) RegionKeys() []string {
	keys := make([]string, 0, len(r.Settings.RegionUpgradeRules))
	for k := range r.Settings.RegionUpgradeRules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultRegion picks the explicit default, then the legacy default, then the first key.
func (r *Resolved) DefaultRegion() string {
	if k := r.Settings.DefaultRegionKey; k != "" {
		return k
	}
	keys := r.RegionKeys()
	for _, k := range keys {
		if k == LegacyDefaultRegionKey {
			return k
		}
	}
	if len(keys) > 0 {
		return keys[0]
	}
	return ""
}

// ArtifactDir is where stage artifacts are written.
func (r *Resolved) ArtifactDir() string {
	if r.Settings.ArtifactDir != "" {
		return r.fromRoot(r.Settings.ArtifactDir)
	}
	return filepath.Join(r.Root, DefaultArtifactDir)
}

// PacksDir is where pack snapshots live.
func (r *Resolved) PacksDir() string {
	return filepath.Join(r.Root, "packs")
}

// PackIdentity describes the active pack for stamping into artifacts.
func (r *Resolved) PackIdentity() domain.PackIdentity {
	id := domain.PackIdentity{
		ActivePack: r.Settings.ActivePack,
		BaseDir:    r.BaseDir,
	}
	manifest := filepath.Join(r.BaseDir, "manifest.json")
	if p, ok := r.Settings.Packs[r.Settings.ActivePack]; ok {
		id.PackVersion = p.PackVersion
		id.SchemaVersion = p.SchemaVersion
		id.CreatedAt = p.CreatedAt
		if p.Manifest != "" {
			manifest = r.fromRoot(p.Manifest)
		}
	}
	id.Manifest = manifest
	if sum, err := canon.SumFile(manifest); err == nil {
		id.ManifestExists = true
		id.ManifestSHA256 = sum
	}
	return id
}
