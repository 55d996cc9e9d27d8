// Package config reads the pipeline configuration file and resolves rule paths against the active pack.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/preflight/internal/rules"
	"github.com/aretw0/preflight/pkg/domain"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the project directory when no config path is given.
const DefaultFileName = "kg_config.json"

// candidates are tried in order by Locate.
var candidates = []string{DefaultFileName, "kg_config.yaml", "kg_config.yml"}

// Reserved keys managed by the pack manager rather than by hand.
const (
	KeyPacks       = "packs"
	KeyActivePack  = "active_pack"
	KeyPrevPack    = "_active_pack_prev"
	KeyPackHistory = "active_pack_history"
)

// Settings is the typed view of the configuration file.
type Settings struct {
	ProjectProfileRules string                 `mapstructure:"project_profile_rules"`
	PrecheckGuardRules  string                 `mapstructure:"precheck_guard_rules"`
	DomainMap           string                 `mapstructure:"domain_map"`
	BasePacks           []string               `mapstructure:"base_packs"`
	RegionUpgradeRules  map[string]string      `mapstructure:"region_upgrade_rules"`
	DefaultRegionKey    string                 `mapstructure:"default_region_key"`
	ArtifactDir         string                 `mapstructure:"artifact_dir"`
	ActivePack          string                 `mapstructure:"active_pack"`
	PreviousPack        string                 `mapstructure:"_active_pack_prev"`
	History             []domain.HistoryEntry  `mapstructure:"active_pack_history"`
	Packs               map[string]domain.Pack `mapstructure:"packs"`
}

// File is the raw configuration as read from disk.
type File struct {
	Path  string
	Bytes []byte
	Raw   map[string]any
}

// Locate returns the config file of the project in dir. An explicit name is
// resolved against dir unless absolute. Otherwise the first existing candidate
// wins, falling back to DefaultFileName.
func Locate(dir, name string) string {
	if name != "" {
		if filepath.IsAbs(name) {
			return name
		}
		return filepath.Join(dir, name)
	}
	for _, c := range candidates {
		p := filepath.Join(dir, c)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(dir, DefaultFileName)
}

// Read loads the configuration file at path.
// A missing or unparsable file is a *domain.ConfigError.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.ConfigError{Path: path, Reason: "config not found"}
		}
		return nil, &domain.ConfigError{Path: path, Reason: err.Error()}
	}
	raw := map[string]any{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := rules.Unmarshal(path, data, &raw); err != nil {
			return nil, &domain.ConfigError{Path: path, Reason: err.Error()}
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return &File{Path: path, Bytes: data, Raw: raw}, nil
}

// Settings decodes the raw configuration and validates pack registrations.
func (f *File) Settings() (Settings, error) {
	var s Settings
	if err := rules.DecodeMap(f.Raw, &s); err != nil {
		return s, &domain.ConfigError{Path: f.Path, Reason: err.Error()}
	}
	for id, p := range s.Packs {
		p.ID = id
		if err := Validate(p); err != nil {
			return s, &domain.ConfigError{Path: f.Path, Reason: fmt.Sprintf("pack %q: %v", id, err)}
		}
		s.Packs[id] = p
	}
	if s.ActivePack == "" {
		s.ActivePack = domain.DefaultPackID
	}
	return s, nil
}

// Encode serializes raw in the format implied by path's extension.
func Encode(path string, raw map[string]any) ([]byte, error) {
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(raw); err != nil {
			return nil, fmt.Errorf("failed to encode config: %w", err)
		}
		return buf.Bytes(), nil
	}
	out, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return out, nil
}
