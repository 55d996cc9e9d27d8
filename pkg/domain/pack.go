package domain

import "time"

// ManifestSchemaVersion is written into every manifest this module creates.
const ManifestSchemaVersion = 1

// MaxHistory bounds the activation ledger.
const MaxHistory = 20

// DefaultPackID names the implicit pack rooted at the config directory.
const DefaultPackID = "default"

// ManifestFile is one entry of a pack manifest.
type ManifestFile struct {
	Path   string `json:"path"` // Relative to the pack directory, slash separated
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Manifest lists every file of a pack with its size and hash.
type Manifest struct {
	SchemaVersion int            `json:"schema_version"`
	CreatedAt     time.Time      `json:"created_at"`
	PackID        string         `json:"pack_id"`
	PackVersion   string         `json:"pack_version,omitempty"`
	Description   string         `json:"description,omitempty"`
	SourcePack    string         `json:"source_pack,omitempty"`
	FileCount     int            `json:"file_count"`
	TotalBytes    int64          `json:"total_bytes"`
	Files         []ManifestFile `json:"files"`
}

// Pack is a registered pack as recorded in the config's "packs" table.
type Pack struct {
	ID            string `json:"pack_id" mapstructure:"-" validate:"packid"`
	BaseDir       string `json:"base_dir" mapstructure:"base_dir" validate:"required"`
	PackVersion   string `json:"pack_version,omitempty" mapstructure:"pack_version"`
	SchemaVersion int    `json:"schema_version,omitempty" mapstructure:"schema_version" validate:"gte=0"`
	CreatedAt     string `json:"created_at,omitempty" mapstructure:"created_at"`
	Manifest      string `json:"manifest,omitempty" mapstructure:"manifest"`
	Description   string `json:"description,omitempty" mapstructure:"description"`
	Active        bool   `json:"active" mapstructure:"-"`
}

// PackIdentity pins which pack produced an artifact.
type PackIdentity struct {
	ActivePack     string `json:"active_pack"`
	PackVersion    string `json:"pack_version,omitempty"`
	BaseDir        string `json:"base_dir"`
	Manifest       string `json:"manifest,omitempty"`
	ManifestExists bool   `json:"manifest_exists"`
	ManifestSHA256 string `json:"manifest_sha256,omitempty"`
	SchemaVersion  int    `json:"schema_version,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// HistoryEntry records one activation.
type HistoryEntry struct {
	From string `json:"from" mapstructure:"from"`
	To   string `json:"to" mapstructure:"to"`
	At   string `json:"at" mapstructure:"at"`
}

// ValidationReport is the outcome of validating a pack.
type ValidationReport struct {
	PackID          string   `json:"pack_id"`
	BaseDir         string   `json:"base_dir"`
	ManifestChecked bool     `json:"manifest_checked"`
	OK              bool     `json:"ok"`
	FilesChecked    int      `json:"files_checked"`
	Problems        []string `json:"problems,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
}

// MetricChange is one differing metric between two evaluations.
type MetricChange struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// EvalReport compares a baseline pack with a candidate.
type EvalReport struct {
	GeneratedAt time.Time               `json:"generated_at"`
	Baseline    string                  `json:"baseline"`
	Candidate   string                  `json:"candidate"`
	Kept        bool                    `json:"kept"`
	Before      map[string]any          `json:"before"`
	After       map[string]any          `json:"after"`
	Diff        map[string]MetricChange `json:"diff"`
}
