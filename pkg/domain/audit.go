package domain

import "time"

// Audit check names.
const (
	AuditInputConsistency  = "input_sha256_consistency"
	AuditProfileRuleFile   = "project_profile_rule_file"
	AuditGuardRuleFile     = "precheck_guard_rule_file"
	AuditRegionRuleFile    = "region_upgrade_rule_file"
	AuditDomainMapFile     = "domain_map_rule_file"
	AuditBasePackFiles     = "base_pack_files"
	AuditSelectedPackFiles = "selected_pack_files"
)

// ArtifactSummary is the audit view of one stage artifact.
type ArtifactSummary struct {
	Path        string    `json:"path"`
	Exists      bool      `json:"exists"`
	RunID       string    `json:"run_id,omitempty"`
	InputSHA256 string    `json:"input_sha256,omitempty"`
	GeneratedAt time.Time `json:"generated_at,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// AuditCheck is the outcome of one named check.
// A stale check means the governing file changed since the artifact was written.
type AuditCheck struct {
	Check   string         `json:"check"`
	OK      bool           `json:"ok"`
	Stale   bool           `json:"stale"`
	Details map[string]any `json:"details,omitempty"`
}

// Replay summarizes whether the last run can be reproduced from what is on disk.
type Replay struct {
	Replayable bool     `json:"replayable"`
	Missing    []string `json:"missing"`
	Stale      []string `json:"stale"`
}

// AuditReport is recomputed from disk on every request; it is never stored.
type AuditReport struct {
	GeneratedAt time.Time                  `json:"generated_at"`
	ArtifactDir string                     `json:"artifact_dir"`
	Artifacts   map[string]ArtifactSummary `json:"artifacts"`
	Checks      []AuditCheck               `json:"checks"`
	Replay      Replay                     `json:"replay"`
}

// Check returns the named check, if present.
func (r *AuditReport) Check(name string) (AuditCheck, bool) {
	for _, c := range r.Checks {
		if c.Check == name {
			return c, true
		}
	}
	return AuditCheck{}, false
}

// PackStatus compares the active pack with the one stamped in the last run.
type PackStatus struct {
	Current  PackIdentity  `json:"current"`
	LastUsed *PackIdentity `json:"last_used,omitempty"`
	Stale    bool          `json:"stale"`
	Errors   []string      `json:"errors,omitempty"`
}
