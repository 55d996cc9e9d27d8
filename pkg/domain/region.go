package domain

import "time"

// RegionUpgrade is the artifact of the region resolution stage.
// It never carries a hard failure: anything that goes wrong is listed in Errors with Applied=false.
type RegionUpgrade struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	InputSHA256 string    `json:"input_sha256"`

	Applied      bool           `json:"applied"`
	RegionKey    string         `json:"region_key,omitempty"`
	RegionSource string         `json:"region_source,omitempty"` // "payload.<field>", "profile.<path>" or "default"
	RulePath     string         `json:"rule_path,omitempty"`
	RuleSHA256   string         `json:"rule_sha256,omitempty"`
	TopLevelKeys []string       `json:"top_level_keys,omitempty"`
	RuleMeta     map[string]any `json:"rule_meta,omitempty"`

	ProjectProfileDecision Decision `json:"project_profile_decision"`
	Errors                 []string `json:"errors,omitempty"`
}

// MaxTopLevelKeys bounds the key summary recorded for a region rule.
const MaxTopLevelKeys = 50

// RegionMetaKeys are copied from a region rule into RuleMeta when present.
var RegionMetaKeys = []string{"name", "version", "rule_version", "upgrade_version", "id"}
