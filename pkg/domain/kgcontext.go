package domain

import "time"

// ResolutionMethod records how a domain key was found.
type ResolutionMethod string

const (
	MethodDomainMap         ResolutionMethod = "domain_map"          // Best entry carried an explicit key
	MethodDomainMapFallback ResolutionMethod = "domain_map+fallback" // Best entry matched a hint pattern
	MethodDomainMapUnkeyed  ResolutionMethod = "domain_map_unkeyed"  // Best entry found, no key derivable
	MethodFallback          ResolutionMethod = "fallback"            // No entry scored; hint pattern on type/topic
	MethodNone              ResolutionMethod = "none"
)

// FileRef describes a referenced file at the time an artifact was written.
type FileRef struct {
	Path      string `json:"path"`
	Name      string `json:"name,omitempty"`
	Exists    bool   `json:"exists"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	SHA256    string `json:"sha256,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DomainResolution is the outcome of matching a request against the domain map.
type DomainResolution struct {
	DomainKey      string           `json:"domain_key,omitempty"`
	MatchedName    string           `json:"matched_cn_name,omitempty"`
	Method         ResolutionMethod `json:"method"`
	Score          int              `json:"score"`
	Query          string           `json:"query"`
	CandidateCount int              `json:"candidate_count"`
	MatchedPreview map[string]any   `json:"matched_preview,omitempty"`
}

// KGContext is the artifact of the domain resolution and pack selection stage.
type KGContext struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	InputSHA256 string    `json:"input_sha256"`

	Topic       string `json:"topic"`
	ProjectType string `json:"project_type_cn,omitempty"`

	DomainMap     FileRef          `json:"domain_map"`
	Resolution    DomainResolution `json:"domain_resolution"`
	BasePacks     []FileRef        `json:"base_packs"`
	SelectedPacks []FileRef        `json:"selected_packs"`
	Pack          PackIdentity     `json:"kg_pack"`
}
