package domain

// Artifact names. Each is persisted as <name>.json in the artifact directory.
const (
	ArtifactProjectProfile = "project_profile"
	ArtifactRegionUpgrade  = "region_upgrade"
	ArtifactKGContext      = "kg_context"
	ArtifactPrecheckGuard  = "precheck_guard"
	ArtifactCompose        = "compose"
	ArtifactRetrieve       = "retrieve"
	ArtifactPackEval       = "kg_pack_eval"
)

// ExpectedArtifacts must all exist for a run to be replayable.
var ExpectedArtifacts = []string{
	ArtifactProjectProfile,
	ArtifactKGContext,
	ArtifactRegionUpgrade,
	ArtifactPrecheckGuard,
	ArtifactCompose,
}

// RunState is the position of a request in the pipeline.
type RunState string

const (
	StateReceived       RunState = "received"
	StateClassified     RunState = "classified"
	StateRegionResolved RunState = "region_resolved"
	StateDomainResolved RunState = "domain_resolved"
	StateGated          RunState = "gated"
	StateBlocked        RunState = "blocked"    // Terminal
	StateProceeding     RunState = "proceeding" // Gate passed, composing
	StateComposed       RunState = "composed"   // Terminal
)

var runTransitions = map[RunState][]RunState{
	StateReceived:       {StateClassified},
	StateClassified:     {StateRegionResolved},
	StateRegionResolved: {StateDomainResolved},
	StateDomainResolved: {StateGated},
	StateGated:          {StateBlocked, StateProceeding},
	StateProceeding:     {StateComposed},
}

// CanTransition reports whether the pipeline may move from s to next.
func (s RunState) CanTransition(next RunState) bool {
	for _, allowed := range runTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition exists.
func (s RunState) Terminal() bool {
	return len(runTransitions[s]) == 0
}

// RunResult is what the orchestrator hands back to its caller.
type RunResult struct {
	RunID       string   `json:"run_id"`
	InputSHA256 string   `json:"input_sha256"`
	State       RunState `json:"state"`
	Artifacts   []string `json:"artifacts"` // Names written, in order

	Profile *ProjectProfile     `json:"project_profile,omitempty"`
	Region  *RegionUpgrade      `json:"region_upgrade,omitempty"`
	Context *KGContext          `json:"kg_context,omitempty"`
	Gate    *PreCheckEvaluation `json:"precheck_guard,omitempty"`
	Compose *ComposeResult      `json:"compose,omitempty"`
}

// Blocked reports whether the gate stopped the run.
func (r *RunResult) Blocked() bool {
	return r.State == StateBlocked
}
