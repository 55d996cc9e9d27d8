package domain

import "time"

// Decision is the classifier's routing verdict for a request.
type Decision string

const (
	DecisionAutoAccept     Decision = "auto_accept"
	DecisionManualConfirm  Decision = "require_manual_confirm"
	DecisionBlockAndReview Decision = "block_and_review"
)

// Thresholds are the confidence cut-offs declared by the classifier rule file.
type Thresholds struct {
	AutoAccept           float64 `json:"auto_accept" mapstructure:"auto_accept"`
	RequireManualConfirm float64 `json:"require_manual_confirm" mapstructure:"require_manual_confirm"`
}

// DefaultThresholds apply when the rule file omits a threshold.
var DefaultThresholds = Thresholds{AutoAccept: 0.85, RequireManualConfirm: 0.70}

// Decide maps a confidence to a Decision.
func (t Thresholds) Decide(confidence float64) Decision {
	switch {
	case confidence >= t.AutoAccept:
		return DecisionAutoAccept
	case confidence >= t.RequireManualConfirm:
		return DecisionManualConfirm
	default:
		return DecisionBlockAndReview
	}
}

// ProjectType is the inferred project category.
type ProjectType struct {
	Value      string   `json:"value,omitempty"`
	Confidence float64  `json:"confidence"`
	Source     string   `json:"source"`             // "explicit:<field>", "keyword", "keyword:none" or "none"
	Evidence   []string `json:"evidence,omitempty"` // Field reference or matched keywords
}

// ProjectProfile is the artifact of the classification stage.
type ProjectProfile struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	InputSHA256 string    `json:"input_sha256"`

	Decision            Decision    `json:"decision"`
	ProjectType         ProjectType `json:"project_type"`
	MandatoryDimensions []string    `json:"mandatory_dimensions"`
	Thresholds          Thresholds  `json:"confidence_thresholds"`

	RuleVersion string `json:"profile_rule_version,omitempty"`
	RulePath    string `json:"rule_path"`
	RuleSHA256  string `json:"rule_sha256"`

	// Passed through from the rule file for downstream consumers.
	TechnologyTolerance map[string]any `json:"technology_tolerance_inference,omitempty"`
	LogicChainPolicy    map[string]any `json:"logic_chain_policy,omitempty"`

	FieldMapping string   `json:"field_mapping_version"`
	Errors       []string `json:"errors,omitempty"`
}
