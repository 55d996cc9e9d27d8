package domain

import "time"

// Severity of a gate reason.
type Severity string

const SeverityError Severity = "ERROR"

// Gate check identifiers, evaluated in this order.
const (
	CheckTopicRequired          = "TOPIC_REQUIRED"
	CheckOutlineRequired        = "OUTLINE_REQUIRED"
	CheckProjectProfileDecision = "PROJECT_PROFILE_DECISION"
	CheckRequiredFieldsFromRule = "REQUIRED_FIELDS_FROM_RULE"
)

// Gate reason codes, one per failed check.
const (
	ReasonTopicEmpty            = "TOPIC_EMPTY"
	ReasonOutlineEmpty          = "OUTLINE_EMPTY"
	ReasonLowConfidenceProfile  = "LOW_CONFIDENCE_PROFILE"
	ReasonMissingRequiredFields = "MISSING_REQUIRED_FIELDS"
)

// CheckDetail is the outcome of one gate check.
type CheckDetail struct {
	CheckID  string `json:"check_id"`
	Passed   bool   `json:"passed"`
	Observed any    `json:"observed,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Reason explains a failed check.
type Reason struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// PreCheckEvaluation is the artifact of the gate stage.
// Passed holds exactly when Reasons is empty.
type PreCheckEvaluation struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	InputSHA256 string    `json:"input_sha256"`

	Passed           bool          `json:"passed"`
	Details          []CheckDetail `json:"details"`
	Reasons          []Reason      `json:"reasons"`
	SuggestedActions []string      `json:"suggested_actions"`
	HumanReadable    string        `json:"human_readable"`

	RulePath   string `json:"rule_path"`
	RuleSHA256 string `json:"rule_sha256,omitempty"`

	ProjectProfileDecision Decision `json:"project_profile_decision"`
	Errors                 []string `json:"errors,omitempty"`
}
