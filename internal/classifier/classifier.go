// Package classifier infers a project type from a request and turns its confidence into a routing decision.
package classifier

import (
	"errors"
	"io/fs"
	"log/slog"
	"math"
	"strings"

	"github.com/aretw0/preflight/internal/logging"
	"github.com/aretw0/preflight/internal/rules"
	"github.com/aretw0/preflight/pkg/domain"
)

const (
	// DefaultBaseConfidence applies when the rule file does not declare one.
	DefaultBaseConfidence = 0.75

	// Keyword inference is a candidate, never a certainty.
	maxBaseConfidence    = 0.80
	maxKeywordConfidence = 0.85
	perExtraHit          = 0.03
)

type mandatoryRule struct {
	IfProjectType string   `mapstructure:"if_project_type"`
	Dimensions    []string `mapstructure:"mandatory_dimensions"`
}

type ruleSet struct {
	Version    string            `mapstructure:"profile_rule_version"`
	Thresholds domain.Thresholds `mapstructure:"confidence_thresholds"`
	Inference  struct {
		BaseConfidence float64 `mapstructure:"base_confidence"`
	} `mapstructure:"project_type_inference"`
	Mandatory struct {
		BaseRules []mandatoryRule `mapstructure:"base_rules"`
	} `mapstructure:"mandatory_dimension_inference"`
	TechnologyTolerance map[string]any `mapstructure:"technology_tolerance_inference"`
	LogicChainPolicy    map[string]any `mapstructure:"logic_chain_policy"`
}

// Classifier scores payloads against one loaded rule file.
type Classifier struct {
	doc    *rules.Document
	rules  ruleSet
	table  []KeywordRule
	logger *slog.Logger
}

// Option configures the Classifier.
type Option func(*Classifier)

// WithLogger configures a logger for the Classifier.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// WithKeywordTable replaces the built-in keyword table.
func WithKeywordTable(table []KeywordRule) Option {
	return func(c *Classifier) {
		c.table = table
	}
}

// Load reads the classifier rule file. The file is required: a missing or malformed file is a configuration error.
func Load(path string, opts ...Option) (*Classifier, error) {
	doc, err := rules.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.ConfigError{Path: path, Reason: "project profile rule file not found"}
		}
		return nil, &domain.ConfigError{Path: path, Reason: err.Error()}
	}
	if doc.Object == nil {
		return nil, &domain.ConfigError{Path: path, Reason: "project profile rules must be an object"}
	}

	rs := ruleSet{Thresholds: domain.DefaultThresholds}
	rs.Inference.BaseConfidence = DefaultBaseConfidence
	if err := doc.Decode(&rs); err != nil {
		return nil, &domain.ConfigError{Path: path, Reason: err.Error()}
	}

	c := &Classifier{
		doc:    doc,
		rules:  rs,
		table:  DefaultKeywordTable,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RulePath returns the path of the governing rule file.
func (c *Classifier) RulePath() string { return c.doc.Path }

// Thresholds returns the effective decision thresholds.
func (c *Classifier) Thresholds() domain.Thresholds { return c.rules.Thresholds }

// Classify builds the project profile for a payload. Run stamps are left to the caller.
func (c *Classifier) Classify(p domain.Payload) domain.ProjectProfile {
	pt := c.InferType(p)
	decision := c.rules.Thresholds.Decide(pt.Confidence)

	c.logger.Debug("project type inferred",
		"value", pt.Value, "confidence", pt.Confidence, "source", pt.Source, "decision", decision)

	return domain.ProjectProfile{
		Decision:            decision,
		ProjectType:         pt,
		MandatoryDimensions: c.mandatoryDimensions(pt.Value),
		Thresholds:          c.rules.Thresholds,
		RuleVersion:         c.rules.Version,
		RulePath:            c.doc.Path,
		RuleSHA256:          c.doc.SHA256,
		TechnologyTolerance: c.rules.TechnologyTolerance,
		LogicChainPolicy:    c.rules.LogicChainPolicy,
		FieldMapping:        domain.FieldMappingVersion,
	}
}

// InferType resolves the project type: explicit fields first, then keyword scoring.
func (c *Classifier) InferType(p domain.Payload) domain.ProjectType {
	for _, field := range domain.ExplicitTypeFields {
		if v, ok := p.String(field); ok {
			return domain.ProjectType{
				Value:      v,
				Confidence: 1.0,
				Source:     "explicit:" + field,
				Evidence:   []string{"payload." + field},
			}
		}
	}

	text := ExtractText(p)
	if text == "" {
		return domain.ProjectType{Source: "none"}
	}

	best, found := -1, []string(nil)
	for i, rule := range c.table {
		var hits []string
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				hits = append(hits, kw)
			}
		}
		// Strictly greater: ties keep the earlier declared type.
		if len(hits) > len(found) {
			best, found = i, hits
		}
	}
	if best < 0 {
		return domain.ProjectType{Source: "keyword:none"}
	}

	return domain.ProjectType{
		Value:      c.table[best].ProjectType,
		Confidence: c.keywordConfidence(len(found)),
		Source:     "keyword",
		Evidence:   found,
	}
}

// keywordConfidence keeps keyword inference strictly below auto_accept, whatever the rule file says.
func (c *Classifier) keywordConfidence(hits int) float64 {
	base := math.Min(c.rules.Inference.BaseConfidence, maxBaseConfidence)
	conf := round2(math.Min(maxKeywordConfidence, base+perExtraHit*float64(hits-1)))
	if ceiling := c.rules.Thresholds.AutoAccept; conf >= ceiling {
		conf = math.Max(0, round2(ceiling-0.01))
	}
	return conf
}

func (c *Classifier) mandatoryDimensions(projectType string) []string {
	if projectType == "" {
		return []string{}
	}
	for _, r := range c.rules.Mandatory.BaseRules {
		if r.IfProjectType == projectType {
			if r.Dimensions == nil {
				return []string{}
			}
			return r.Dimensions
		}
	}
	return []string{}
}

// ExtractText concatenates the text-bearing fields of a payload, in field order.
// Lists contribute their string elements.
func ExtractText(p domain.Payload) string {
	var parts []string
	add := func(v any) {
		if s, ok := v.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
	}
	for _, field := range domain.TextFields {
		switch v := p[field].(type) {
		case []any:
			for _, it := range v {
				add(it)
			}
		default:
			add(v)
		}
	}
	return strings.Join(parts, "\n")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
