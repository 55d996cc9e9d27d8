// Package gate decides whether a request may proceed to composition.
package gate

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/aretw0/preflight/internal/rules"
	"github.com/aretw0/preflight/pkg/domain"
)

// Gate evaluates requests against one guard rule file.
type Gate struct {
	path           string
	sha256         string
	requiredFields []string
	errors         []string
}

// Load reads the guard rule file. A missing or unparsable file is not fatal:
// the gate still runs its baseline checks and records why the rule-declared checks were skipped.
func Load(path string) *Gate {
	g := &Gate{path: path}
	doc, err := rules.Load(path)
	if doc != nil {
		g.sha256 = doc.SHA256
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		g.errors = append(g.errors, fmt.Sprintf("guard rule file not found: %s", path))
		return g
	case err != nil:
		g.errors = append(g.errors, fmt.Sprintf("guard rule file unreadable: %v", err))
		return g
	}

	if list, ok := doc.Object["required_fields"].([]any); ok {
		for _, f := range list {
			if s, ok := f.(string); ok && s != "" {
				g.requiredFields = append(g.requiredFields, s)
			}
		}
	}
	return g
}

// RequiredFields returns the fields the rule file declares mandatory.
func (g *Gate) RequiredFields() []string { return g.requiredFields }

// Evaluate runs every check in order. Run stamps are left to the caller.
func (g *Gate) Evaluate(p domain.Payload, profile domain.ProjectProfile) domain.PreCheckEvaluation {
	ev := domain.PreCheckEvaluation{
		Details:                []domain.CheckDetail{},
		Reasons:                []domain.Reason{},
		SuggestedActions:       []string{},
		RulePath:               g.path,
		RuleSHA256:             g.sha256,
		ProjectProfileDecision: profile.Decision,
		Errors:                 g.errors,
	}
	fail := func(code, message string, actions ...string) {
		ev.Reasons = append(ev.Reasons, domain.Reason{Code: code, Severity: domain.SeverityError, Message: message})
		ev.SuggestedActions = append(ev.SuggestedActions, actions...)
	}

	topic := p["topic"]
	okTopic := !domain.IsEmpty(topic)
	if _, isString := topic.(string); !isString {
		okTopic = false
	}
	ev.Details = append(ev.Details, domain.CheckDetail{
		CheckID:  domain.CheckTopicRequired,
		Passed:   okTopic,
		Observed: topic,
		Message:  "topic must not be empty; it drives project intent and discipline detection",
	})
	if !okTopic {
		fail(domain.ReasonTopicEmpty, "request field topic is empty",
			"Provide a topic, e.g. '合肥市政排水工程施工组织设计（雨污分流）'")
	}

	outline := p["outline"]
	_, isList := outline.([]any)
	okOutline := isList && !domain.IsEmpty(outline)
	ev.Details = append(ev.Details, domain.CheckDetail{
		CheckID:  domain.CheckOutlineRequired,
		Passed:   okOutline,
		Observed: outline,
		Message:  "outline needs at least one entry; it bounds the composed sections",
	})
	if !okOutline {
		fail(domain.ReasonOutlineEmpty, "request field outline is empty or not a list",
			"Provide an outline, e.g. ['工程概况','施工准备','施工方法','质量安全']")
	}

	okProfile := profile.Decision != domain.DecisionBlockAndReview
	ev.Details = append(ev.Details, domain.CheckDetail{
		CheckID:  domain.CheckProjectProfileDecision,
		Passed:   okProfile,
		Observed: string(profile.Decision),
		Message:  "generation is not allowed while the project profile decision is block_and_review",
	})
	if !okProfile {
		fail(domain.ReasonLowConfidenceProfile,
			"project profile confidence is too low (decision=block_and_review)",
			"Add key project facts (type, region, scale, keywords) or set project_type explicitly",
			"Rephrase the topic with a clear discipline keyword such as '装修', '幕墙', '市政排水', '市政道路' or '机电'")
	}

	if len(g.requiredFields) > 0 {
		var missing []string
		for _, f := range g.requiredFields {
			if domain.IsEmpty(p[f]) {
				missing = append(missing, f)
			}
		}
		ev.Details = append(ev.Details, domain.CheckDetail{
			CheckID:  domain.CheckRequiredFieldsFromRule,
			Passed:   len(missing) == 0,
			Observed: map[string]any{"missing": nonNil(missing)},
			Message:  "required fields declared by the guard rule file",
		})
		if len(missing) > 0 {
			list := strings.Join(missing, ", ")
			fail(domain.ReasonMissingRequiredFields, "missing required fields: "+list,
				"Fill in the fields required by the guard rule: "+list)
		}
	}

	ev.Passed = true
	for _, d := range ev.Details {
		ev.Passed = ev.Passed && d.Passed
	}
	ev.HumanReadable = Humanize(ev.Reasons, ev.SuggestedActions)
	return ev
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
