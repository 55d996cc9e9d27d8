package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/preflight/pkg/domain"
)

// RunMarkdown describes a pipeline result for humans.
func RunMarkdown(res *domain.RunResult) string {
	var b strings.Builder
	if res.Blocked() {
		b.WriteString("# PreCheck blocked\n\n")
	} else {
		b.WriteString("# PreCheck passed\n\n")
	}
	fmt.Fprintf(&b, "- **Run:** `%s`\n", res.RunID)
	fmt.Fprintf(&b, "- **Input:** `%s`\n", short(res.InputSHA256))
	if p := res.Profile; p != nil {
		fmt.Fprintf(&b, "- **Profile:** `%s`, type %s (%.2f, %s)\n",
			p.Decision, orDash(p.ProjectType.Value), p.ProjectType.Confidence, p.ProjectType.Source)
	}
	if c := res.Context; c != nil {
		fmt.Fprintf(&b, "- **Domain:** %s via %s, %d pack(s) selected\n",
			orDash(c.Resolution.DomainKey), c.Resolution.Method, len(c.SelectedPacks))
		fmt.Fprintf(&b, "- **Pack:** %s\n", c.Pack.ActivePack)
	}
	if r := res.Region; r != nil {
		region := "not applied"
		if r.Applied {
			region = r.RegionKey
		}
		fmt.Fprintf(&b, "- **Region:** %s\n", region)
	}
	b.WriteString("\n")

	if g := res.Gate; g != nil && !g.Passed {
		b.WriteString("## Reasons\n\n")
		for _, r := range g.Reasons {
			fmt.Fprintf(&b, "- `%s` %s\n", r.Code, r.Message)
		}
		if len(g.SuggestedActions) > 0 {
			b.WriteString("\n## Suggested actions\n\n")
			for _, a := range g.SuggestedActions {
				fmt.Fprintf(&b, "- %s\n", a)
			}
		}
		return b.String()
	}

	if c := res.Compose; c != nil {
		if c.RecoveredFrom != "" {
			fmt.Fprintf(&b, "> Enrichment failed (%s); recovered from %s.\n\n", c.EnrichmentError, c.RecoveredFrom)
		}
		for _, s := range c.Sections {
			fmt.Fprintf(&b, "## %s\n\n%s\n\n", s.Title, s.Content)
		}
	}
	return b.String()
}

// AuditMarkdown describes an audit report for humans.
func AuditMarkdown(r *domain.AuditReport) string {
	var b strings.Builder
	if r.Replay.Replayable {
		b.WriteString("# Replayable\n\n")
	} else {
		b.WriteString("# Not replayable\n\n")
	}
	fmt.Fprintf(&b, "Artifacts in `%s`.\n\n", r.ArtifactDir)

	b.WriteString("| Check | OK | Stale |\n|---|---|---|\n")
	for _, c := range r.Checks {
		fmt.Fprintf(&b, "| %s | %s | %s |\n", c.Check, mark(c.OK), mark(c.Stale))
	}

	if len(r.Replay.Missing) > 0 {
		b.WriteString("\n## Missing\n\n")
		for _, m := range r.Replay.Missing {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	if len(r.Replay.Stale) > 0 {
		b.WriteString("\n## Stale\n\n")
		for _, s := range r.Replay.Stale {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	names := make([]string, 0, len(r.Artifacts))
	for n := range r.Artifacts {
		names = append(names, n)
	}
	sort.Strings(names)
	var broken []string
	for _, n := range names {
		if a := r.Artifacts[n]; a.Error != "" {
			broken = append(broken, fmt.Sprintf("- %s: %s", n, a.Error))
		}
	}
	if len(broken) > 0 {
		b.WriteString("\n## Unreadable artifacts\n\n")
		b.WriteString(strings.Join(broken, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func short(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
