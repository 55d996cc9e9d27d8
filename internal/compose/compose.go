// Package compose builds the sections of a run that passed the gate.
//
// Composition is an enrichment stage: it returns a domain.Result and never decides how a
// failure is recovered. The pipeline owns that policy.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aretw0/preflight/internal/logging"
	"github.com/aretw0/preflight/internal/rules"
	"github.com/aretw0/preflight/pkg/domain"
	"github.com/aretw0/preflight/pkg/ports"
)

// Stage names reported in enrichment errors.
const (
	StageRetrieve  = "retrieve"
	StageWorkItems = "work_items"
)

const (
	// DefaultEvidenceLimit is the number of passages requested from the retriever.
	DefaultEvidenceLimit = 6

	// DefaultWorkItemLimit bounds how many procedures are quoted per pack.
	DefaultWorkItemLimit = 3

	querySuffix = "质量控制 安全风险 控制措施 验收标准 资源配置"
)

// Section titles.
const (
	TitleTrace     = "Traceability summary"
	TitleEvidence  = "Retrieved evidence"
	TitleWorkItems = "Pack work items"
)

// Input is everything the upstream stages produced for one run.
type Input struct {
	Payload domain.Payload
	Profile domain.ProjectProfile
	Region  domain.RegionUpgrade
	Context domain.KGContext
	Gate    domain.PreCheckEvaluation

	// Artifacts maps artifact names to where they were written, for the trace section.
	Artifacts map[string]string
}

// Output is the value of a successful composition.
type Output struct {
	Sections  []domain.Section
	Query     string
	Evidence  []domain.Evidence
	WorkItems []domain.WorkItem
}

// Composer assembles sections from the run context, pack content and retrieved evidence.
type Composer struct {
	retriever     ports.EvidenceRetriever
	logger        *slog.Logger
	evidenceLimit int
	workItemLimit int
}

// Option configures a Composer.
type Option func(*Composer)

// WithRetriever sets the evidence source. Without one the evidence section is a placeholder.
func WithRetriever(r ports.EvidenceRetriever) Option {
	return func(c *Composer) {
		c.retriever = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) {
		c.logger = logger
	}
}

// WithLimits overrides the evidence and work item limits. Non-positive values keep the defaults.
func WithLimits(evidence, workItems int) Option {
	return func(c *Composer) {
		if evidence > 0 {
			c.evidenceLimit = evidence
		}
		if workItems > 0 {
			c.workItemLimit = workItems
		}
	}
}

// New creates a Composer.
func New(opts ...Option) *Composer {
	c := &Composer{
		logger:        logging.NewNop(),
		evidenceLimit: DefaultEvidenceLimit,
		workItemLimit: DefaultWorkItemLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query builds the retrieval query for a topic and domain key.
func Query(topic, domainKey string) string {
	parts := []string{}
	for _, s := range []string{strings.TrimSpace(topic), strings.TrimSpace(domainKey), querySuffix} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Compose runs the enrichment stage.
func (c *Composer) Compose(ctx context.Context, in Input) domain.Result[Output] {
	if err := ctx.Err(); err != nil {
		return domain.Failed[Output](StageRetrieve, err)
	}

	out := Output{Query: Query(in.Context.Topic, in.Context.Resolution.DomainKey)}

	if c.retriever != nil {
		ev, err := c.retriever.Retrieve(ctx, out.Query, in.Context.SelectedPacks, c.evidenceLimit)
		if err != nil {
			c.logger.Warn("evidence retrieval failed", "error", err)
			return domain.Failed[Output](StageRetrieve, err)
		}
		if len(ev) > c.evidenceLimit {
			ev = ev[:c.evidenceLimit]
		}
		out.Evidence = ev
	}

	items, err := c.collectWorkItems(ctx, in.Context.SelectedPacks)
	if err != nil {
		return domain.Failed[Output](StageWorkItems, err)
	}
	out.WorkItems = items

	out.Sections = append(out.Sections,
		domain.Section{Title: TitleTrace, Content: traceSummary(in)},
		domain.Section{Title: TitleEvidence, Content: evidenceContent(out.Evidence, c.retriever != nil)},
		domain.Section{Title: TitleWorkItems, Content: workItemContent(items)},
	)
	for _, title := range in.Payload.Outline() {
		out.Sections = append(out.Sections, outlineSection(title, in))
	}

	c.logger.Debug("composed",
		"sections", len(out.Sections),
		"evidence", len(out.Evidence),
		"work_items", len(out.WorkItems))
	return domain.OK(out)
}

// collectWorkItems reads every existing selected pack. Unreadable packs are skipped;
// only cancellation is treated as a failure of the stage.
func (c *Composer) collectWorkItems(ctx context.Context, packs []domain.FileRef) ([]domain.WorkItem, error) {
	var items []domain.WorkItem
	for _, ref := range packs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !ref.Exists {
			continue
		}
		doc, err := rules.Load(ref.Path)
		if err != nil {
			c.logger.Debug("skipping unreadable pack", "path", ref.Path, "error", err)
			continue
		}
		name := ref.Name
		if name == "" {
			name = ref.Path
		}
		items = append(items, ExtractWorkItems(doc.Value, name, c.workItemLimit)...)
	}
	return items, nil
}

func traceSummary(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- input_sha256: %s\n", in.Profile.InputSHA256)
	fmt.Fprintf(&b, "- project type: %s (confidence %.2f, source %s)\n",
		orNone(in.Profile.ProjectType.Value), in.Profile.ProjectType.Confidence, orNone(in.Profile.ProjectType.Source))
	fmt.Fprintf(&b, "- profile decision: %s (rule %s)\n", in.Profile.Decision, orNone(in.Profile.RuleVersion))
	fmt.Fprintf(&b, "- precheck: passed=%t\n", in.Gate.Passed)
	if in.Region.Applied {
		fmt.Fprintf(&b, "- region upgrade: %s (%s)\n", in.Region.RegionKey, in.Region.RegionSource)
	} else {
		fmt.Fprintf(&b, "- region upgrade: not applied\n")
	}
	res := in.Context.Resolution
	fmt.Fprintf(&b, "- domain: %s via %s (score %d)\n", orNone(res.DomainKey), res.Method, res.Score)
	fmt.Fprintf(&b, "- kg pack: %s %s\n", in.Context.Pack.ActivePack, in.Context.Pack.PackVersion)

	var packs []string
	for _, ref := range in.Context.SelectedPacks {
		mark := "missing"
		if ref.Exists {
			mark = shortHash(ref.SHA256)
		}
		packs = append(packs, fmt.Sprintf("%s[%s]", ref.Name, mark))
	}
	fmt.Fprintf(&b, "- selected packs: %s", orNone(strings.Join(packs, ", ")))

	if len(in.Artifacts) > 0 {
		b.WriteString("\n- artifacts:")
		for _, name := range sortedKeys(in.Artifacts) {
			fmt.Fprintf(&b, "\n  - %s: %s", name, in.Artifacts[name])
		}
	}
	return b.String()
}

func evidenceContent(ev []domain.Evidence, configured bool) string {
	if !configured {
		return "No evidence retriever configured."
	}
	if len(ev) == 0 {
		return "No evidence found in the selected packs."
	}
	lines := make([]string, 0, len(ev))
	for i, e := range ev {
		lines = append(lines, fmt.Sprintf("%d. [%s] %s (score %.2f)", i+1, e.Source, short(e.Text, 240), e.Score))
	}
	return strings.Join(lines, "\n")
}

func workItemContent(items []domain.WorkItem) string {
	if len(items) == 0 {
		return "No work items found in the selected packs."
	}
	blocks := make([]string, 0, len(items))
	for _, it := range items {
		blocks = append(blocks, FormatWorkItem(it))
	}
	return strings.Join(blocks, "\n\n")
}

func outlineSection(title string, in Input) domain.Section {
	dims := in.Profile.MandatoryDimensions
	content := fmt.Sprintf("Draft for %q under domain %s.", title, orNone(in.Context.Resolution.DomainKey))
	if len(dims) > 0 {
		content += "\nCover: " + strings.Join(dims, ", ")
	}
	return domain.Section{Title: title, Content: content}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
