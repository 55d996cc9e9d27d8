// Package audit recomputes, from disk, whether the last run is consistent and replayable.
//
// Existence decides replayability; hash mismatches only mark a check stale.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/aretw0/preflight/internal/config"
	"github.com/aretw0/preflight/internal/logging"
	"github.com/aretw0/preflight/internal/rules"
	"github.com/aretw0/preflight/pkg/adapters/file"
	"github.com/aretw0/preflight/pkg/domain"
	"github.com/aretw0/preflight/pkg/ports"
)

// Auditor builds audit reports and pack status.
type Auditor struct {
	store  ports.ArtifactStore
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithStore reads artifacts from store instead of the config's artifact directory.
func WithStore(store ports.ArtifactStore) Option {
	return func(a *Auditor) {
		a.store = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Auditor) {
		a.logger = logger
	}
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Auditor) {
		a.now = now
	}
}

// New creates an Auditor.
func New(opts ...Option) *Auditor {
	a := &Auditor{logger: logging.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Auditor) storeFor(cfg *config.Resolved) ports.ArtifactStore {
	if a.store != nil {
		return a.store
	}
	return file.New(cfg.ArtifactDir())
}

type stamp struct {
	RunID       string    `json:"run_id"`
	InputSHA256 string    `json:"input_sha256"`
	GeneratedAt time.Time `json:"generated_at"`
}

// snapshot holds the decoded artifacts of the last run. Absent artifacts stay nil.
type snapshot struct {
	summaries map[string]domain.ArtifactSummary
	profile   *domain.ProjectProfile
	region    *domain.RegionUpgrade
	context   *domain.KGContext
	gate      *domain.PreCheckEvaluation
}

// audited lists every artifact summarized in a report. Retrieve is informative only.
var audited = append(append([]string{}, domain.ExpectedArtifacts...), domain.ArtifactRetrieve)

func (a *Auditor) read(ctx context.Context, store ports.ArtifactStore) *snapshot {
	s := &snapshot{summaries: map[string]domain.ArtifactSummary{}}
	typed := map[string]any{}

	for _, name := range audited {
		sum := domain.ArtifactSummary{Path: store.Location(name)}
		var raw json.RawMessage
		err := store.Load(ctx, name, &raw)
		switch {
		case errors.Is(err, domain.ErrArtifactNotFound):
		case err != nil:
			sum.Exists = true
			sum.Error = err.Error()
		default:
			sum.Exists = true
			var st stamp
			if err := json.Unmarshal(raw, &st); err != nil {
				sum.Error = err.Error()
				break
			}
			sum.RunID, sum.InputSHA256, sum.GeneratedAt = st.RunID, st.InputSHA256, st.GeneratedAt

			var v any
			switch name {
			case domain.ArtifactProjectProfile:
				v = &domain.ProjectProfile{}
			case domain.ArtifactRegionUpgrade:
				v = &domain.RegionUpgrade{}
			case domain.ArtifactKGContext:
				v = &domain.KGContext{}
			case domain.ArtifactPrecheckGuard:
				v = &domain.PreCheckEvaluation{}
			}
			if v != nil {
				if err := json.Unmarshal(raw, v); err != nil {
					sum.Error = err.Error()
				} else {
					typed[name] = v
				}
			}
		}
		s.summaries[name] = sum
	}

	s.profile, _ = typed[domain.ArtifactProjectProfile].(*domain.ProjectProfile)
	s.region, _ = typed[domain.ArtifactRegionUpgrade].(*domain.RegionUpgrade)
	s.context, _ = typed[domain.ArtifactKGContext].(*domain.KGContext)
	s.gate, _ = typed[domain.ArtifactPrecheckGuard].(*domain.PreCheckEvaluation)
	return s
}

// Report builds the audit report for cfg. It never fails: every problem is part of the report.
func (a *Auditor) Report(ctx context.Context, cfg *config.Resolved) *domain.AuditReport {
	store := a.storeFor(cfg)
	s := a.read(ctx, store)

	r := &domain.AuditReport{
		GeneratedAt: a.now().UTC(),
		ArtifactDir: cfg.ArtifactDir(),
		Artifacts:   s.summaries,
		Checks:      []domain.AuditCheck{},
		Replay:      domain.Replay{Missing: []string{}, Stale: []string{}},
	}

	r.Checks = append(r.Checks,
		inputConsistency(s),
		profileRuleCheck(cfg, s),
		guardRuleCheck(cfg, s),
		regionRuleCheck(cfg, s),
		domainMapCheck(cfg, s),
		basePackCheck(cfg, s),
		selectedPackCheck(s),
	)

	for _, name := range domain.ExpectedArtifacts {
		if !s.summaries[name].Exists {
			r.Replay.Missing = append(r.Replay.Missing, s.summaries[name].Path)
		}
	}
	r.Replay.Missing = append(r.Replay.Missing, missingRuleFiles(cfg, s)...)
	for _, c := range r.Checks {
		if c.Stale {
			r.Replay.Stale = append(r.Replay.Stale, c.Check)
		}
	}
	r.Replay.Replayable = len(r.Replay.Missing) == 0

	a.logger.Debug("audit built",
		"replayable", r.Replay.Replayable, "missing", len(r.Replay.Missing), "stale", len(r.Replay.Stale))
	return r
}

// PackStatus compares the active pack with the pack stamped into the last kg_context.
func (a *Auditor) PackStatus(ctx context.Context, cfg *config.Resolved) *domain.PackStatus {
	st := &domain.PackStatus{Current: cfg.PackIdentity()}

	var kc domain.KGContext
	err := a.storeFor(cfg).Load(ctx, domain.ArtifactKGContext, &kc)
	switch {
	case errors.Is(err, domain.ErrArtifactNotFound):
		st.Errors = append(st.Errors, "kg_context not found; no run recorded yet")
		return st
	case err != nil:
		st.Errors = append(st.Errors, err.Error())
		return st
	}

	last := kc.Pack
	st.LastUsed = &last
	st.Stale = st.Current.ActivePack != last.ActivePack || st.Current.ManifestSHA256 != last.ManifestSHA256
	return st
}

func inputConsistency(s *snapshot) domain.AuditCheck {
	var candidates []string
	unique := map[string]bool{}
	for _, name := range audited {
		if h := s.summaries[name].InputSHA256; h != "" {
			candidates = append(candidates, h)
			unique[h] = true
		}
	}
	uniq := make([]string, 0, len(unique))
	for h := range unique {
		uniq = append(uniq, h)
	}
	sort.Strings(uniq)
	return domain.AuditCheck{
		Check: domain.AuditInputConsistency,
		OK:    len(uniq) <= 1,
		Details: map[string]any{
			"candidates": nonNil(candidates),
			"unique":     uniq,
		},
	}
}

// ruleCheck compares a governing file with the hash an artifact recorded for it.
// An empty expected hash means the artifact is absent or recorded none: nothing can be stale.
func ruleCheck(name, path, expected string) domain.AuditCheck {
	ref := rules.Probe(path)
	c := domain.AuditCheck{
		Check: name,
		OK:    ref.Exists,
		Details: map[string]any{
			"rule_path": path,
			"exists":    ref.Exists,
			"sha256":    ref.SHA256,
		},
	}
	if ref.Error != "" {
		c.Details["error"] = ref.Error
	}
	if expected != "" {
		c.Details["expected_sha256"] = expected
		if ref.Exists {
			match := ref.SHA256 == expected
			c.Details["sha256_match"] = match
			c.Stale = !match
		}
	}
	return c
}

func configCheck(name string, err error) domain.AuditCheck {
	return domain.AuditCheck{Check: name, Details: map[string]any{"error": err.Error()}}
}

func profileRuleCheck(cfg *config.Resolved, s *snapshot) domain.AuditCheck {
	path, err := cfg.ProjectProfileRulePath()
	if err != nil {
		return configCheck(domain.AuditProfileRuleFile, err)
	}
	var expected string
	if s.profile != nil {
		expected = s.profile.RuleSHA256
	}
	return ruleCheck(domain.AuditProfileRuleFile, path, expected)
}

func guardRuleCheck(cfg *config.Resolved, s *snapshot) domain.AuditCheck {
	path, err := cfg.PrecheckGuardRulePath()
	if err != nil {
		return configCheck(domain.AuditGuardRuleFile, err)
	}
	var expected string
	if s.gate != nil {
		expected = s.gate.RuleSHA256
	}
	return ruleCheck(domain.AuditGuardRuleFile, path, expected)
}

// regionKey is the key recorded by the last run, else the configured default.
func regionKey(cfg *config.Resolved, s *snapshot) string {
	if s.region != nil && s.region.RegionKey != "" {
		return s.region.RegionKey
	}
	return cfg.DefaultRegion()
}

func regionRuleCheck(cfg *config.Resolved, s *snapshot) domain.AuditCheck {
	key := regionKey(cfg, s)
	if key == "" {
		return domain.AuditCheck{Check: domain.AuditRegionRuleFile, Details: map[string]any{"error": "no region key recorded or configured"}}
	}
	path, ok := cfg.RegionRulePath(key)
	if !ok {
		return domain.AuditCheck{Check: domain.AuditRegionRuleFile, Details: map[string]any{
			"region_key": key,
			"error":      "no region_upgrade_rule configured for region_key=" + key,
		}}
	}
	var expected string
	if s.region != nil {
		expected = s.region.RuleSHA256
	}
	c := ruleCheck(domain.AuditRegionRuleFile, path, expected)
	c.Details["region_key"] = key
	return c
}

func domainMapCheck(cfg *config.Resolved, s *snapshot) domain.AuditCheck {
	path := cfg.DomainMapPath()
	if path == "" {
		return domain.AuditCheck{Check: domain.AuditDomainMapFile, Details: map[string]any{"error": "domain_map not configured"}}
	}
	var expected string
	if s.context != nil {
		expected = s.context.DomainMap.SHA256
	}
	return ruleCheck(domain.AuditDomainMapFile, path, expected)
}

// fileSetCheck probes every path and flags as stale any file whose hash differs from the recorded one.
func fileSetCheck(name string, paths []string, recorded []domain.FileRef) domain.AuditCheck {
	prior := map[string]string{}
	for _, ref := range recorded {
		if ref.SHA256 != "" {
			prior[ref.Path] = ref.SHA256
		}
	}
	c := domain.AuditCheck{Check: name, OK: true}
	files := make([]domain.FileRef, 0, len(paths))
	var changed []string
	for _, p := range paths {
		ref := rules.Probe(p)
		if !ref.Exists {
			c.OK = false
		}
		if want, ok := prior[p]; ok && ref.Exists && ref.SHA256 != want {
			c.Stale = true
			changed = append(changed, p)
		}
		files = append(files, ref)
	}
	c.Details = map[string]any{"files": files}
	if len(changed) > 0 {
		c.Details["changed"] = changed
	}
	return c
}

func basePackCheck(cfg *config.Resolved, s *snapshot) domain.AuditCheck {
	var recorded []domain.FileRef
	if s.context != nil {
		recorded = s.context.BasePacks
	}
	return fileSetCheck(domain.AuditBasePackFiles, cfg.BasePackPaths(), recorded)
}

func selectedPackCheck(s *snapshot) domain.AuditCheck {
	if s.context == nil {
		return domain.AuditCheck{Check: domain.AuditSelectedPackFiles, Details: map[string]any{"error": "kg_context not available"}}
	}
	paths := make([]string, 0, len(s.context.SelectedPacks))
	for _, ref := range s.context.SelectedPacks {
		paths = append(paths, ref.Path)
	}
	return fileSetCheck(domain.AuditSelectedPackFiles, paths, s.context.SelectedPacks)
}

// missingRuleFiles lists every governing file a replay needs that is not on disk,
// including the selected packs recorded by the last run. Unconfigured required
// rules are reported by name.
func missingRuleFiles(cfg *config.Resolved, s *snapshot) []string {
	var missing []string
	seen := map[string]bool{}
	check := func(path string) {
		if seen[path] {
			return
		}
		seen[path] = true
		if !rules.Exists(path) {
			missing = append(missing, path)
		}
	}

	if p, err := cfg.ProjectProfileRulePath(); err != nil {
		missing = append(missing, "project_profile_rules (not configured)")
	} else {
		check(p)
	}
	if p, err := cfg.PrecheckGuardRulePath(); err != nil {
		missing = append(missing, "precheck_guard_rules (not configured)")
	} else {
		check(p)
	}
	if key := regionKey(cfg, s); key != "" {
		if p, ok := cfg.RegionRulePath(key); ok {
			check(p)
		}
	}
	if p := cfg.DomainMapPath(); p != "" {
		check(p)
	}
	for _, p := range cfg.BasePackPaths() {
		check(p)
	}
	if s.context != nil {
		for _, ref := range s.context.SelectedPacks {
			check(ref.Path)
		}
	}
	return missing
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
