// Package pipeline runs a request through every stage and persists each stage's artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/preflight/internal/canon"
	"github.com/aretw0/preflight/internal/classifier"
	"github.com/aretw0/preflight/internal/compose"
	"github.com/aretw0/preflight/internal/config"
	"github.com/aretw0/preflight/internal/domainmap"
	"github.com/aretw0/preflight/internal/gate"
	"github.com/aretw0/preflight/internal/logging"
	"github.com/aretw0/preflight/internal/metrics"
	"github.com/aretw0/preflight/internal/region"
	"github.com/aretw0/preflight/pkg/adapters/file"
	"github.com/aretw0/preflight/pkg/adapters/memory"
	"github.com/aretw0/preflight/pkg/domain"
	"github.com/aretw0/preflight/pkg/ports"
	"github.com/google/uuid"
)

const (
	// LockKey serializes runs that share an artifact directory.
	LockKey = "pipeline-run"

	// LockTTL bounds how long a crashed run can hold a distributed lock.
	LockTTL = 2 * time.Minute
)

// Recovery sources recorded in compose.json.
const (
	RecoveredFromPrevious = "previous_compose"
	RecoveredFromFallback = "fallback"
)

// Section titles written by the orchestrator itself.
const (
	TitleBlocked  = "PreCheck blocked"
	TitleFallback = "Composition unavailable"
)

// Run outcomes reported to metrics.
const (
	OutcomeComposed = "composed"
	OutcomeBlocked  = "blocked"
	OutcomeError    = "error"
)

// Pipeline is the orchestrator. It is safe for concurrent use; runs are serialized by the locker.
type Pipeline struct {
	store    ports.ArtifactStore
	locker   ports.Locker
	composer *compose.Composer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore overrides where artifacts are written. By default each run writes
// to the artifact directory of its resolved config.
func WithStore(store ports.ArtifactStore) Option {
	return func(p *Pipeline) {
		p.store = store
	}
}

// WithLocker sets the run lock. Defaults to an in-process lock.
func WithLocker(locker ports.Locker) Option {
	return func(p *Pipeline) {
		p.locker = locker
	}
}

// WithComposer sets the compose stage.
func WithComposer(c *compose.Composer) Option {
	return func(p *Pipeline) {
		p.composer = c
	}
}

// WithLogger configures a logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithClock overrides the time source used for generated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		locker: memory.NewLocker(),
		logger: logging.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.composer == nil {
		p.composer = compose.New(compose.WithLogger(p.logger))
	}
	return p
}

// run carries the state of one execution.
type run struct {
	id      string
	sha     string
	store   ports.ArtifactStore
	logger  *slog.Logger
	result  *domain.RunResult
	metrics *metrics.Metrics
	now     func() time.Time
}

func (r *run) advance(next domain.RunState) {
	if !r.result.State.CanTransition(next) {
		// Programming error: the stage order below is fixed.
		panic(fmt.Sprintf("pipeline: illegal transition %s -> %s", r.result.State, next))
	}
	r.logger.Debug("state", "from", r.result.State, "to", next)
	r.result.State = next
}

func (r *run) save(ctx context.Context, name string, v any) error {
	if err := r.store.Save(ctx, name, v); err != nil {
		return fmt.Errorf("failed to persist %s: %w", name, err)
	}
	r.result.Artifacts = append(r.result.Artifacts, name)
	return nil
}

// Run executes the pipeline for one payload.
// Configuration problems are returned before any artifact is written. A blocked
// request is not an error: the result's State is domain.StateBlocked.
func (p *Pipeline) Run(ctx context.Context, cfg *config.Resolved, payload domain.Payload) (*domain.RunResult, error) {
	if payload == nil {
		payload = domain.Payload{}
	}

	profilePath, err := cfg.ProjectProfileRulePath()
	if err != nil {
		return nil, err
	}
	guardPath, err := cfg.PrecheckGuardRulePath()
	if err != nil {
		return nil, err
	}
	cls, err := classifier.Load(profilePath, classifier.WithLogger(p.logger))
	if err != nil {
		return nil, err
	}
	guard := gate.Load(guardPath)

	sha, err := canon.SumObject(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to hash input: %w", err)
	}

	unlock, err := p.locker.Lock(ctx, LockKey, LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			p.logger.Warn("failed to release run lock", "error", err)
		}
	}()

	store := p.store
	if store == nil {
		store = file.New(cfg.ArtifactDir())
	}

	id := p.newID()
	r := &run{
		id:      id,
		sha:     sha,
		store:   store,
		logger:  p.logger.With("run_id", id, "pack", cfg.Settings.ActivePack),
		metrics: p.metrics,
		now:     p.now,
		result: &domain.RunResult{
			RunID:       id,
			InputSHA256: sha,
			State:       domain.StateReceived,
			Artifacts:   []string{},
		},
	}
	r.logger.Info("run started", "input_sha256", sha)

	if err := p.execute(ctx, r, cfg, cls, guard, payload); err != nil {
		p.metrics.Run(OutcomeError)
		r.logger.Error("run failed", "state", r.result.State, "error", err)
		return r.result, err
	}

	outcome := OutcomeComposed
	if r.result.Blocked() {
		outcome = OutcomeBlocked
	}
	p.metrics.Run(outcome)
	r.logger.Info("run finished", "state", r.result.State, "artifacts", len(r.result.Artifacts))
	return r.result, nil
}

func (p *Pipeline) execute(ctx context.Context, r *run, cfg *config.Resolved, cls *classifier.Classifier, guard *gate.Gate, payload domain.Payload) error {
	// Classify.
	start := time.Now()
	profile := cls.Classify(payload)
	profile.RunID, profile.GeneratedAt, profile.InputSHA256 = r.id, r.now().UTC(), r.sha
	if err := r.save(ctx, domain.ArtifactProjectProfile, profile); err != nil {
		return err
	}
	r.result.Profile = &profile
	r.advance(domain.StateClassified)
	p.metrics.Decision(string(profile.Decision))
	p.metrics.Stage("classify", start)

	// Region upgrade.
	start = time.Now()
	profileMap, err := canon.ToMap(profile)
	if err != nil {
		return fmt.Errorf("failed to flatten profile: %w", err)
	}
	up := region.Resolve(payload, profileMap, cfg)
	up.RunID, up.GeneratedAt, up.InputSHA256 = r.id, r.now().UTC(), r.sha
	if err := r.save(ctx, domain.ArtifactRegionUpgrade, up); err != nil {
		return err
	}
	r.result.Region = &up
	r.advance(domain.StateRegionResolved)
	p.metrics.Stage("region", start)

	// Domain resolution and pack selection.
	start = time.Now()
	kc := domainmap.Build(cfg, profile.ProjectType.Value, payload.Topic())
	kc.RunID, kc.GeneratedAt, kc.InputSHA256 = r.id, r.now().UTC(), r.sha
	if err := r.save(ctx, domain.ArtifactKGContext, kc); err != nil {
		return err
	}
	r.result.Context = &kc
	r.advance(domain.StateDomainResolved)
	p.metrics.Stage("domain", start)

	// PreCheck.
	start = time.Now()
	ev := guard.Evaluate(payload, profile)
	ev.RunID, ev.GeneratedAt, ev.InputSHA256 = r.id, r.now().UTC(), r.sha
	if err := r.save(ctx, domain.ArtifactPrecheckGuard, ev); err != nil {
		return err
	}
	r.result.Gate = &ev
	r.advance(domain.StateGated)
	for _, reason := range ev.Reasons {
		p.metrics.GateReason(reason.Code)
	}
	p.metrics.Stage("gate", start)

	out := domain.ComposeResult{
		RunID:       r.id,
		InputSHA256: r.sha,
		Topic:       payload.Topic(),
		Outline:     nonNil(payload.Outline()),
		Pack:        kc.Pack,
	}

	if !ev.Passed {
		out.Status = domain.ComposeBlocked
		out.Sections = []domain.Section{{Title: TitleBlocked, Content: ev.HumanReadable}}
		out.GeneratedAt = r.now().UTC()
		if err := r.save(ctx, domain.ArtifactCompose, out); err != nil {
			return err
		}
		r.result.Compose = &out
		r.advance(domain.StateBlocked)
		r.logger.Info("run blocked", "reasons", len(ev.Reasons))
		return nil
	}
	r.advance(domain.StateProceeding)

	// Compose.
	start = time.Now()
	artifacts := map[string]string{}
	for _, name := range r.result.Artifacts {
		artifacts[name] = r.store.Location(name)
	}
	res := p.composer.Compose(ctx, compose.Input{
		Payload:   payload,
		Profile:   profile,
		Region:    up,
		Context:   kc,
		Gate:      ev,
		Artifacts: artifacts,
	})

	out.Status = domain.ComposeOK
	if res.IsOK() {
		trace := domain.RetrieveTrace{
			RunID:       r.id,
			GeneratedAt: r.now().UTC(),
			InputSHA256: r.sha,
			Query:       res.Value.Query,
			Results:     nonNilEvidence(res.Value.Evidence),
		}
		if err := r.save(ctx, domain.ArtifactRetrieve, trace); err != nil {
			return err
		}
		out.Sections = res.Value.Sections
	} else {
		out.EnrichmentError = res.Err.Error()
		out.Sections, out.RecoveredFrom = p.recover(ctx, r)
		p.metrics.Recovery(out.RecoveredFrom)
		r.logger.Warn("compose failed, recovered",
			"stage", res.Err.Stage, "recovered_from", out.RecoveredFrom, "error", res.Err.Err)
	}

	out.GeneratedAt = r.now().UTC()
	if err := r.save(ctx, domain.ArtifactCompose, out); err != nil {
		return err
	}
	r.result.Compose = &out
	r.advance(domain.StateComposed)
	p.metrics.Stage("compose", start)
	return nil
}

// recover picks the sections of the last successful compose, or a single fallback section.
func (p *Pipeline) recover(ctx context.Context, r *run) ([]domain.Section, string) {
	var prev domain.ComposeResult
	err := r.store.Load(ctx, domain.ArtifactCompose, &prev)
	switch {
	case err == nil && prev.Status == domain.ComposeOK && len(prev.Sections) > 0:
		return prev.Sections, RecoveredFromPrevious
	case err != nil && !errors.Is(err, domain.ErrArtifactNotFound):
		r.logger.Warn("previous compose unreadable", "error", err)
	}
	return []domain.Section{{
		Title:   TitleFallback,
		Content: "Enrichment failed and no previous composition is available. Rerun once the evidence source is reachable.",
	}}, RecoveredFromFallback
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilEvidence(e []domain.Evidence) []domain.Evidence {
	if e == nil {
		return []domain.Evidence{}
	}
	return e
}
