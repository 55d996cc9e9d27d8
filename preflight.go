package preflight

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/preflight/internal/audit"
	"github.com/aretw0/preflight/internal/compose"
	"github.com/aretw0/preflight/internal/config"
	"github.com/aretw0/preflight/internal/logging"
	"github.com/aretw0/preflight/internal/metrics"
	"github.com/aretw0/preflight/internal/pipeline"
	"github.com/aretw0/preflight/pkg/adapters/file"
	"github.com/aretw0/preflight/pkg/adapters/memory"
	"github.com/aretw0/preflight/pkg/domain"
	"github.com/aretw0/preflight/pkg/packs"
	"github.com/aretw0/preflight/pkg/ports"
)

// DefaultSmokePayload is evaluated after a pack switch when no other payload is configured.
var DefaultSmokePayload = domain.Payload{
	"topic":        "合肥市政排水工程施工组织设计（雨污分流）",
	"project_type": "市政排水",
	"region":       "合肥",
	"outline":      []any{"工程概况", "施工准备", "施工方法", "质量安全"},
}

// Engine is the high-level entry point: it evaluates requests, audits the last run
// and administers packs for one project configuration.
type Engine struct {
	configPath string
	logger     *slog.Logger
	locker     ports.Locker
	retriever  ports.EvidenceRetriever
	store      ports.ArtifactStore
	artifacts  string
	metrics    *metrics.Metrics
	now        func() time.Time
	smoke      domain.Payload

	pipeline *pipeline.Pipeline
	auditor  *audit.Auditor
	packs    *packs.Manager
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLocker shares run and admin locks across processes (see pkg/adapters/redis).
// The same locker serializes pipeline runs and pack administration under different keys.
func WithLocker(l ports.Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithRetriever supplies evidence to the compose stage.
func WithRetriever(r ports.EvidenceRetriever) Option {
	return func(e *Engine) {
		e.retriever = r
	}
}

// WithArtifactStore replaces the file store rooted at the configured artifact directory.
func WithArtifactStore(s ports.ArtifactStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithArtifactDir writes and audits artifacts in dir instead of the configured artifact directory.
func WithArtifactDir(dir string) Option {
	return func(e *Engine) {
		e.artifacts = dir
		e.store = file.New(dir)
	}
}

// WithClock overrides the time source of every stamp the engine writes.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithSmokePayload sets the request evaluated by Smoke.
func WithSmokePayload(p domain.Payload) Option {
	return func(e *Engine) {
		e.smoke = p
	}
}

// New creates an Engine for the config file at configPath.
// The file is read on every operation, never cached.
func New(configPath string, opts ...Option) (*Engine, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path is required")
	}
	e := &Engine{
		configPath: configPath,
		locker:     memory.NewLocker(),
		logger:     logging.NewNop(),
		metrics:    metrics.New(),
		now:        time.Now,
		smoke:      DefaultSmokePayload,
	}
	for _, opt := range opts {
		opt(e)
	}

	composerOpts := []compose.Option{compose.WithLogger(e.logger)}
	if e.retriever != nil {
		composerOpts = append(composerOpts, compose.WithRetriever(e.retriever))
	}
	pipeOpts := []pipeline.Option{
		pipeline.WithLocker(e.locker),
		pipeline.WithLogger(e.logger),
		pipeline.WithMetrics(e.metrics),
		pipeline.WithClock(e.now),
		pipeline.WithComposer(compose.New(composerOpts...)),
	}
	auditOpts := []audit.Option{audit.WithLogger(e.logger), audit.WithClock(e.now)}
	if e.store != nil {
		pipeOpts = append(pipeOpts, pipeline.WithStore(e.store))
		auditOpts = append(auditOpts, audit.WithStore(e.store))
	}
	e.pipeline = pipeline.New(pipeOpts...)
	e.auditor = audit.New(auditOpts...)

	mgr, err := packs.NewManager(configPath,
		packs.WithLocker(e.locker),
		packs.WithLogger(e.logger),
		packs.WithMetrics(e.metrics),
		packs.WithClock(e.now),
	)
	if err != nil {
		return nil, err
	}
	e.packs = mgr
	e.configPath = mgr.ConfigPath()
	return e, nil
}

// ConfigPath returns the absolute path of the managed config file.
func (e *Engine) ConfigPath() string { return e.configPath }

// Packs returns the pack manager.
func (e *Engine) Packs() *packs.Manager { return e.packs }

// MetricsHandler serves the engine's Prometheus registry.
func (e *Engine) MetricsHandler() http.Handler { return e.metrics.Handler() }

// Resolve reads the current configuration.
func (e *Engine) Resolve() (*config.Resolved, error) {
	return config.Resolve(e.configPath)
}

// Evaluate runs the pipeline for payload against the active pack.
// A blocked request is not an error; check RunResult.Blocked.
func (e *Engine) Evaluate(ctx context.Context, payload domain.Payload) (*domain.RunResult, error) {
	cfg, err := e.Resolve()
	if err != nil {
		return nil, err
	}
	return e.pipeline.Run(ctx, cfg, payload)
}

// Audit recomputes the audit report of the last run from disk.
func (e *Engine) Audit(ctx context.Context) (*domain.AuditReport, error) {
	cfg, err := e.Resolve()
	if err != nil {
		return nil, err
	}
	return e.auditor.Report(ctx, cfg), nil
}

// PackStatus compares the active pack with the pack stamped in the last run.
func (e *Engine) PackStatus(ctx context.Context) (*domain.PackStatus, error) {
	cfg, err := e.Resolve()
	if err != nil {
		return nil, err
	}
	return e.auditor.PackStatus(ctx, cfg), nil
}

// Smoke evaluates the smoke payload against whatever pack is active when it is called.
// It fails unless the run composes.
func (e *Engine) Smoke(ctx context.Context) error {
	res, err := e.Evaluate(ctx, e.smoke)
	if err != nil {
		return err
	}
	if res.Blocked() {
		codes := make([]string, 0, len(res.Gate.Reasons))
		for _, r := range res.Gate.Reasons {
			codes = append(codes, r.Code)
		}
		return fmt.Errorf("smoke request blocked: %s", strings.Join(codes, ", "))
	}
	return nil
}

// Activate switches the active pack, optionally undoing the switch when Smoke fails.
func (e *Engine) Activate(ctx context.Context, id string, smoke bool) (*domain.HistoryEntry, error) {
	return e.packs.Activate(ctx, id, e.smokeFunc(smoke))
}

// Rollback restores the previous configuration, optionally verified by Smoke.
func (e *Engine) Rollback(ctx context.Context, to string, smoke bool) (*packs.RollbackResult, error) {
	return e.packs.Rollback(ctx, packs.RollbackOptions{To: to, Smoke: e.smokeFunc(smoke)})
}

// Eval compares the candidate pack with the active one using Smoke.
func (e *Engine) Eval(ctx context.Context, candidate string, keep bool) (*domain.EvalReport, error) {
	return e.packs.Eval(ctx, candidate, packs.EvalOptions{Smoke: e.Smoke, Keep: keep, Store: e.store, ArtifactDir: e.artifacts})
}

func (e *Engine) smokeFunc(enabled bool) packs.SmokeFunc {
	if !enabled {
		return nil
	}
	return e.Smoke
}
