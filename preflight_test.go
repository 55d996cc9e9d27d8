package preflight_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/aretw0/preflight"
	"github.com/aretw0/preflight/internal/testutils"
	"github.com/aretw0/preflight/pkg/adapters/memory"
	"github.com/aretw0/preflight/pkg/domain"
	"github.com/aretw0/preflight/pkg/packs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var decoration = domain.Payload{
	"topic":   "住宅楼精装修施工方案",
	"outline": []any{"施工准备", "施工方法"},
}

func newEngine(t *testing.T, opts ...preflight.Option) (*testutils.Project, *preflight.Engine) {
	t.Helper()
	p := testutils.SetupProject(t)
	eng, err := preflight.New(p.ConfigPath(), opts...)
	require.NoError(t, err)
	return p, eng
}

func TestEngine_EvaluateAndAudit(t *testing.T) {
	p, eng := newEngine(t)
	ctx := context.Background()

	res, err := eng.Evaluate(ctx, decoration)
	require.NoError(t, err)
	assert.Equal(t, domain.StateComposed, res.State)
	assert.FileExists(t, p.Path("build/compose.json"))

	report, err := eng.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.Replay.Replayable)
	assert.Empty(t, report.Replay.Missing)
	assert.Empty(t, report.Replay.Stale)

	st, err := eng.PackStatus(ctx)
	require.NoError(t, err)
	assert.False(t, st.Stale)
	assert.Equal(t, domain.DefaultPackID, st.Current.ActivePack)
}

func TestEngine_BlockedIsNotAnError(t *testing.T) {
	_, eng := newEngine(t)

	res, err := eng.Evaluate(context.Background(), domain.Payload{"topic": "住宅楼精装修施工方案"})
	require.NoError(t, err)
	assert.True(t, res.Blocked())
	require.NotNil(t, res.Compose)
	assert.Equal(t, domain.ComposeBlocked, res.Compose.Status)
}

func TestEngine_ArtifactStore(t *testing.T) {
	store := memory.NewStore()
	p, eng := newEngine(t, preflight.WithArtifactStore(store))
	ctx := context.Background()

	_, err := eng.Evaluate(ctx, decoration)
	require.NoError(t, err)
	assert.Contains(t, store.Names(), domain.ArtifactCompose)
	assert.NoDirExists(t, p.Path("build"))

	report, err := eng.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.Replay.Replayable)
}

func TestEngine_ConfigError(t *testing.T) {
	eng, err := preflight.New(t.TempDir() + "/kg_config.json")
	require.NoError(t, err)

	_, err = eng.Evaluate(context.Background(), decoration)
	assert.ErrorIs(t, err, domain.ErrConfig)
	_, err = eng.Audit(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfig)

	_, err = preflight.New("")
	assert.Error(t, err)
}

func TestEngine_Smoke(t *testing.T) {
	_, eng := newEngine(t)
	assert.NoError(t, eng.Smoke(context.Background()))

	_, blocking := newEngine(t, preflight.WithSmokePayload(domain.Payload{"topic": "x"}))
	err := blocking.Smoke(context.Background())
	assert.ErrorContains(t, err, domain.ReasonOutlineEmpty)
}

func TestEngine_ActivateWithSmoke(t *testing.T) {
	p, eng := newEngine(t)
	ctx := context.Background()

	_, err := eng.Packs().Create(ctx, packs.CreateOptions{ID: "strict"})
	require.NoError(t, err)
	// A pack whose guard demands a field the smoke request lacks.
	p.WriteJSON(t, "packs/strict/rules/precheck_guard_rules.json", map[string]any{
		"required_fields": []any{"budget"},
	})
	dir := p.Path("packs/strict")
	man, err := packs.BuildManifest(dir, domain.Manifest{PackID: "strict"})
	require.NoError(t, err)
	require.NoError(t, packs.WriteManifest(dir, man))
	before := p.Read(t, testutils.ConfigFile)

	_, err = eng.Activate(ctx, "strict", true)
	assert.ErrorIs(t, err, domain.ErrSmokeFailed)
	assert.Equal(t, before, p.Read(t, testutils.ConfigFile))

	entry, err := eng.Activate(ctx, "strict", false)
	require.NoError(t, err)
	assert.Equal(t, "strict", entry.To)

	res, err := eng.Rollback(ctx, "", true)
	require.NoError(t, err)
	assert.Equal(t, packs.RollbackBackup, res.Method)
	assert.Equal(t, before, p.Read(t, testutils.ConfigFile))
}

func TestEngine_Eval(t *testing.T) {
	_, eng := newEngine(t)
	ctx := context.Background()
	_, err := eng.Packs().Create(ctx, packs.CreateOptions{ID: "v2"})
	require.NoError(t, err)

	rep, err := eng.Eval(ctx, "v2", false)
	require.NoError(t, err)
	assert.Equal(t, "v2", rep.Candidate)
	assert.Contains(t, rep.Diff, "kg_active_pack")

	st, err := eng.Packs().Status()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPackID, st.ActivePack)
}

func TestEngine_EvalWithArtifactStore(t *testing.T) {
	store := memory.NewStore()
	p, eng := newEngine(t, preflight.WithArtifactStore(store))
	ctx := context.Background()
	_, err := eng.Packs().Create(ctx, packs.CreateOptions{ID: "v2"})
	require.NoError(t, err)

	rep, err := eng.Eval(ctx, "v2", false)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPackID, rep.Before["kg_active_pack"])
	assert.Equal(t, "v2", rep.After["kg_active_pack"])
	assert.Equal(t, string(domain.ComposeOK), rep.After["compose_status"])
	require.Contains(t, rep.Diff, "kg_active_pack")

	assert.Contains(t, store.Names(), domain.ArtifactPackEval)
	assert.NoDirExists(t, p.Path("build"))
}

func TestEngine_Metrics(t *testing.T) {
	_, eng := newEngine(t)
	_, err := eng.Evaluate(context.Background(), decoration)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	eng.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `preflight_runs_total{outcome="composed"} 1`)
}

func TestEngine_ArtifactDir(t *testing.T) {
	dir := t.TempDir()
	p, eng := newEngine(t, preflight.WithArtifactDir(dir))
	ctx := context.Background()
	_, err := eng.Packs().Create(ctx, packs.CreateOptions{ID: "v2"})
	require.NoError(t, err)

	rep, err := eng.Eval(ctx, "v2", false)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPackID, rep.Before["kg_active_pack"])
	assert.Equal(t, "v2", rep.After["kg_active_pack"])
	assert.FileExists(t, filepath.Join(dir, "kg_pack_eval.json"))
	assert.FileExists(t, filepath.Join(dir, "compose.json"))
	assert.NoDirExists(t, p.Path("build"))
}
