package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aretw0/preflight"
	"github.com/aretw0/preflight/internal/testutils"
	httpAdapter "github.com/aretw0/preflight/pkg/adapters/http"
	"github.com/aretw0/preflight/pkg/domain"
	"github.com/aretw0/preflight/pkg/packs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*testutils.Project, http.Handler) {
	t.Helper()
	p := testutils.SetupProject(t)
	eng, err := preflight.New(p.ConfigPath())
	require.NoError(t, err)
	return p, httpAdapter.NewHandler(eng)
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	_, h := setup(t)
	w := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, preflight.Version, decode[map[string]string](t, w)["version"])
}

func TestEvaluateThenAudit(t *testing.T) {
	_, h := setup(t)

	w := do(t, h, http.MethodGet, "/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	empty := decode[domain.AuditReport](t, w)
	assert.False(t, empty.Replay.Replayable)
	assert.Len(t, empty.Replay.Missing, len(domain.ExpectedArtifacts))

	w = do(t, h, http.MethodPost, "/evaluate", map[string]any{
		"topic":   "住宅楼精装修施工方案",
		"outline": []any{"施工准备"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[domain.RunResult](t, w)
	assert.Equal(t, domain.StateComposed, res.State)

	w = do(t, h, http.MethodGet, "/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[domain.AuditReport](t, w).Replay.Replayable)

	w = do(t, h, http.MethodGet, "/audit/pack", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[domain.PackStatus](t, w).Stale)

	w = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "preflight_runs_total")
}

func TestEvaluate_Blocked(t *testing.T) {
	_, h := setup(t)
	w := do(t, h, http.MethodPost, "/evaluate", map[string]any{"topic": ""})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StateBlocked, decode[domain.RunResult](t, w).State)
}

func TestEvaluate_BadBody(t *testing.T) {
	_, h := setup(t)
	req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPackLifecycle(t *testing.T) {
	p, h := setup(t)
	original := p.Read(t, testutils.ConfigFile)

	w := do(t, h, http.MethodPost, "/packs", httpAdapter.CreatePackRequest{ID: "v2", Description: "june"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "v2", decode[domain.Manifest](t, w).PackID)

	w = do(t, h, http.MethodPost, "/packs", httpAdapter.CreatePackRequest{ID: "v2"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodGet, "/packs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.Pack](t, w), 2)

	w = do(t, h, http.MethodGet, "/packs/v2/validate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[domain.ValidationReport](t, w).OK)

	w = do(t, h, http.MethodPost, "/packs/v2/activate?smoke=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "v2", decode[domain.HistoryEntry](t, w).To)

	w = do(t, h, http.MethodGet, "/packs/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "v2", decode[packs.Status](t, w).ActivePack)

	w = do(t, h, http.MethodPost, "/packs/rollback", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, packs.RollbackBackup, decode[packs.RollbackResult](t, w).Method)

	w = do(t, h, http.MethodPost, "/packs/rollback", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, original, p.Read(t, testutils.ConfigFile))

	w = do(t, h, http.MethodPost, "/packs/rollback", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestValidate_Failing(t *testing.T) {
	p, h := setup(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/packs", httpAdapter.CreatePackRequest{ID: "v2"}).Code)
	p.Remove(t, "packs/v2/kg/domain_map.json")

	w := do(t, h, http.MethodGet, "/packs/v2/validate", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	rep := decode[domain.ValidationReport](t, w)
	assert.False(t, rep.OK)
	assert.Contains(t, rep.Problems, "missing file: kg/domain_map.json")

	w = do(t, h, http.MethodPost, "/packs/v2/activate", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode[httpAdapter.ErrorResponse](t, w).Problems, "missing file: kg/domain_map.json")
}

func TestPackErrors(t *testing.T) {
	_, h := setup(t)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/packs/ghost/validate", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/packs/ghost/activate", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/packs/.bad/activate", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/packs/v2/activate?smoke=maybe", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/packs", httpAdapter.CreatePackRequest{ID: "a b"}).Code)
}

func TestEvalPack(t *testing.T) {
	_, h := setup(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/packs", httpAdapter.CreatePackRequest{ID: "v2"}).Code)

	w := do(t, h, http.MethodPost, "/packs/v2/eval?keep=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rep := decode[domain.EvalReport](t, w)
	assert.True(t, rep.Kept)
	assert.Equal(t, domain.DefaultPackID, rep.Baseline)

	w = do(t, h, http.MethodGet, "/packs/status", nil)
	assert.Equal(t, "v2", decode[packs.Status](t, w).ActivePack)
}
