package packs_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/preflight/internal/config"
	"github.com/aretw0/preflight/internal/testutils"
	"github.com/aretw0/preflight/pkg/domain"
	"github.com/aretw0/preflight/pkg/packs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*testutils.Project, *packs.Manager) {
	t.Helper()
	p := testutils.SetupProject(t)
	m, err := packs.NewManager(p.ConfigPath())
	require.NoError(t, err)
	return p, m
}

func create(t *testing.T, m *packs.Manager, id string) *domain.Manifest {
	t.Helper()
	man, err := m.Create(context.Background(), packs.CreateOptions{ID: id, Description: "snapshot"})
	require.NoError(t, err)
	return man
}

func activePack(t *testing.T, p *testutils.Project) string {
	t.Helper()
	var cfg map[string]any
	require.NoError(t, json.Unmarshal(p.Read(t, testutils.ConfigFile), &cfg))
	s, _ := cfg["active_pack"].(string)
	return s
}

func TestCreate(t *testing.T) {
	p, m := newManager(t)

	man := create(t, m, "v2")

	assert.Equal(t, "v2", man.PackID)
	assert.Equal(t, "v2", man.PackVersion)
	assert.Equal(t, domain.DefaultPackID, man.SourcePack)
	assert.Equal(t, domain.ManifestSchemaVersion, man.SchemaVersion)
	// Profile, guard, region, domain map and six packs.
	assert.Equal(t, 10, man.FileCount)
	assert.Equal(t, "kg/Civil_Basic_Pack.json", man.Files[0].Path)
	assert.FileExists(t, p.Path("packs/v2/rules/project_profile_rules.json"))
	assert.FileExists(t, p.Path("packs/v2/manifest.json"))

	cfg, err := config.Resolve(p.ConfigPath())
	require.NoError(t, err)
	reg, ok := cfg.Settings.Packs["v2"]
	require.True(t, ok)
	assert.Equal(t, "packs/v2", reg.BaseDir)
	assert.Equal(t, "packs/v2/manifest.json", reg.Manifest)
	assert.Equal(t, "snapshot", reg.Description)
	assert.Equal(t, domain.DefaultPackID, cfg.Settings.ActivePack, "create does not activate")

	_, err = m.Create(context.Background(), packs.CreateOptions{ID: "v2"})
	assert.ErrorIs(t, err, domain.ErrPackExists)

	_, err = m.Create(context.Background(), packs.CreateOptions{ID: "v2", Force: true})
	assert.NoError(t, err)
}

func TestCreate_ForceReplaces(t *testing.T) {
	p, m := newManager(t)
	create(t, m, "v2")
	p.Write(t, "packs/v2/stale.json", "{}")

	_, err := m.Create(context.Background(), packs.CreateOptions{ID: "v2", Force: true})
	require.NoError(t, err)
	assert.NoFileExists(t, p.Path("packs/v2/stale.json"))

	rep, err := m.Validate("v2")
	require.NoError(t, err)
	assert.True(t, rep.ManifestChecked)

	entries, err := os.ReadDir(p.Path("packs"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no staging directory is left behind")
	assert.Equal(t, "v2", entries[0].Name())
}

func TestCreate_ForceRefusesActivePack(t *testing.T) {
	p, m := newManager(t)
	ctx := context.Background()
	create(t, m, "v2")
	_, err := m.Activate(ctx, "v2", nil)
	require.NoError(t, err)
	before := p.Read(t, "packs/v2/manifest.json")

	_, err = m.Create(ctx, packs.CreateOptions{ID: "v2", Force: true})
	assert.ErrorIs(t, err, domain.ErrPackExists)

	assert.Equal(t, before, p.Read(t, "packs/v2/manifest.json"))
	cfg, err := config.Resolve(p.ConfigPath())
	require.NoError(t, err)
	assert.Equal(t, "v2", cfg.Settings.ActivePack)
	_, err = m.Validate("v2")
	assert.NoError(t, err)
}

func TestCreate_ForceRefusesSourcePack(t *testing.T) {
	p, m := newManager(t)
	create(t, m, "v2")

	_, err := m.Create(context.Background(), packs.CreateOptions{ID: "v2", From: "v2", Force: true})
	assert.ErrorIs(t, err, domain.ErrPackExists)
	assert.FileExists(t, p.Path("packs/v2/kg/Civil_Basic_Pack.json"))
}

func TestCreate_FailedForceKeepsExisting(t *testing.T) {
	p, m := newManager(t)
	create(t, m, "v2")
	require.NoError(t, os.MkdirAll(p.Path("packs/empty"), 0755))

	_, err := m.Create(context.Background(), packs.CreateOptions{ID: "v2", From: "empty", Force: true})
	assert.ErrorIs(t, err, domain.ErrConfig)

	_, err = m.Validate("v2")
	assert.NoError(t, err)
}

func TestCreate_InvalidID(t *testing.T) {
	_, m := newManager(t)
	for _, id := range []string{"", ".hidden", "../x", "a b"} {
		_, err := m.Create(context.Background(), packs.CreateOptions{ID: id})
		assert.ErrorIs(t, err, domain.ErrInvalidPackID, id)
	}
}

func TestValidate(t *testing.T) {
	p, m := newManager(t)
	create(t, m, "v2")

	rep, err := m.Validate("v2")
	require.NoError(t, err)
	assert.True(t, rep.OK)
	assert.True(t, rep.ManifestChecked)
	assert.Equal(t, 10, rep.FilesChecked)

	t.Run("default pack without manifest warns", func(t *testing.T) {
		rep, err := m.Validate("")
		require.NoError(t, err)
		assert.True(t, rep.OK)
		assert.False(t, rep.ManifestChecked)
		assert.Contains(t, rep.Warnings, "manifest.json not found; hash validation skipped")
	})

	t.Run("mismatch", func(t *testing.T) {
		p.WriteJSON(t, "packs/v2/kg/Civil_Basic_Pack.json", map[string]any{"tampered": true})
		rep, err := m.Validate("v2")
		var ierr *domain.IntegrityError
		require.ErrorAs(t, err, &ierr)
		assert.ErrorIs(t, err, domain.ErrPackInvalid)
		assert.Equal(t, []string{"sha256 mismatch: kg/Civil_Basic_Pack.json"}, ierr.Problems)
		assert.False(t, rep.OK)
	})

	t.Run("missing file", func(t *testing.T) {
		p.Remove(t, "packs/v2/kg/domain_map.json")
		_, err := m.Validate("v2")
		var ierr *domain.IntegrityError
		require.ErrorAs(t, err, &ierr)
		assert.Contains(t, ierr.Problems, "missing file: kg/domain_map.json")
	})

	t.Run("unknown pack", func(t *testing.T) {
		_, err := m.Validate("nope")
		assert.ErrorIs(t, err, domain.ErrPackNotFound)
	})
}

func TestActivateRollback_ByteIdentical(t *testing.T) {
	p, m := newManager(t)
	ctx := context.Background()
	original := p.Read(t, testutils.ConfigFile)

	create(t, m, "v2")
	beforeActivate := p.Read(t, testutils.ConfigFile)

	entry, err := m.Activate(ctx, "v2", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPackID, entry.From)
	assert.Equal(t, "v2", entry.To)
	assert.Equal(t, "v2", activePack(t, p))

	cfg, err := config.Resolve(p.ConfigPath())
	require.NoError(t, err)
	assert.Equal(t, p.Path("packs/v2"), cfg.BaseDir)
	assert.Equal(t, domain.DefaultPackID, cfg.Settings.PreviousPack)
	require.Len(t, cfg.Settings.History, 1)

	res, err := m.Rollback(ctx, packs.RollbackOptions{})
	require.NoError(t, err)
	assert.Equal(t, packs.RollbackBackup, res.Method)
	assert.Equal(t, domain.DefaultPackID, res.ActivePack)
	assert.Equal(t, beforeActivate, p.Read(t, testutils.ConfigFile))

	// The backup was consumed: the next rollback undoes the create.
	_, err = m.Rollback(ctx, packs.RollbackOptions{})
	require.NoError(t, err)
	assert.Equal(t, original, p.Read(t, testutils.ConfigFile))

	_, err = m.Rollback(ctx, packs.RollbackOptions{})
	assert.ErrorIs(t, err, domain.ErrNoRollbackTarget)
}

func TestActivate_RefusesInvalidPack(t *testing.T) {
	p, m := newManager(t)
	create(t, m, "v2")
	p.WriteJSON(t, "packs/v2/rules/precheck_guard_rules.json", map[string]any{"required_fields": []any{"x"}})
	before := p.Read(t, testutils.ConfigFile)

	_, err := m.Activate(context.Background(), "v2", nil)
	assert.ErrorIs(t, err, domain.ErrPackInvalid)
	assert.Equal(t, before, p.Read(t, testutils.ConfigFile))
}

func TestActivate_SmokeFailureRestores(t *testing.T) {
	p, m := newManager(t)
	create(t, m, "v2")
	before := p.Read(t, testutils.ConfigFile)
	st, err := m.Status()
	require.NoError(t, err)
	backups := st.Backups

	called := false
	_, err = m.Activate(context.Background(), "v2", func(ctx context.Context) error {
		called = true
		assert.Equal(t, "v2", activePack(t, p), "smoke runs against the new pack")
		return errors.New("compose produced no sections")
	})
	require.True(t, called)
	assert.ErrorIs(t, err, domain.ErrSmokeFailed)
	assert.Equal(t, before, p.Read(t, testutils.ConfigFile))

	st, err = m.Status()
	require.NoError(t, err)
	assert.Equal(t, backups, st.Backups)
}

func TestActivate_HistoryBounded(t *testing.T) {
	p, m := newManager(t)
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	m2, err := packs.NewManager(p.ConfigPath(), packs.WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	create(t, m, "v2")

	ctx := context.Background()
	targets := []string{"v2", domain.DefaultPackID}
	for i := 0; i < domain.MaxHistory+5; i++ {
		_, err := m2.Activate(ctx, targets[i%2], nil)
		require.NoError(t, err)
	}

	cfg, err := config.Resolve(p.ConfigPath())
	require.NoError(t, err)
	require.Len(t, cfg.Settings.History, domain.MaxHistory)
	last := cfg.Settings.History[domain.MaxHistory-1]
	assert.Equal(t, domain.DefaultPackID, last.From)
	assert.Equal(t, "v2", last.To)
	assert.Equal(t, "2024-06-01T00:00:00Z", last.At)

	st, err := m2.Status()
	require.NoError(t, err)
	assert.Equal(t, domain.MaxHistory+5+1, st.Backups, "identical timestamps still yield distinct backups")
}

func TestActivate_AutoRegisters(t *testing.T) {
	p, m := newManager(t)
	for _, rel := range []string{testutils.ProfileRulesFile, testutils.GuardRulesFile} {
		p.Write(t, filepath.Join("packs/manual", rel), string(p.Read(t, rel)))
	}

	_, err := m.Activate(context.Background(), "manual", nil)
	require.NoError(t, err)

	cfg, err := config.Resolve(p.ConfigPath())
	require.NoError(t, err)
	reg := cfg.Settings.Packs["manual"]
	assert.Equal(t, "packs/manual", reg.BaseDir)
	assert.Empty(t, reg.Manifest)
	assert.Equal(t, "manual", cfg.Settings.ActivePack)

	_, err = m.Activate(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, domain.ErrPackNotFound)
}

func TestRollback_PreviousAndTarget(t *testing.T) {
	p, m := newManager(t)
	ctx := context.Background()
	create(t, m, "v2")
	_, err := m.Activate(ctx, "v2", nil)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(m.BackupsDir()))

	res, err := m.Rollback(ctx, packs.RollbackOptions{})
	require.NoError(t, err)
	assert.Equal(t, packs.RollbackPrevious, res.Method)
	assert.Equal(t, domain.DefaultPackID, activePack(t, p))

	res, err = m.Rollback(ctx, packs.RollbackOptions{To: "v2"})
	require.NoError(t, err)
	assert.Equal(t, packs.RollbackTarget, res.Method)
	assert.Equal(t, "v2", activePack(t, p))
}

func TestListAndStatus(t *testing.T) {
	_, m := newManager(t)
	create(t, m, "v2")
	_, err := m.Activate(context.Background(), "v2", nil)
	require.NoError(t, err)

	list, err := m.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.DefaultPackID, list[0].ID)
	assert.False(t, list[0].Active)
	assert.Equal(t, "v2", list[1].ID)
	assert.True(t, list[1].Active)

	st, err := m.Status()
	require.NoError(t, err)
	assert.Equal(t, "v2", st.ActivePack)
	assert.Equal(t, domain.DefaultPackID, st.PreviousPack)
	assert.Equal(t, []string{"v2"}, st.Packs)
	assert.Equal(t, 2, st.Backups)
	assert.Empty(t, st.Error)
}
