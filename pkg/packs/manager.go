package packs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aretw0/preflight/internal/config"
	"github.com/aretw0/preflight/internal/logging"
	"github.com/aretw0/preflight/internal/metrics"
	"github.com/aretw0/preflight/pkg/adapters/memory"
	"github.com/aretw0/preflight/pkg/domain"
	"github.com/aretw0/preflight/pkg/ports"
)

const (
	// LockKey serializes pack administration.
	LockKey = "pack-admin"

	// LockTTL bounds how long a crashed administrator can hold a distributed lock.
	LockTTL = 5 * time.Minute

	// PacksDirName and BackupsDirName are relative to the config directory.
	PacksDirName   = "packs"
	BackupsDirName = "backups"
)

// SmokeFunc is run after a switch. A non-nil error undoes the switch.
type SmokeFunc func(ctx context.Context) error

// Manager administers the packs of one config file.
type Manager struct {
	configPath string
	root       string
	locker     ports.Locker
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLocker sets the admin lock. Defaults to an in-process lock.
func WithLocker(l ports.Locker) Option {
	return func(m *Manager) {
		m.locker = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics counts operations.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithClock overrides the time source for ledger entries, manifests and backup names.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager for the config file at configPath.
func NewManager(configPath string, opts ...Option) (*Manager, error) {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, &domain.ConfigError{Path: configPath, Reason: err.Error()}
	}
	m := &Manager{
		configPath: abs,
		root:       filepath.Dir(abs),
		locker:     memory.NewLocker(),
		logger:     logging.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ConfigPath returns the managed config file.
func (m *Manager) ConfigPath() string { return m.configPath }

// BackupsDir returns where config backups are kept.
func (m *Manager) BackupsDir() string { return filepath.Join(m.root, BackupsDirName) }

// PacksDir returns where pack snapshots live.
func (m *Manager) PacksDir() string { return filepath.Join(m.root, PacksDirName) }

func (m *Manager) withLock(ctx context.Context, op string, fn func() error) error {
	unlock, err := m.locker.Lock(ctx, LockKey, LockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire %s lock: %w", LockKey, err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("failed to release pack lock", "error", err)
		}
	}()
	err = fn()
	m.metrics.PackOp(op, err)
	return err
}

// state is the config as read at the start of an operation.
type state struct {
	file     *config.File
	settings config.Settings
}

func (m *Manager) load() (*state, error) {
	f, err := config.Read(m.configPath)
	if err != nil {
		return nil, err
	}
	s, err := f.Settings()
	if err != nil {
		return nil, err
	}
	return &state{file: f, settings: s}, nil
}

func (m *Manager) fromRoot(p string) string {
	if p == "" {
		return m.root
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(m.root, filepath.FromSlash(p))
}

// locate returns the base directory and manifest path of a pack, registered or not.
// The implicit default pack is the config directory itself.
func (m *Manager) locate(st *state, id string) (base, manifest string, registered bool, err error) {
	if p, ok := st.settings.Packs[id]; ok {
		base = m.fromRoot(p.BaseDir)
		manifest = filepath.Join(base, ManifestName)
		if p.Manifest != "" {
			manifest = m.fromRoot(p.Manifest)
		}
		if !isDir(base) {
			return "", "", true, fmt.Errorf("%w: pack=%s base_dir=%s", domain.ErrPackNotFound, id, base)
		}
		return base, manifest, true, nil
	}
	if id == domain.DefaultPackID {
		return m.root, filepath.Join(m.root, ManifestName), false, nil
	}
	base = filepath.Join(m.PacksDir(), id)
	if !isDir(base) {
		return "", "", false, fmt.Errorf("%w: %s (not registered and no directory %s)", domain.ErrPackNotFound, id, base)
	}
	return base, filepath.Join(base, ManifestName), false, nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func checkID(id string) error {
	if !config.ValidPackID(id) {
		return fmt.Errorf("%w: %q must match %s", domain.ErrInvalidPackID, id, config.PackIDPattern)
	}
	return nil
}

// List returns every registered pack plus the implicit default, sorted by id.
func (m *Manager) List() ([]domain.Pack, error) {
	st, err := m.load()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Pack, 0, len(st.settings.Packs)+1)
	if _, ok := st.settings.Packs[domain.DefaultPackID]; !ok {
		out = append(out, domain.Pack{ID: domain.DefaultPackID, BaseDir: "."})
	}
	for _, p := range st.settings.Packs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	for i := range out {
		out[i].Active = out[i].ID == st.settings.ActivePack
	}
	return out, nil
}

// Status summarizes the pack bookkeeping of the config.
type Status struct {
	ActivePack   string                `json:"active_pack"`
	BaseDir      string                `json:"base_dir,omitempty"`
	PreviousPack string                `json:"previous_pack,omitempty"`
	Packs        []string              `json:"packs"`
	History      []domain.HistoryEntry `json:"history"`
	Backups      int                   `json:"backups"`
	Error        string                `json:"error,omitempty"`
}

// Status reports the active pack, the ledger and how many backups can be rolled back.
func (m *Manager) Status() (*Status, error) {
	st, err := m.load()
	if err != nil {
		return nil, err
	}
	out := &Status{
		ActivePack:   st.settings.ActivePack,
		PreviousPack: st.settings.PreviousPack,
		Packs:        []string{},
		History:      st.settings.History,
	}
	if out.History == nil {
		out.History = []domain.HistoryEntry{}
	}
	if base, _, _, err := m.locate(st, st.settings.ActivePack); err != nil {
		out.Error = err.Error()
	} else {
		out.BaseDir = base
	}
	for id := range st.settings.Packs {
		out.Packs = append(out.Packs, id)
	}
	sort.Strings(out.Packs)
	backups, err := m.backups()
	if err != nil {
		return nil, err
	}
	out.Backups = len(backups)
	return out, nil
}

// CreateOptions controls Create.
type CreateOptions struct {
	ID          string
	From        string // Source pack; defaults to the active pack
	Version     string // Defaults to ID
	Description string
	Force       bool // Replace an existing pack directory
}

// Create snapshots every existing config-referenced file of the source pack into
// packs/<id>, writes its manifest and registers it. The active pack is not changed.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*domain.Manifest, error) {
	if err := checkID(opts.ID); err != nil {
		return nil, err
	}
	var man *domain.Manifest
	err := m.withLock(ctx, "create", func() error {
		var err error
		man, err = m.create(opts)
		return err
	})
	return man, err
}

func (m *Manager) create(opts CreateOptions) (*domain.Manifest, error) {
	st, err := m.load()
	if err != nil {
		return nil, err
	}
	src := opts.From
	if src == "" {
		src = st.settings.ActivePack
	}
	srcBase, _, _, err := m.locate(st, src)
	if err != nil {
		return nil, err
	}

	dst := filepath.Join(m.PacksDir(), opts.ID)
	if isDir(dst) {
		if !opts.Force {
			return nil, fmt.Errorf("%w: %s (use force to overwrite)", domain.ErrPackExists, dst)
		}
		if err := m.checkOverwritable(st, dst, srcBase); err != nil {
			return nil, err
		}
	}

	rels, _ := ExistingPaths(ReferencedPaths(st.file.Raw, srcBase), srcBase)
	if len(rels) == 0 {
		return nil, &domain.ConfigError{Path: m.configPath, Reason: "no existing asset paths referenced by the config"}
	}

	// The snapshot is built beside dst and only swapped in once its manifest is written.
	if err := os.MkdirAll(m.PacksDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create packs dir: %w", err)
	}
	tmp, err := os.MkdirTemp(m.PacksDir(), ".tmp-"+opts.ID+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	for _, rel := range rels {
		from := filepath.Join(srcBase, filepath.FromSlash(rel))
		to := filepath.Join(tmp, filepath.FromSlash(rel))
		if err := copyAsset(from, to); err != nil {
			return nil, fmt.Errorf("failed to copy %s: %w", rel, err)
		}
	}

	version := opts.Version
	if version == "" {
		version = opts.ID
	}
	now := m.now()
	man, err := BuildManifest(tmp, domain.Manifest{
		CreatedAt:   now.UTC(),
		PackID:      opts.ID,
		PackVersion: version,
		Description: opts.Description,
		SourcePack:  src,
	})
	if err != nil {
		return nil, err
	}
	if err := WriteManifest(tmp, man); err != nil {
		return nil, err
	}
	if err := swapDir(tmp, dst); err != nil {
		return nil, err
	}

	raw := st.file.Raw
	packs, _ := raw[config.KeyPacks].(map[string]any)
	if packs == nil {
		packs = map[string]any{}
	}
	entry := registration(opts.ID, version, now, true)
	if opts.Description != "" {
		entry["description"] = opts.Description
	}
	packs[opts.ID] = entry
	raw[config.KeyPacks] = packs

	if _, err := m.write(st.file, raw); err != nil {
		return nil, err
	}
	m.logger.Info("pack created", "pack", opts.ID, "source", src, "files", man.FileCount)
	return man, nil
}

// checkOverwritable refuses to replace the directory of the active pack or of the
// pack being copied from.
func (m *Manager) checkOverwritable(st *state, dst, srcBase string) error {
	if samePath(dst, srcBase) {
		return fmt.Errorf("%w: %s is the source of the snapshot", domain.ErrPackExists, dst)
	}
	if activeBase, _, _, err := m.locate(st, st.settings.ActivePack); err == nil && samePath(dst, activeBase) {
		return fmt.Errorf("%w: %s belongs to the active pack %s", domain.ErrPackExists, dst, st.settings.ActivePack)
	}
	return nil
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

// swapDir moves staged into dst, replacing any existing dst only after the move succeeds.
func swapDir(staged, dst string) error {
	if !isDir(dst) {
		if err := os.Rename(staged, dst); err != nil {
			return fmt.Errorf("failed to move snapshot into %s: %w", dst, err)
		}
		return nil
	}
	old := staged + ".old"
	if err := os.Rename(dst, old); err != nil {
		return fmt.Errorf("failed to move aside %s: %w", dst, err)
	}
	if err := os.Rename(staged, dst); err != nil {
		if rerr := os.Rename(old, dst); rerr != nil {
			return fmt.Errorf("failed to move snapshot into %s: %w (previous pack left at %s)", dst, err, old)
		}
		return fmt.Errorf("failed to move snapshot into %s: %w", dst, err)
	}
	return os.RemoveAll(old)
}

func registration(id, version string, at time.Time, withManifest bool) map[string]any {
	base := PacksDirName + "/" + id
	entry := map[string]any{
		"base_dir":       base,
		"pack_version":   version,
		"schema_version": domain.ManifestSchemaVersion,
		"created_at":     timestamp(at),
		"manifest":       "",
	}
	if withManifest {
		entry["manifest"] = base + "/" + ManifestName
	}
	return entry
}

// Validate checks a pack (the active one when id is empty) against its manifest.
// Any missing file or hash mismatch yields a *domain.IntegrityError alongside the report.
// A pack without manifest validates with a warning.
func (m *Manager) Validate(id string) (*domain.ValidationReport, error) {
	st, err := m.load()
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = st.settings.ActivePack
	}
	return m.validate(st, id)
}

func (m *Manager) validate(st *state, id string) (*domain.ValidationReport, error) {
	base, manifestPath, _, err := m.locate(st, id)
	if err != nil {
		return nil, err
	}
	rep := &domain.ValidationReport{PackID: id, BaseDir: base}

	_, missing := ExistingPaths(ReferencedPaths(st.file.Raw, base), base)
	for _, rel := range missing {
		rep.Warnings = append(rep.Warnings, "config-referenced asset not in pack: "+rel)
	}

	man, err := ReadManifest(manifestPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		rep.Warnings = append(rep.Warnings, "manifest.json not found; hash validation skipped")
	case err != nil:
		rep.Problems = append(rep.Problems, err.Error())
	default:
		rep.ManifestChecked = true
		rep.FilesChecked, rep.Problems = VerifyManifest(base, man)
	}

	rep.OK = len(rep.Problems) == 0
	if !rep.OK {
		return rep, &domain.IntegrityError{PackID: id, Problems: rep.Problems}
	}
	return rep, nil
}

// Activate switches the active pack after validating it. An unregistered directory
// packs/<id> is registered on the way. When smoke is set and fails, the exact
// pre-activation config is restored and domain.ErrSmokeFailed is returned.
func (m *Manager) Activate(ctx context.Context, id string, smoke SmokeFunc) (*domain.HistoryEntry, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var entry *domain.HistoryEntry
	err := m.withLock(ctx, "activate", func() error {
		var err error
		entry, err = m.activate(ctx, id, smoke)
		return err
	})
	return entry, err
}

func (m *Manager) activate(ctx context.Context, id string, smoke SmokeFunc) (*domain.HistoryEntry, error) {
	st, err := m.load()
	if err != nil {
		return nil, err
	}
	raw := st.file.Raw
	now := m.now()

	if _, ok := st.settings.Packs[id]; !ok && id != domain.DefaultPackID {
		dir := filepath.Join(m.PacksDir(), id)
		if !isDir(dir) {
			return nil, fmt.Errorf("%w: %s (not registered and no directory %s)", domain.ErrPackNotFound, id, dir)
		}
		packs, _ := raw[config.KeyPacks].(map[string]any)
		if packs == nil {
			packs = map[string]any{}
		}
		_, statErr := os.Stat(filepath.Join(dir, ManifestName))
		packs[id] = registration(id, id, now, statErr == nil)
		raw[config.KeyPacks] = packs
		// Validate against the registration being written.
		if st.settings.Packs == nil {
			st.settings.Packs = map[string]domain.Pack{}
		}
		st.settings.Packs[id] = domain.Pack{ID: id, BaseDir: PacksDirName + "/" + id}
		m.logger.Info("pack auto-registered", "pack", id)
	}

	if _, err := m.validate(st, id); err != nil {
		return nil, fmt.Errorf("activate blocked: %w", err)
	}

	prev := st.settings.ActivePack
	entry := domain.HistoryEntry{From: prev, To: id, At: timestamp(now)}

	history, _ := raw[config.KeyPackHistory].([]any)
	history = append(history, map[string]any{"from": entry.From, "to": entry.To, "at": entry.At})
	if len(history) > domain.MaxHistory {
		history = history[len(history)-domain.MaxHistory:]
	}
	raw[config.KeyPrevPack] = prev
	raw[config.KeyPackHistory] = history
	raw[config.KeyActivePack] = id

	backup, err := m.write(st.file, raw)
	if err != nil {
		return nil, err
	}
	m.logger.Info("pack activated", "from", prev, "to", id, "backup", backup)

	if smoke == nil {
		return &entry, nil
	}
	if serr := smoke(ctx); serr != nil {
		if err := m.restore(st.file.Bytes); err != nil {
			return nil, fmt.Errorf("%w: %v; restoring previous config also failed: %v", domain.ErrSmokeFailed, serr, err)
		}
		// The backup now equals the live config; keep the rollback chain meaningful.
		_ = os.Remove(backup)
		m.logger.Warn("smoke failed, config restored", "pack", id, "error", serr)
		return nil, fmt.Errorf("%w: %v", domain.ErrSmokeFailed, serr)
	}
	return &entry, nil
}

// RollbackOptions controls Rollback.
type RollbackOptions struct {
	To    string // Explicit target pack; activates it
	Smoke SmokeFunc
}

// RollbackResult describes what a rollback did.
type RollbackResult struct {
	Method     string `json:"method"` // "target", "backup" or "previous"
	Backup     string `json:"backup,omitempty"`
	ActivePack string `json:"active_pack"`
}

// Rollback methods.
const (
	RollbackTarget   = "target"
	RollbackBackup   = "backup"
	RollbackPrevious = "previous"
)

// Rollback restores the most recent config backup byte for byte and consumes it,
// so repeated rollbacks walk back through history. With an explicit target, or
// when no backup remains, it activates the target or the ledger's previous pack.
func (m *Manager) Rollback(ctx context.Context, opts RollbackOptions) (*RollbackResult, error) {
	if opts.To != "" {
		if err := checkID(opts.To); err != nil {
			return nil, err
		}
	}
	var res *RollbackResult
	err := m.withLock(ctx, "rollback", func() error {
		var err error
		res, err = m.rollback(ctx, opts)
		return err
	})
	return res, err
}

func (m *Manager) rollback(ctx context.Context, opts RollbackOptions) (*RollbackResult, error) {
	if opts.To != "" {
		if _, err := m.activate(ctx, opts.To, opts.Smoke); err != nil {
			return nil, err
		}
		return &RollbackResult{Method: RollbackTarget, ActivePack: opts.To}, nil
	}

	backups, err := m.backups()
	if err != nil {
		return nil, err
	}
	if len(backups) > 0 {
		latest := backups[len(backups)-1]
		data, err := os.ReadFile(latest)
		if err != nil {
			return nil, fmt.Errorf("failed to read backup %s: %w", latest, err)
		}
		current, err := os.ReadFile(m.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := m.restore(data); err != nil {
			return nil, err
		}
		if opts.Smoke != nil {
			if serr := opts.Smoke(ctx); serr != nil {
				if err := m.restore(current); err != nil {
					return nil, fmt.Errorf("%w: %v; restoring config also failed: %v", domain.ErrSmokeFailed, serr, err)
				}
				return nil, fmt.Errorf("%w: %v", domain.ErrSmokeFailed, serr)
			}
		}
		if err := os.Remove(latest); err != nil {
			return nil, fmt.Errorf("failed to consume backup %s: %w", latest, err)
		}
		st, err := m.load()
		if err != nil {
			return nil, err
		}
		m.logger.Info("config restored from backup", "backup", latest, "active_pack", st.settings.ActivePack)
		return &RollbackResult{Method: RollbackBackup, Backup: latest, ActivePack: st.settings.ActivePack}, nil
	}

	st, err := m.load()
	if err != nil {
		return nil, err
	}
	prev := st.settings.PreviousPack
	if prev == "" {
		return nil, domain.ErrNoRollbackTarget
	}
	if _, err := m.activate(ctx, prev, opts.Smoke); err != nil {
		return nil, err
	}
	return &RollbackResult{Method: RollbackPrevious, ActivePack: prev}, nil
}
