package packs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aretw0/preflight/internal/config"
	"github.com/aretw0/preflight/pkg/adapters/file"
	"github.com/aretw0/preflight/pkg/domain"
	"github.com/aretw0/preflight/pkg/ports"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// EvalMetricKeys are compared between baseline and candidate, in report order.
var EvalMetricKeys = []string{
	"kg_active_pack",
	"kg_manifest_sha256",
	"domain_key",
	"selected_packs_count",
	"selected_packs_names",
	"retrieve_results_count",
	"retrieve_sources",
	"compose_status",
	"compose_sections_count",
	"compose_first_titles",
}

// metricArtifacts have their encoded sizes compared.
var metricArtifacts = []string{domain.ArtifactKGContext, domain.ArtifactRetrieve, domain.ArtifactCompose}

const maxTitles = 8

// EvalOptions controls Eval.
type EvalOptions struct {
	// Smoke runs the pipeline against the active pack. It is required: the
	// metrics are read from the artifacts it leaves behind.
	Smoke SmokeFunc
	// Keep leaves the candidate active instead of restoring the baseline.
	Keep bool
	// Store is where Smoke leaves its artifacts and where the report is saved.
	// Defaults to a file store in ArtifactDir.
	Store ports.ArtifactStore
	// ArtifactDir is used when Store is nil. Defaults to the config's artifact directory.
	ArtifactDir string
}

// Eval runs the smoke on the baseline, activates the candidate with the same smoke,
// diffs the artifact metrics and saves the report as kg_pack_eval in the artifact store. The baseline is reactivated unless opts.Keep is set.
func (m *Manager) Eval(ctx context.Context, candidate string, opts EvalOptions) (*domain.EvalReport, error) {
	if err := checkID(candidate); err != nil {
		return nil, err
	}
	if opts.Smoke == nil {
		return nil, fmt.Errorf("eval requires a smoke function")
	}
	var rep *domain.EvalReport
	err := m.withLock(ctx, "eval", func() error {
		var err error
		rep, err = m.eval(ctx, candidate, opts)
		return err
	})
	return rep, err
}

func (m *Manager) eval(ctx context.Context, candidate string, opts EvalOptions) (*domain.EvalReport, error) {
	st, err := m.load()
	if err != nil {
		return nil, err
	}
	baseline := st.settings.ActivePack

	store := opts.Store
	if store == nil {
		dir := opts.ArtifactDir
		if dir == "" {
			cfg, err := config.Resolve(m.configPath)
			if err != nil {
				return nil, err
			}
			dir = cfg.ArtifactDir()
		}
		store = file.New(dir)
	}

	m.logger.Info("eval started", "baseline", baseline, "candidate", candidate)
	if err := opts.Smoke(ctx); err != nil {
		return nil, fmt.Errorf("baseline %s: %w: %v", baseline, domain.ErrSmokeFailed, err)
	}
	before := ExtractMetrics(ctx, store)

	if _, err := m.activate(ctx, candidate, opts.Smoke); err != nil {
		return nil, err
	}
	after := ExtractMetrics(ctx, store)

	rep := &domain.EvalReport{
		GeneratedAt: m.now().UTC(),
		Baseline:    baseline,
		Candidate:   candidate,
		Kept:        opts.Keep,
		Before:      before,
		After:       after,
		Diff:        DiffMetrics(before, after),
	}
	if err := store.Save(ctx, domain.ArtifactPackEval, rep); err != nil {
		return nil, err
	}

	if !opts.Keep && candidate != baseline {
		if _, err := m.activate(ctx, baseline, nil); err != nil {
			return rep, fmt.Errorf("failed to restore baseline %s: %w", baseline, err)
		}
	}
	m.logger.Info("eval finished", "changes", len(rep.Diff), "kept", opts.Keep)
	return rep, nil
}

// loadRaw returns the artifact as a generic object, or nil when absent or unreadable.
func loadRaw(ctx context.Context, store ports.ArtifactStore, name string) map[string]any {
	var m map[string]any
	if err := store.Load(ctx, name, &m); err != nil {
		return nil
	}
	return m
}

func str(m map[string]any, key string) any {
	if s, ok := m[key].(string); ok {
		return s
	}
	return nil
}

// ExtractMetrics summarizes the artifacts of the last run held by store.
// Absent values are nil so that a diff reports them.
func ExtractMetrics(ctx context.Context, store ports.ArtifactStore) map[string]any {
	out := map[string]any{}
	raw := map[string]map[string]any{}
	for _, name := range metricArtifacts {
		raw[name] = loadRaw(ctx, store, name)
	}

	kc := raw[domain.ArtifactKGContext]
	pack, _ := kc["kg_pack"].(map[string]any)
	out["kg_active_pack"] = str(pack, "active_pack")
	out["kg_manifest_sha256"] = str(pack, "manifest_sha256")
	res, _ := kc["domain_resolution"].(map[string]any)
	out["domain_key"] = str(res, "domain_key")
	if sel, ok := kc["selected_packs"].([]any); ok {
		names := []string{}
		for _, it := range sel {
			if ref, ok := it.(map[string]any); ok {
				if n, ok := ref["name"].(string); ok && n != "" {
					names = append(names, n)
				}
			}
		}
		out["selected_packs_count"] = len(sel)
		out["selected_packs_names"] = names
	} else {
		out["selected_packs_count"] = nil
		out["selected_packs_names"] = []string{}
	}

	rt := raw[domain.ArtifactRetrieve]
	if results, ok := rt["results"].([]any); ok {
		seen := map[string]bool{}
		sources := []string{}
		for _, it := range results {
			if ev, ok := it.(map[string]any); ok {
				if s, ok := ev["source"].(string); ok && s != "" && !seen[s] {
					seen[s] = true
					sources = append(sources, s)
				}
			}
		}
		sort.Strings(sources)
		out["retrieve_results_count"] = len(results)
		out["retrieve_sources"] = sources
	} else {
		out["retrieve_results_count"] = nil
		out["retrieve_sources"] = []string{}
	}

	cj := raw[domain.ArtifactCompose]
	out["compose_status"] = str(cj, "status")
	if secs, ok := cj["sections"].([]any); ok {
		titles := []string{}
		for i, it := range secs {
			if i >= maxTitles {
				break
			}
			if sec, ok := it.(map[string]any); ok {
				if t, ok := sec["title"].(string); ok && t != "" {
					titles = append(titles, t)
				}
			}
		}
		out["compose_sections_count"] = len(secs)
		out["compose_first_titles"] = titles
	} else {
		out["compose_sections_count"] = nil
		out["compose_first_titles"] = []string{}
	}

	// Sizes are of the compact encoding, so they do not depend on the store's formatting.
	files := map[string]any{}
	for _, name := range metricArtifacts {
		if raw[name] == nil {
			continue
		}
		if data, err := json.Marshal(raw[name]); err == nil {
			files[name+".json"] = int64(len(data))
		}
	}
	out["files"] = files
	return out
}

// DiffMetrics returns the metrics that differ between a and b. File sizes are
// reported per file under "files.<name>".
func DiffMetrics(a, b map[string]any) map[string]domain.MetricChange {
	diff := map[string]domain.MetricChange{}
	for _, k := range EvalMetricKeys {
		if !cmp.Equal(a[k], b[k], cmpopts.EquateEmpty()) {
			diff[k] = domain.MetricChange{Before: a[k], After: b[k]}
		}
	}

	af, _ := a["files"].(map[string]any)
	bf, _ := b["files"].(map[string]any)
	names := map[string]bool{}
	for n := range af {
		names[n] = true
	}
	for n := range bf {
		names[n] = true
	}
	for n := range names {
		if !cmp.Equal(af[n], bf[n]) {
			diff["files."+n] = domain.MetricChange{Before: af[n], After: bf[n]}
		}
	}
	return diff
}
