package domainmap

import (
	"github.com/aretw0/preflight/internal/config"
	"github.com/aretw0/preflight/internal/rules"
	"github.com/aretw0/preflight/pkg/domain"
)

// Build resolves the domain and selects packs for a run. It never fails:
// a missing or unreadable domain map is recorded and resolution continues without candidates.
func Build(cfg *config.Resolved, projectType, topic string) domain.KGContext {
	kc := domain.KGContext{
		Topic:         topic,
		ProjectType:   projectType,
		BasePacks:     []domain.FileRef{},
		SelectedPacks: []domain.FileRef{},
		Pack:          cfg.PackIdentity(),
	}

	var doc any
	if path := cfg.DomainMapPath(); path == "" {
		kc.DomainMap = domain.FileRef{Error: "domain_map not configured"}
	} else {
		kc.DomainMap = rules.Probe(path)
		switch {
		case !kc.DomainMap.Exists && kc.DomainMap.Error == "":
			kc.DomainMap.Error = "domain_map_not_found"
		case kc.DomainMap.Exists:
			d, err := rules.Load(path)
			if err != nil {
				kc.DomainMap.Error = err.Error()
			} else {
				doc = d.Value
			}
		}
	}

	kc.Resolution = Resolve(doc, projectType, topic)

	base := cfg.BasePackPaths()
	for _, p := range base {
		kc.BasePacks = append(kc.BasePacks, rules.Probe(p))
	}
	for _, p := range SelectPacks(kc.Resolution.DomainKey, base) {
		kc.SelectedPacks = append(kc.SelectedPacks, rules.Probe(p))
	}
	return kc
}
