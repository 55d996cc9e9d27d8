// Package region picks the regional overlay rule for a request and records its identity.
package region

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/preflight/internal/config"
	"github.com/aretw0/preflight/internal/rules"
	"github.com/aretw0/preflight/pkg/domain"
)

// ExtractKey finds the region key for a run and reports where it came from.
// Order: payload fields, then profile paths, then the configured default.
func ExtractKey(p domain.Payload, profile map[string]any, cfg *config.Resolved) (key, source string) {
	for _, field := range domain.PayloadRegionFields {
		switch v := p[field].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s, "payload." + field
			}
		case map[string]any:
			if s, ok := v["key"].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s), "payload." + field + ".key"
			}
		}
	}
	for _, path := range domain.ProfileRegionPaths {
		v, ok := domain.Lookup(profile, path)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), "profile." + path
		}
	}
	if k := cfg.DefaultRegion(); k != "" {
		return k, "default"
	}
	return "", ""
}

// Resolve builds the region artifact. It never fails; problems are recorded with Applied=false.
func Resolve(p domain.Payload, profile map[string]any, cfg *config.Resolved) domain.RegionUpgrade {
	out := domain.RegionUpgrade{}
	if d, ok := profile["decision"].(string); ok {
		out.ProjectProfileDecision = domain.Decision(d)
	}

	key, source := ExtractKey(p, profile, cfg)
	if key == "" {
		out.Errors = append(out.Errors, "region_key not provided and no default configured")
		return out
	}
	out.RegionKey, out.RegionSource = key, source

	path, ok := cfg.RegionRulePath(key)
	if !ok {
		out.Errors = append(out.Errors, fmt.Sprintf("no region_upgrade_rule configured for region_key=%s", key))
		return out
	}
	out.RulePath = path

	if !rules.Exists(path) {
		out.Errors = append(out.Errors, fmt.Sprintf("rule file not found: %s", path))
		return out
	}

	doc, err := rules.Load(path)
	if doc != nil {
		out.RuleSHA256 = doc.SHA256
	}
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("parse error: %v", err))
		return out
	}

	if doc.Object != nil {
		keys := make([]string, 0, len(doc.Object))
		for k := range doc.Object {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > domain.MaxTopLevelKeys {
			keys = keys[:domain.MaxTopLevelKeys]
		}
		out.TopLevelKeys = keys

		for _, k := range domain.RegionMetaKeys {
			if v, ok := doc.Object[k]; ok {
				if out.RuleMeta == nil {
					out.RuleMeta = map[string]any{}
				}
				out.RuleMeta[k] = v
			}
		}
	}
	out.Applied = true
	return out
}
