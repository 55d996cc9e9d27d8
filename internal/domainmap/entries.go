package domainmap

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// maxDepth bounds the walk over a domain map document.
const maxDepth = 32

// CollectEntries gathers every object listed under a "maps" key, at any depth.
// Entries are de-duplicated by their name and key signature; the first occurrence wins.
func CollectEntries(doc any) []map[string]any {
	var out []map[string]any
	seen := map[string]bool{}

	var walk func(v any, depth int)
	walk = func(v any, depth int) {
		if depth > maxDepth {
			return
		}
		switch node := v.(type) {
		case map[string]any:
			if maps, ok := node["maps"].([]any); ok {
				for _, it := range maps {
					entry, ok := it.(map[string]any)
					if !ok {
						continue
					}
					sig := signature(entry)
					if seen[sig] {
						continue
					}
					seen[sig] = true
					out = append(out, entry)
				}
			}
			// Sorted keys keep traversal order, and so tie-breaking, deterministic.
			keys := make([]string, 0, len(node))
			for k := range node {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(node[k], depth+1)
			}
		case []any:
			for _, child := range node {
				walk(child, depth+1)
			}
		}
	}
	walk(doc, 0)
	return out
}

func signature(m map[string]any) string {
	return fmt.Sprintf("%s||%s||%s",
		firstString(m, "cn_name"),
		firstString(m, "en_name", "en_key"),
		firstString(m, "domain_key", "domain", "key"))
}

// firstString returns the first non-blank string value among keys.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

var keywordSplit = regexp.MustCompile(`[,，;；\s]+`)

// Keywords reads an entry's keywords, given either as a list or a delimited string.
func Keywords(m map[string]any) []string {
	v, ok := m["keywords"]
	if !ok || v == nil {
		v = m["keyword"]
	}
	var out []string
	switch kw := v.(type) {
	case []any:
		for _, it := range kw {
			if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range keywordSplit.Split(kw, -1) {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

var keyFields = []string{"domain_key", "domain", "en_key", "en_name", "key", "slug", "code", "id"}

// ExplicitKey returns the domain key an entry declares, directly or under a nested "domain" object.
func ExplicitKey(m map[string]any) string {
	if k := firstString(m, keyFields...); k != "" {
		return k
	}
	if nested, ok := m["domain"].(map[string]any); ok {
		return firstString(nested, "domain_key", "en_key", "en_name", "key", "slug", "code", "id")
	}
	return ""
}

// previewKeys are copied from the matched entry into the artifact.
var previewKeys = []string{"cn_name", "en_name", "domain_key", "domain", "key", "slug", "code", "id", "keywords", "desc"}

func preview(m map[string]any) map[string]any {
	out := map[string]any{}
	for _, k := range previewKeys {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
