package compose

import (
	"fmt"
	"strings"

	"github.com/aretw0/preflight/pkg/domain"
)

const (
	// visitDepth bounds how deep the visitor descends into a pack document.
	visitDepth = 6

	// Shape thresholds for objects found outside an explicit work_items list.
	minKeysWithName    = 2
	minKeysWithoutName = 5
)

const nameKey = "工序名称"

// workItemKeys are the fields a procedure object is expected to carry.
var workItemKeys = []string{
	"工序名称", "操作步骤", "设备材料", "关键参数", "风险点", "控制措施",
	"验证方法", "资源配置", "成品保护", "质量控制", "安全文明施工", "环保要点",
}

// LooksLikeWorkItem is a heuristic shape check: a named procedure with at least two other
// known fields, or any object with five known fields. False positives and negatives are tolerated.
func LooksLikeWorkItem(m map[string]any) bool {
	n := 0
	for _, k := range workItemKeys {
		if _, ok := m[k]; ok && k != nameKey {
			n++
		}
	}
	if _, named := m[nameKey]; named {
		return n >= minKeysWithName
	}
	return n >= minKeysWithoutName
}

// ExtractWorkItems walks a pack document and returns up to limit procedure objects.
// Objects listed under "work_items" are taken as they are; elsewhere the shape check decides.
func ExtractWorkItems(doc any, source string, limit int) []domain.WorkItem {
	if limit <= 0 {
		return nil
	}
	var items []domain.WorkItem
	seen := map[string]bool{}

	add := func(m map[string]any) {
		if len(items) >= limit {
			return
		}
		id := itemID(m)
		if id != "" {
			if seen[id] {
				return
			}
			seen[id] = true
		}
		items = append(items, domain.WorkItem{ID: id, Name: itemName(m), Source: source, Fields: m})
	}

	var visit func(node any, depth int)
	visit = func(node any, depth int) {
		if len(items) >= limit || depth > visitDepth {
			return
		}
		switch v := node.(type) {
		case map[string]any:
			if list, ok := v["work_items"].([]any); ok {
				for _, it := range list {
					if m, ok := it.(map[string]any); ok {
						add(m)
					}
				}
			}
			if subs, ok := v["subdivisions"].([]any); ok {
				for _, s := range subs {
					visit(s, depth+1)
				}
			}
			for _, k := range sortedKeys(v) {
				if k == "work_items" || k == "subdivisions" {
					continue
				}
				child := v[k]
				if m, ok := child.(map[string]any); ok && LooksLikeWorkItem(m) {
					add(m)
					continue
				}
				visit(child, depth+1)
			}
		case []any:
			for _, child := range v {
				if m, ok := child.(map[string]any); ok && LooksLikeWorkItem(m) {
					add(m)
					continue
				}
				visit(child, depth+1)
			}
		}
	}
	visit(doc, 0)
	return items
}

func itemID(m map[string]any) string {
	for _, k := range []string{"id", "ID", "uid", nameKey, "name"} {
		if v, ok := m[k]; ok && v != nil {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

func itemName(m map[string]any) string {
	for _, k := range []string{nameKey, "name", "title", "id"} {
		if v, ok := m[k]; ok && v != nil {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return "unnamed procedure"
}

// listFields are rendered in this order, each with its English alias.
var listFields = []struct{ key, alias string }{
	{"操作步骤", "steps"},
	{"设备材料", "materials"},
	{"关键参数", "params"},
	{"风险点", "risks"},
	{"控制措施", "controls"},
	{"质量控制", "quality"},
	{"验证方法", "verify"},
}

const maxListEntries = 6

// FormatWorkItem renders one procedure as Markdown lines.
func FormatWorkItem(it domain.WorkItem) string {
	lines := []string{"Procedure: " + it.Name}
	for _, f := range listFields {
		v, ok := it.Fields[f.key]
		if !ok {
			v, ok = it.Fields[f.alias]
		}
		if !ok || domain.IsEmpty(v) {
			continue
		}
		arr, isList := v.([]any)
		if !isList {
			arr = []any{v}
		}
		shown := arr
		if len(shown) > maxListEntries {
			shown = shown[:maxListEntries]
		}
		parts := make([]string, 0, len(shown))
		for _, x := range shown {
			parts = append(parts, short(fmt.Sprint(x), 120))
		}
		line := fmt.Sprintf("- %s: %s", f.key, strings.Join(parts, "; "))
		if len(arr) > maxListEntries {
			line += fmt.Sprintf(" (%d total)", len(arr))
		}
		lines = append(lines, line)
	}
	if rc, ok := it.Fields["资源配置"].(map[string]any); ok {
		var parts []string
		for _, k := range sortedKeys(rc) {
			parts = append(parts, fmt.Sprintf("%s=%v", k, rc[k]))
		}
		lines = append(lines, "- 资源配置: "+strings.Join(parts, "; "))
	}
	return strings.Join(lines, "\n")
}

func short(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
