// Package domainmap resolves a request to a domain key and selects the knowledge packs for that domain.
package domainmap

import (
	"strings"

	"github.com/aretw0/preflight/pkg/domain"
)

// vocabulary terms earn a small bonus when both the query and the entry mention them.
var vocabulary = []string{
	"装饰", "装修", "房建", "市政", "道路", "排水", "雨水", "污水", "机电", "暖通", "电气",
	"水利", "河道", "电力", "光伏", "工业", "管道", "铁路", "公路", "景观", "室外",
}

// Query joins the non-blank parts used to match the domain map.
func Query(projectType, topic string) string {
	var parts []string
	for _, s := range []string{projectType, topic} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " | ")
}

// Score rates how well an entry matches the query. Zero means no match.
func Score(m map[string]any, query string) int {
	q := strings.TrimSpace(query)
	if q == "" {
		return 0
	}
	name := firstString(m, "cn_name", "name", "title")
	desc := firstString(m, "desc", "description")

	score := 0
	if name != "" {
		if strings.Contains(q, name) {
			score += 12
		}
		if strings.Contains(name, q) {
			score += 8
		}
	}
	for _, kw := range Keywords(m) {
		if strings.Contains(q, kw) {
			score += 3
		}
	}
	for _, word := range vocabulary {
		if !strings.Contains(q, word) {
			continue
		}
		if strings.Contains(name, word) {
			score += 2
		}
		if strings.Contains(desc, word) {
			score += 1
		}
	}
	return score
}

// Resolve matches the project type and topic against a parsed domain map.
// A nil document behaves like an empty map.
func Resolve(doc any, projectType, topic string) domain.DomainResolution {
	query := Query(projectType, topic)
	entries := CollectEntries(doc)
	res := domain.DomainResolution{
		Method:         domain.MethodNone,
		Query:          query,
		CandidateCount: len(entries),
	}

	var best map[string]any
	bestScore := 0
	if query != "" {
		for _, m := range entries {
			// Strictly greater: the earliest entry keeps a tie.
			if sc := Score(m, query); sc > bestScore {
				best, bestScore = m, sc
			}
		}
	}

	if best != nil {
		res.MatchedName = firstString(best, "cn_name")
		res.Score = bestScore
		res.MatchedPreview = preview(best)
		switch key := ExplicitKey(best); {
		case key != "":
			res.DomainKey = key
			res.Method = domain.MethodDomainMap
		default:
			derived := HintKey(res.MatchedName)
			if derived == "" {
				derived = HintKey(firstString(best, "desc"))
			}
			if derived != "" {
				res.DomainKey = derived
				res.Method = domain.MethodDomainMapFallback
			} else {
				res.Method = domain.MethodDomainMapUnkeyed
			}
		}
		return res
	}

	fb := HintKey(strings.TrimSpace(projectType))
	if fb == "" {
		fb = HintKey(strings.TrimSpace(topic))
	}
	if fb != "" {
		res.DomainKey = fb
		res.Method = domain.MethodFallback
	}
	return res
}
