package domain

import (
	"reflect"
	"strings"
)

// Payload is the caller's request object. Stages read it; nothing writes to it.
type Payload map[string]any

// FieldMappingVersion identifies the field alternative lists below.
// Bump it whenever one of them changes so artifacts can be told apart.
const FieldMappingVersion = "v1"

// ExplicitTypeFields are checked in order for a caller-declared project type.
var ExplicitTypeFields = []string{"project_type", "工程类型", "project_category", "domain_cn"}

// TextFields are concatenated, in order, as the text the keyword classifier scores.
var TextFields = []string{
	"project_name",
	"project_title",
	"topic",
	"outline",
	"description",
	"content",
	"text",
	"工程名称",
	"项目名称",
	"工点名称",
}

// PayloadRegionFields are checked in order for a region key.
// A value is either a string or an object with a string "key".
var PayloadRegionFields = []string{"region_key", "region_upgrade_key", "region", "region_code", "regionCode"}

// ProfileRegionPaths are dotted paths into the project profile checked after the payload.
var ProfileRegionPaths = []string{
	"region_key",
	"region.key",
	"region.region_key",
	"output_profile.region_key",
	"output_profile.region.key",
}

// String returns the trimmed string stored under key, if it is a non-blank string.
func (p Payload) String(key string) (string, bool) {
	s, ok := p[key].(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Topic returns the trimmed topic, or "".
func (p Payload) Topic() string {
	s, _ := p.String("topic")
	return s
}

// Outline returns the outline entries rendered as strings. Non-list outlines yield nil.
func (p Payload) Outline() []string {
	items, ok := p["outline"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			if t, ok := v["title"].(string); ok && strings.TrimSpace(t) != "" {
				out = append(out, strings.TrimSpace(t))
			}
		}
	}
	return out
}

// IsEmpty is the single emptiness rule shared by every check:
// absent, nil, a blank string, or an empty list or map.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Lookup resolves a dotted path ("a.b.c") through nested objects.
func Lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
