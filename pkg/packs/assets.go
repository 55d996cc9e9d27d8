package packs

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/preflight/internal/atomicfile"
	"github.com/aretw0/preflight/internal/config"
)

// skipKeys hold pack bookkeeping, never asset paths.
var skipKeys = map[string]bool{
	config.KeyPacks:       true,
	config.KeyActivePack:  true,
	config.KeyPrevPack:    true,
	config.KeyPackHistory: true,
}

var assetSuffixes = []string{".json", ".yaml", ".yml", ".txt", ".md"}

// LooksLikePath reports whether a config string value is a candidate asset path.
func LooksLikePath(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return false
	}
	if strings.ContainsAny(s, `/\`) {
		return true
	}
	lower := strings.ToLower(s)
	for _, suf := range assetSuffixes {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}
	return false
}

// ReferencedPaths walks the config values and returns every candidate path,
// relative to base and slash separated. Absolute paths outside base are dropped.
func ReferencedPaths(raw map[string]any, base string) []string {
	found := map[string]bool{}

	add := func(v string) {
		v = strings.TrimSpace(v)
		if !LooksLikePath(v) {
			return
		}
		p := filepath.FromSlash(strings.ReplaceAll(v, `\`, "/"))
		if filepath.IsAbs(p) {
			rel, err := filepath.Rel(base, p)
			if err != nil {
				return
			}
			p = rel
		}
		rel := filepath.ToSlash(filepath.Clean(p))
		if !localPath(rel) {
			return
		}
		found[rel] = true
	}

	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			add(t)
		case []any:
			for _, it := range t {
				walk(it)
			}
		case map[string]any:
			for k, it := range t {
				if !skipKeys[k] {
					walk(it)
				}
			}
		}
	}
	walk(raw)

	out := make([]string, 0, len(found))
	for rel := range found {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

// ExistingPaths filters rel paths to those present under base.
func ExistingPaths(rels []string, base string) (existing, missing []string) {
	for _, rel := range rels {
		if _, err := os.Stat(filepath.Join(base, filepath.FromSlash(rel))); err == nil {
			existing = append(existing, rel)
		} else {
			missing = append(missing, rel)
		}
	}
	return existing, missing
}

// copyAsset copies a file or a directory tree from src to dst.
func copyAsset(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return atomicfile.Copy(src, dst)
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		return atomicfile.Copy(path, filepath.Join(dst, rel))
	})
}
