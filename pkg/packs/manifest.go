package packs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/preflight/internal/atomicfile"
	"github.com/aretw0/preflight/internal/canon"
	"github.com/aretw0/preflight/pkg/domain"
)

// ManifestName is the manifest file inside every pack directory.
const ManifestName = "manifest.json"

// BuildManifest hashes every file under dir except the manifest itself.
// Paths are slash separated and sorted.
func BuildManifest(dir string, meta domain.Manifest) (*domain.Manifest, error) {
	m := meta
	m.SchemaVersion = domain.ManifestSchemaVersion
	m.Files = []domain.ManifestFile{}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == ManifestName {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		sum, err := canon.SumFile(path)
		if err != nil {
			return err
		}
		m.Files = append(m.Files, domain.ManifestFile{Path: rel, Size: info.Size(), SHA256: sum})
		m.TotalBytes += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build manifest for %s: %w", dir, err)
	}

	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Path < m.Files[j].Path })
	m.FileCount = len(m.Files)
	return &m, nil
}

// WriteManifest stores m as dir/manifest.json.
func WriteManifest(dir string, m *domain.Manifest) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return atomicfile.Write(filepath.Join(dir, ManifestName), buf.Bytes(), 0644)
}

// ReadManifest loads a manifest file.
func ReadManifest(path string) (*domain.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m domain.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest.json invalid JSON: %w", err)
	}
	return &m, nil
}

// VerifyManifest recomputes every listed hash. It returns the number of entries checked
// and one problem per missing or mismatching file.
func VerifyManifest(dir string, m *domain.Manifest) (int, []string) {
	if len(m.Files) == 0 {
		return 0, []string{"manifest.json: 'files' missing or empty"}
	}
	var problems []string
	for _, f := range m.Files {
		if f.Path == "" || f.SHA256 == "" {
			problems = append(problems, "manifest.json: files[] entry missing path/sha256")
			continue
		}
		if !localPath(f.Path) {
			problems = append(problems, "manifest.json: path escapes pack: "+f.Path)
			continue
		}
		sum, err := canon.SumFile(filepath.Join(dir, filepath.FromSlash(f.Path)))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			problems = append(problems, "missing file: "+f.Path)
		case err != nil:
			problems = append(problems, fmt.Sprintf("hash error: %s: %v", f.Path, err))
		case sum != f.SHA256:
			problems = append(problems, "sha256 mismatch: "+f.Path)
		}
	}
	return len(m.Files), problems
}

// localPath rejects absolute paths and paths climbing out of the pack.
func localPath(rel string) bool {
	if rel == "" || filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return false
	}
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(rel)))
	return clean != ".." && !strings.HasPrefix(clean, "../")
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
