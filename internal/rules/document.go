// Package rules loads the rule files that govern each pipeline stage.
//
// A rule file is kept as the exact bytes read from disk so its hash matches what an
// auditor recomputes later. Parsing never normalizes those bytes.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/preflight/internal/canon"
	"github.com/aretw0/preflight/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Document is a loaded rule file.
type Document struct {
	Path   string
	Bytes  []byte
	SHA256 string
	Value  any            // Parsed content
	Object map[string]any // Value when it is a JSON/YAML object, else nil
}

// Load reads and parses the rule file at path.
// A missing file yields an error satisfying errors.Is(err, fs.ErrNotExist).
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc := &Document{
		Path:   path,
		Bytes:  data,
		SHA256: canon.SumBytes(data),
	}
	if err := Unmarshal(path, data, &doc.Value); err != nil {
		return doc, err
	}
	doc.Object, _ = doc.Value.(map[string]any)
	return doc, nil
}

// Unmarshal decodes data as JSON or YAML depending on the file extension.
// Anything that is not .json is treated as YAML.
func Unmarshal(path string, data []byte, out any) error {
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Decode maps the document's object form onto out, converting loosely typed values.
func (d *Document) Decode(out any) error {
	return DecodeMap(d.Object, out)
}

// DecodeMap maps a generic object onto a typed struct using mapstructure tags.
func DecodeMap(in any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("failed to decode rule: %w", err)
	}
	return nil
}

// Probe describes a referenced file without parsing it.
func Probe(path string) domain.FileRef {
	ref := domain.FileRef{Path: path, Name: filepath.Base(path)}
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			ref.Error = err.Error()
		}
		return ref
	}
	ref.Exists = true
	ref.SizeBytes = info.Size()
	sum, err := canon.SumFile(path)
	if err != nil {
		ref.Error = err.Error()
		return ref
	}
	ref.SHA256 = sum
	return ref
}

// Exists reports whether path names an existing file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
