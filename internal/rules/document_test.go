package rules_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/preflight/internal/canon"
	"github.com/aretw0/preflight/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type thresholds struct {
	AutoAccept float64 `mapstructure:"auto_accept"`
	Manual     float64 `mapstructure:"require_manual_confirm"`
}

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_JSON(t *testing.T) {
	content := `{"confidence_thresholds": {"auto_accept": 0.9, "require_manual_confirm": "0.6"}}`
	path := write(t, "rules.json", content)

	doc, err := rules.Load(path)
	require.NoError(t, err)
	assert.Equal(t, canon.SumBytes([]byte(content)), doc.SHA256, "hash covers the raw bytes")
	require.NotNil(t, doc.Object)

	var th thresholds
	require.NoError(t, rules.DecodeMap(doc.Object["confidence_thresholds"], &th))
	assert.Equal(t, 0.9, th.AutoAccept)
	assert.Equal(t, 0.6, th.Manual, "weakly typed strings are converted")
}

func TestLoad_YAML(t *testing.T) {
	path := write(t, "region.yaml", "name: 合肥\nversion: 3\nitems:\n  - a\n")

	doc, err := rules.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "合肥", doc.Object["name"])
	assert.Equal(t, 3, doc.Object["version"])
}

func TestLoad_Errors(t *testing.T) {
	_, err := rules.Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	doc, err := rules.Load(write(t, "broken.json", "{not json"))
	assert.Error(t, err)
	require.NotNil(t, doc, "bytes and hash are still returned for unparsable files")
	assert.NotEmpty(t, doc.SHA256)
}

func TestLoad_NonObject(t *testing.T) {
	doc, err := rules.Load(write(t, "list.json", `[{"maps": []}]`))
	require.NoError(t, err)
	assert.Nil(t, doc.Object)
	assert.IsType(t, []any{}, doc.Value)
}

func TestProbe(t *testing.T) {
	path := write(t, "Universal_Base_Pack.json", "{}")

	ref := rules.Probe(path)
	assert.True(t, ref.Exists)
	assert.Equal(t, "Universal_Base_Pack.json", ref.Name)
	assert.Equal(t, int64(2), ref.SizeBytes)
	assert.Equal(t, canon.SumBytes([]byte("{}")), ref.SHA256)

	missing := rules.Probe(filepath.Join(t.TempDir(), "Civil_Basic_Pack.json"))
	assert.False(t, missing.Exists)
	assert.Empty(t, missing.SHA256)
	assert.Empty(t, missing.Error)
}
