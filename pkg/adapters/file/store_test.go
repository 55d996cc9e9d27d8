package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/preflight/pkg/adapters/file"
	"github.com/aretw0/preflight/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	tests.ArtifactStoreContractTest(t, file.New(t.TempDir()))
}

func TestFileStore_WritesReadableJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "build")
	s := file.New(dir)

	require.NoError(t, s.Save(context.Background(), "kg_context", map[string]any{"topic": "装修 <A&B>"}))

	data, err := os.ReadFile(filepath.Join(dir, "kg_context.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"topic\": \"装修 <A&B>\"\n}\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileStore_CorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "compose.json"), []byte("{"), 0644))

	var v map[string]any
	err := file.New(dir).Load(context.Background(), "compose", &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal artifact compose")
}

func TestFileStore_DefaultPath(t *testing.T) {
	assert.Equal(t, filepath.Join("build", "retrieve.json"), file.New("").Location("retrieve"))
}
