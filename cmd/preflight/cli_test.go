package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/preflight/internal/testutils"
	"github.com/aretw0/preflight/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRun_ComposedJSON(t *testing.T) {
	p := testutils.SetupProject(t)
	payload := filepath.Join(t.TempDir(), "req.yaml")
	require.NoError(t, os.WriteFile(payload, []byte("topic: 住宅楼精装修施工方案\noutline:\n  - 施工准备\n  - 施工方法\n"), 0o644))

	out, err := execute(t, "run", payload, "--dir", p.Root, "--json")
	require.NoError(t, err)

	var res domain.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, domain.StateComposed, res.State)
	assert.FileExists(t, p.Path("build/compose.json"))
}

func TestRun_BlockedExitCode(t *testing.T) {
	p := testutils.SetupProject(t)

	_, err := execute(t, "run", "--dir", p.Root, "--topic", "住宅楼精装修施工方案")
	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, exitBlocked, ee.code)
}

func TestPack_CreateAndList(t *testing.T) {
	p := testutils.SetupProject(t)

	_, err := execute(t, "pack", "create", "v2", "--dir", p.Root)
	require.NoError(t, err)
	assert.FileExists(t, p.Path("packs/v2/manifest.json"))

	out, err := execute(t, "pack", "list", "--dir", p.Root)
	require.NoError(t, err)
	assert.Contains(t, out, `"v2"`)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "preflight version")
}
