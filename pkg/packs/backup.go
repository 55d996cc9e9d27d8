package packs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/preflight/internal/atomicfile"
	"github.com/aretw0/preflight/internal/config"
)

// backupLayout sorts lexically in time order.
const backupLayout = "20060102T150405.000000000"

// write backs up the config as it was read, then atomically replaces it with raw.
// It returns the backup path.
func (m *Manager) write(f *config.File, raw map[string]any) (string, error) {
	data, err := config.Encode(f.Path, raw)
	if err != nil {
		return "", err
	}
	backup, err := m.backup(f.Bytes)
	if err != nil {
		return "", err
	}
	if err := atomicfile.Write(f.Path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return backup, nil
}

func (m *Manager) backup(data []byte) (string, error) {
	dir := m.BackupsDir()
	base := filepath.Base(m.configPath)
	t := m.now().UTC()
	for {
		path := filepath.Join(dir, base+"."+t.Format(backupLayout)+".bak")
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			if err := atomicfile.Write(path, data, 0644); err != nil {
				return "", fmt.Errorf("failed to write config backup: %w", err)
			}
			return path, nil
		}
		// Same instant as an existing backup (fixed clocks in tests, coarse timers).
		t = t.Add(1)
	}
}

// backups lists the config backups, oldest first.
func (m *Manager) backups() ([]string, error) {
	entries, err := os.ReadDir(m.BackupsDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	prefix := filepath.Base(m.configPath) + "."
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(m.BackupsDir(), name))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Manager) restore(data []byte) error {
	if err := atomicfile.Write(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to restore config: %w", err)
	}
	return nil
}
