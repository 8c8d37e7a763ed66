package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReloader(t *testing.T) (*Reloader, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zenflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pattern: hybrid\n"), 0o644))

	r, err := NewReloader(path, nil)
	require.NoError(t, err)
	return r, path
}

func TestReloaderInitialLoad(t *testing.T) {
	r, _ := newTestReloader(t)
	assert.Equal(t, "hybrid", r.Current().Pattern)

	history := r.History()
	require.Len(t, history, 1)
	assert.Equal(t, "initial", history[0].Source)
}

func TestReloadAppliesNewConfig(t *testing.T) {
	r, path := newTestReloader(t)

	var calls int
	r.OnReload(func(old, new *Config) {
		calls++
		assert.Equal(t, "hybrid", old.Pattern)
		assert.Equal(t, "consensus", new.Pattern)
	})

	require.NoError(t, os.WriteFile(path, []byte("pattern: consensus\n"), 0o644))
	require.NoError(t, r.Reload())

	assert.Equal(t, "consensus", r.Current().Pattern)
	assert.Equal(t, 1, calls)
	history := r.History()
	assert.Equal(t, "reload", history[len(history)-1].Source)
}

func TestFailedReloadKeepsCurrentConfig(t *testing.T) {
	r, path := newTestReloader(t)

	require.NoError(t, os.WriteFile(path, []byte("pattern: gossip\n"), 0o644))
	require.Error(t, r.Reload())
	assert.Equal(t, "hybrid", r.Current().Pattern)
}

func TestRollbackRestoresPreviousConfig(t *testing.T) {
	r, path := newTestReloader(t)

	require.Error(t, r.Rollback(), "nothing to roll back to yet")

	require.NoError(t, os.WriteFile(path, []byte("pattern: work-stealing\n"), 0o644))
	require.NoError(t, r.Reload())
	require.Equal(t, "work-stealing", r.Current().Pattern)

	require.NoError(t, r.Rollback())
	assert.Equal(t, "hybrid", r.Current().Pattern)
	history := r.History()
	assert.Equal(t, "rollback", history[len(history)-1].Source)
}
