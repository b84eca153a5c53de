package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SaveRestoreRoundTrip(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	dir, err := m.Restore("chatgpt")
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "first restore starts with an empty profile")

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Default"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Default", "Cookies"), []byte("session=abc"), 0644))
	require.NoError(t, m.Save("chatgpt", dir))

	info, err := m.Get("chatgpt")
	require.NoError(t, err)
	assert.Equal(t, "chatgpt", info.Group)
	assert.Positive(t, info.SizeBytes)

	// Simulate the browser wiping its directory, then restore
	require.NoError(t, os.RemoveAll(dir))
	restored, err := m.Restore("chatgpt")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(restored, "Default", "Cookies"))
	require.NoError(t, err)
	assert.Equal(t, "session=abc", string(data))
}

func TestManager_RejectsBadGroup(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, err = m.Restore("../etc")
	require.Error(t, err)
	require.Error(t, m.Save("", t.TempDir()))
}

func TestManager_Delete(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	dir, err := m.Restore("deepseek")
	require.NoError(t, err)
	require.NoError(t, m.Save("deepseek", dir))
	require.NoError(t, m.Delete("deepseek"))

	_, err = m.Get("deepseek")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = m.Get("../etc")
	require.Error(t, err)
	require.Error(t, m.Delete(".."))
}
