package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_IndexesExistingFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "zlib-1.3.1"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "zlib-1.3.1", "zlib.tar"), []byte("x"), 0644))

	s, err := Load(root)
	require.NoError(t, err)

	assert.True(t, s.Has("zlib-1.3.1/zlib.tar"))
	assert.False(t, s.Has("zlib-1.3.1/missing.tar"))
	assert.Equal(t, []ArtifactPath{"zlib-1.3.1/zlib.tar"}, s.Paths())
}

func TestLoad_CreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "staging")

	s, err := Load(root)
	require.NoError(t, err)
	assert.Empty(t, s.Paths())

	_, err = os.Stat(root)
	require.NoError(t, err)
}

func TestAdd(t *testing.T) {
	s, err := Load(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Add("pkg-1.0/out.bin", strings.NewReader("artifact content")))

	assert.True(t, s.Has("pkg-1.0/out.bin"))
	data, err := os.ReadFile(s.FullPath("pkg-1.0/out.bin"))
	require.NoError(t, err)
	assert.Equal(t, "artifact content", string(data))
}

func TestMerged_StagingWins(t *testing.T) {
	staging, err := Load(t.TempDir())
	require.NoError(t, err)
	release, err := Load(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, release.Add("pkg-1.0/out.bin", strings.NewReader("released")))
	require.NoError(t, staging.Add("pkg-1.0/out.bin", strings.NewReader("staged")))
	require.NoError(t, release.Add("pkg-0.9/out.bin", strings.NewReader("old")))

	m := Merged{Staging: staging, Release: release}

	got, ok := m.Locate("pkg-1.0/out.bin")
	require.True(t, ok)
	assert.Equal(t, staging.Root(), got.Root())
	assert.True(t, m.InStaging("pkg-1.0/out.bin"))

	got, ok = m.Locate("pkg-0.9/out.bin")
	require.True(t, ok)
	assert.Equal(t, release.Root(), got.Root())
	assert.False(t, m.InStaging("pkg-0.9/out.bin"))

	_, ok = m.Locate("pkg-2.0/out.bin")
	assert.False(t, ok)
}
