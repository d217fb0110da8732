package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoftKiwiGames/vulcan/vulcan/schema"
)

func sha256hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func testPackage() *schema.Package {
	return &schema.Package{Name: "zlib", Version: "1.3.1"}
}

// TestCalculateChecksum verifies SHA-256 checksum calculation
func TestCalculateChecksum(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty string", input: ""},
		{name: "hello world", input: "hello world"},
		{name: "multiline", input: "line1\nline2\nline3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checksum, err := calculateChecksum(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, sha256hex(tt.input), checksum)
		})
	}
}

func TestDownloadAndVerify(t *testing.T) {
	content := "source tarball bytes"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "vulcan/")
		w.Write([]byte(content))
	}))
	defer srv.Close()

	cache := NewCache(t.TempDir())
	pkg := testPackage()
	src := schema.Source{
		URL:  srv.URL + "/zlib-1.3.1.tar.gz",
		Hash: schema.Hash{Type: "sha256", Value: sha256hex(content)},
	}

	require.False(t, cache.Exists(pkg, "tarball"))
	require.NoError(t, cache.Download(context.Background(), pkg, "tarball", src))
	require.True(t, cache.Exists(pkg, "tarball"))
	require.NoError(t, cache.Verify(pkg, "tarball", src))

	data, err := os.ReadFile(cache.Path(pkg, "tarball"))
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestDownload_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	cache := NewCache(t.TempDir())
	pkg := testPackage()

	err := cache.Download(context.Background(), pkg, "tarball", schema.Source{URL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.False(t, cache.Exists(pkg, "tarball"))
}

func TestVerify_Mismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("actual content"))
	}))
	defer srv.Close()

	cache := NewCache(t.TempDir())
	pkg := testPackage()
	src := schema.Source{
		URL:  srv.URL,
		Hash: schema.Hash{Type: "sha256", Value: sha256hex("expected content")},
	}

	require.NoError(t, cache.Download(context.Background(), pkg, "tarball", src))
	err := cache.Verify(pkg, "tarball", src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestVerify_UnsupportedHashType(t *testing.T) {
	cache := NewCache(t.TempDir())
	err := cache.Verify(testPackage(), "tarball", schema.Source{Hash: schema.Hash{Type: "md5", Value: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported hash type")
}

func TestEnsure_DownloadsMissing(t *testing.T) {
	content := "bytes"
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(content))
	}))
	defer srv.Close()

	cache := NewCache(t.TempDir())
	pkg := testPackage()
	pkg.Sources = map[string]schema.Source{
		"tarball": {URL: srv.URL, Hash: schema.Hash{Type: "sha256", Value: sha256hex(content)}},
	}

	require.NoError(t, cache.Ensure(context.Background(), pkg))
	require.NoError(t, cache.Ensure(context.Background(), pkg))
	assert.Equal(t, 1, hits, "second Ensure must use the cache")
}
