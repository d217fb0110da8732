// Package source caches and verifies package sources.
package source

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/SoftKiwiGames/vulcan/config"
	"github.com/SoftKiwiGames/vulcan/vulcan/ctxlog"
	"github.com/SoftKiwiGames/vulcan/vulcan/schema"
)

type Cache struct {
	root   string
	client *http.Client
}

func NewCache(root string) *Cache {
	return &Cache{
		root: root,
		client: &http.Client{
			Timeout: 15 * time.Minute,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		},
	}
}

// Path returns the cache location for one named source of a package.
func (c *Cache) Path(p *schema.Package, name string) string {
	return filepath.Join(c.root, p.ID(), name+".source")
}

// Exists reports whether the source is already cached.
func (c *Cache) Exists(p *schema.Package, name string) bool {
	_, err := os.Stat(c.Path(p, name))
	return err == nil
}

// Download fetches one source into the cache, replacing any cached copy.
func (c *Cache) Download(ctx context.Context, p *schema.Package, name string, src schema.Source) error {
	logger := ctxlog.FromContext(ctx)
	dst := c.Path(p, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", "vulcan/"+config.Version)
	req.Header.Set("Accept", "*/*")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to download %s", src.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("failed to download %s: HTTP %d %s\nResponse: %s",
			src.URL, resp.StatusCode, resp.Status, string(body))
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Wrapf(err, "failed to create cache directory for %s", p.ID())
	}

	// Write to a temp file first so a failed download never looks cached.
	tmp := dst + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", tmp)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "failed to write %s", tmp)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, dst); err != nil {
		return errors.Wrapf(err, "failed to finalize %s", dst)
	}

	logger.Debug("downloaded source", "package", p.ID(), "source", name, "url", src.URL)
	return nil
}

// Verify checks the cached source against its declared hash.
func (c *Cache) Verify(p *schema.Package, name string, src schema.Source) error {
	if src.Hash.Type != "" && src.Hash.Type != "sha256" {
		return errors.Errorf("unsupported hash type %q for source %s of %s", src.Hash.Type, name, p.ID())
	}

	f, err := os.Open(c.Path(p, name))
	if err != nil {
		return errors.Wrapf(err, "source %s of %s is not cached", name, p.ID())
	}
	defer f.Close()

	sum, err := calculateChecksum(f)
	if err != nil {
		return errors.Wrapf(err, "failed to hash source %s of %s", name, p.ID())
	}

	if sum != src.Hash.Value {
		return errors.Errorf("checksum mismatch for source %s of %s: expected %s, got %s",
			name, p.ID(), src.Hash.Value, sum)
	}

	return nil
}

// Ensure makes sure every source of a package is cached and verified,
// downloading what is missing.
func (c *Cache) Ensure(ctx context.Context, p *schema.Package) error {
	for name, src := range p.Sources {
		if !c.Exists(p, name) {
			if err := c.Download(ctx, p, name, src); err != nil {
				return err
			}
		}
		if err := c.Verify(p, name, src); err != nil {
			return err
		}
	}
	return nil
}

// calculateChecksum computes the SHA-256 checksum of a stream
func calculateChecksum(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
