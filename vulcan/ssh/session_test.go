package ssh

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestTempUploadPath(t *testing.T) {
	a := tempUploadPath("/tmp/vulcan/job-a/build.sh")
	b := tempUploadPath("/tmp/vulcan/job-b/build.sh")

	// Jobs in different workspaces upload files with the same basename;
	// their temp files must never collide.
	if a == b {
		t.Fatalf("temp upload paths collide: %s", a)
	}
	if !strings.HasPrefix(a, "/tmp/vulcan/job-a/") {
		t.Errorf("temp file left its target directory: %s", a)
	}
	if a == "/tmp/vulcan/job-a/build.sh" {
		t.Error("temp path must differ from the target path")
	}
}

type fakeCloser struct {
	closed atomic.Bool
}

func (c *fakeCloser) Close() error {
	c.closed.Store(true)
	return nil
}

func TestCloseOnCancel(t *testing.T) {
	t.Run("cancellation closes", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		c := &fakeCloser{}

		stop := closeOnCancel(ctx, c)
		defer stop()
		cancel()

		deadline := time.Now().Add(time.Second)
		for !c.closed.Load() {
			if time.Now().After(deadline) {
				t.Fatal("closer was not closed after context cancellation")
			}
			time.Sleep(time.Millisecond)
		}
	})

	t.Run("stop before cancellation leaves it open", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		c := &fakeCloser{}

		stop := closeOnCancel(ctx, c)
		stop()
		cancel()

		time.Sleep(20 * time.Millisecond)
		if c.closed.Load() {
			t.Fatal("closer was closed after stop")
		}
	})
}
