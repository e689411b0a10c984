package power

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/clusterplug/clusterplug/internal/domain"
)

// DefaultPowerDir is where Android kernels expose the framebuffer waits.
const DefaultPowerDir = "/sys/power"

// retryDelay spaces out reads after an error or unexpected content.
const retryDelay = time.Second

// FramebufferSource follows the Android display state: a read of
// wait_for_fb_sleep blocks until the screen turns off, and a read of
// wait_for_fb_wake blocks until it turns back on.
type FramebufferSource struct {
	dir string
}

// NewFramebufferSource creates a source reading from dir.
func NewFramebufferSource(dir string) *FramebufferSource {
	if dir == "" {
		dir = DefaultPowerDir
	}
	return &FramebufferSource{dir: dir}
}

func (s *FramebufferSource) Name() string { return SourceFramebuffer }

// Run alternates between the two waits until ctx is done. A blocked read
// cannot be interrupted, so it runs on its own goroutine.
func (s *FramebufferSource) Run(ctx context.Context, h domain.PowerHandler) error {
	if _, err := os.Stat(filepath.Join(s.dir, "wait_for_fb_sleep")); err != nil {
		return fmt.Errorf("framebuffer source: %w", err)
	}

	asleep := false
	for {
		file, want := "wait_for_fb_sleep", "sleeping"
		if asleep {
			file, want = "wait_for_fb_wake", "awake"
		}

		got, err := s.wait(ctx, file)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil || got != want {
			klog.V(2).InfoS("Unexpected framebuffer state", "file", file, "got", got, "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
			continue
		}

		if asleep {
			h.OnResume()
		} else {
			h.OnSuspend()
		}
		asleep = !asleep
	}
}

func (s *FramebufferSource) wait(ctx context.Context, file string) (string, error) {
	type result struct {
		data string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := os.ReadFile(filepath.Join(s.dir, file))
		ch <- result{strings.TrimSpace(string(data)), err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.data, r.err
	}
}
