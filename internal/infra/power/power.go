// Package power delivers system sleep and wake transitions to the
// controller. Each source is a strategy selected at startup.
package power

import (
	"context"
	"fmt"

	"github.com/clusterplug/clusterplug/internal/domain"
)

// Source names accepted by New.
const (
	SourceSignal      = "signal"
	SourceFramebuffer = "fb"
	SourceNone        = "none"
)

// Options configures the concrete sources.
type Options struct {
	// PowerDir holds wait_for_fb_sleep and wait_for_fb_wake.
	PowerDir string
}

// New returns the named suspend source.
func New(name string, opts Options) (domain.SuspendSource, error) {
	switch name {
	case SourceSignal:
		return NewSignalSource(), nil
	case SourceFramebuffer:
		return NewFramebufferSource(opts.PowerDir), nil
	case SourceNone, "":
		return None{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSuspendSource, name)
	}
}

// None never delivers a transition. Suspend and resume can still be driven
// through the API.
type None struct{}

func (None) Name() string { return SourceNone }

func (None) Run(ctx context.Context, _ domain.PowerHandler) error {
	<-ctx.Done()
	return nil
}
