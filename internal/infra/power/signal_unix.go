//go:build unix

package power

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/clusterplug/clusterplug/internal/domain"
)

// SignalSource maps SIGUSR1 to suspend and SIGUSR2 to resume, for hosts
// where a sleep hook script can signal the daemon.
type SignalSource struct {
	suspend os.Signal
	resume  os.Signal
}

// NewSignalSource creates a source on SIGUSR1/SIGUSR2.
func NewSignalSource() *SignalSource {
	return &SignalSource{suspend: syscall.SIGUSR1, resume: syscall.SIGUSR2}
}

func (s *SignalSource) Name() string { return SourceSignal }

// Run dispatches signals until ctx is done.
func (s *SignalSource) Run(ctx context.Context, h domain.PowerHandler) error {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, s.suspend, s.resume)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-ch:
			klog.V(2).InfoS("Power signal received", "signal", sig)
			if sig == s.suspend {
				h.OnSuspend()
			} else {
				h.OnResume()
			}
		}
	}
}
