//go:build !unix

package power

import (
	"context"
	"errors"

	"github.com/clusterplug/clusterplug/internal/domain"
)

// SignalSource is unavailable on this platform.
type SignalSource struct{}

func NewSignalSource() *SignalSource { return &SignalSource{} }

func (s *SignalSource) Name() string { return SourceSignal }

func (s *SignalSource) Run(context.Context, domain.PowerHandler) error {
	return errors.New("signal suspend source requires a unix platform")
}
