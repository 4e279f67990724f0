package ports

import (
	"context"

	"github.com/slomkowski/usb-geiger/internal/domain"
)

// Sink consumes one measurement per monitoring cycle.
type Sink interface {
	Name() string
	Enabled() bool
	Update(ctx context.Context, m domain.Measurement) error
	Close() error
}
