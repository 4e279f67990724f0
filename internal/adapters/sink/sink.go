// Package sink holds the measurement consumers the monitor dispatches to.
//
// Every sink follows the same lifecycle: a constructor that returns a disabled
// sink when its section is switched off, an error when the section is enabled
// but unusable, and a Close that may be called any number of times.
package sink

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/slomkowski/usb-geiger/internal/domain"
)

type lifecycle struct {
	enabled atomic.Bool
}

func (l *lifecycle) Enabled() bool { return l.enabled.Load() }

// disable reports whether the sink was enabled before the call.
func (l *lifecycle) disable() bool { return l.enabled.Swap(false) }

func sinkErr(name string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", domain.ErrSink, name, fmt.Sprintf(format, args...))
}

func formatValue(v *float64, decimalSep string) string {
	if v == nil {
		return ""
	}
	s := strconv.FormatFloat(*v, 'f', -1, 64)
	if decimalSep != "" && decimalSep != "." {
		s = strings.Replace(s, ".", decimalSep, 1)
	}
	return s
}
