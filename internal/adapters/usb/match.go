package usb

import (
	"fmt"

	"github.com/slomkowski/usb-geiger/internal/domain"
)

// candidate is one enumerated device that has not been opened yet.
type candidate interface {
	ids() (vendorID, productID uint16, err error)
	open() (openedCandidate, error)
}

type openedCandidate interface {
	names() (manufacturer, product string, err error)
	close() error
}

// selectDevice opens the first candidate matching cfg on VID/PID and both
// descriptor strings. Every other opened candidate is closed again.
func selectDevice(cfg Config, candidates []candidate) (openedCandidate, error) {
	for _, c := range candidates {
		vid, pid, err := c.ids()
		if err != nil || vid != cfg.VendorID || pid != cfg.ProductID {
			continue
		}

		oc, err := c.open()
		if err != nil {
			continue
		}
		manufacturer, product, err := oc.names()
		if err == nil && manufacturer == cfg.Manufacturer && product == cfg.Product {
			return oc, nil
		}
		_ = oc.close()
	}

	return nil, fmt.Errorf("%w: %04x:%04x %q %q", domain.ErrDeviceNotFound,
		cfg.VendorID, cfg.ProductID, cfg.Manufacturer, cfg.Product)
}
