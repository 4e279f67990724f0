package usb

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/slomkowski/usb-geiger/internal/domain"
	"github.com/slomkowski/usb-geiger/internal/ports"
)

// Identifiers shared by every V-USB based device. The descriptor strings tell
// the Geiger counter apart from other devices using the same pair.
const (
	VendorID     = uint16(0x16c0)
	ProductID    = uint16(0x05df)
	Manufacturer = "slomkowski.eu"
	Product      = "USB Geiger"
)

const (
	requestTypeIn  = byte(0xC0) // device-to-host | vendor | device
	requestTypeOut = byte(0x40) // host-to-device | vendor | device

	registerSize = 2
	maxRegister  = 0xFFFF
)

// Config selects which device to open.
type Config struct {
	VendorID     uint16        `yaml:"vendor_id"`
	ProductID    uint16        `yaml:"product_id"`
	Manufacturer string        `yaml:"manufacturer"`
	Product      string        `yaml:"product"`
	Timeout      time.Duration `yaml:"timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.VendorID == 0 {
		c.VendorID = VendorID
	}
	if c.ProductID == 0 {
		c.ProductID = ProductID
	}
	if c.Manufacturer == "" {
		c.Manufacturer = Manufacturer
	}
	if c.Product == "" {
		c.Product = Product
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
}

// handle is one opened device as seen by the link.
type handle interface {
	control(requestType, request byte, value uint16, data []byte, timeout time.Duration) (int, error)
	reset() error
	close() error
}

type opener func(cfg Config) (handle, error)

// Link owns exactly one opened Geiger device.
type Link struct {
	cfg  Config
	open opener
	h    handle
}

// Open finds the device on the bus and opens it.
func Open(cfg Config) (*Link, error) {
	return newLink(cfg, openLibusb)
}

func newLink(cfg Config, open opener) (*Link, error) {
	cfg.ApplyDefaults()
	h, err := open(cfg)
	if err != nil {
		return nil, err
	}
	return &Link{cfg: cfg, open: open, h: h}, nil
}

// Send writes value into the wValue field of an outbound vendor request.
func (l *Link) Send(req ports.Request, value int) error {
	if value < 0 || value > maxRegister {
		return fmt.Errorf("%w: device doesn't support values longer than two bytes (%d)", domain.ErrInvalidArgument, value)
	}
	if l.h == nil {
		return fmt.Errorf("%w: device is not open", domain.ErrLink)
	}
	if _, err := l.h.control(requestTypeOut, byte(req), uint16(value), nil, l.cfg.Timeout); err != nil {
		return fmt.Errorf("%w: request %d: %v", domain.ErrLink, req, err)
	}
	return nil
}

// Receive reads one little-endian register from an inbound vendor request.
func (l *Link) Receive(req ports.Request) (uint16, error) {
	if l.h == nil {
		return 0, fmt.Errorf("%w: device is not open", domain.ErrLink)
	}
	buf := make([]byte, registerSize)
	n, err := l.h.control(requestTypeIn, byte(req), 0, buf, l.cfg.Timeout)
	if err != nil {
		return 0, fmt.Errorf("%w: request %d: %v", domain.ErrLink, req, err)
	}
	if n < registerSize {
		return 0, fmt.Errorf("%w: request %d: device sent %d of %d bytes", domain.ErrLink, req, n, registerSize)
	}
	return binary.LittleEndian.Uint16(buf), nil
}

// Reset forces a bus reset and discovers the device again. Failures of the
// reset itself are ignored; only the outcome of reopening is reported.
func (l *Link) Reset() error {
	if l.h != nil {
		_ = l.h.reset()
		_ = l.h.close()
		l.h = nil
	}
	h, err := l.open(l.cfg)
	if err != nil {
		return err
	}
	l.h = h
	return nil
}

// Close releases the device. Calling it again is a no-op.
func (l *Link) Close() error {
	if l.h == nil {
		return nil
	}
	err := l.h.close()
	l.h = nil
	return err
}

var _ ports.DeviceLink = (*Link)(nil)
