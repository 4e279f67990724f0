package usb

import (
	"fmt"
	"time"

	"github.com/gotmc/libusb"

	"github.com/slomkowski/usb-geiger/internal/domain"
)

type libusbHandle struct {
	ctx *libusb.Context
	dh  *libusb.DeviceHandle
}

func (h *libusbHandle) control(requestType, request byte, value uint16, data []byte, timeout time.Duration) (int, error) {
	return h.dh.ControlTransfer(requestType, request, value, 0, data, len(data), int(timeout.Milliseconds()))
}

func (h *libusbHandle) reset() error {
	return h.dh.ResetDevice()
}

func (h *libusbHandle) close() error {
	err := h.dh.Close()
	if cerr := h.ctx.Close(); err == nil {
		err = cerr
	}
	return err
}

type libusbCandidate struct {
	dev *libusb.Device
}

func (c libusbCandidate) ids() (uint16, uint16, error) {
	desc, err := c.dev.GetDeviceDescriptor()
	if err != nil {
		return 0, 0, err
	}
	return desc.VendorID, desc.ProductID, nil
}

func (c libusbCandidate) open() (openedCandidate, error) {
	desc, err := c.dev.GetDeviceDescriptor()
	if err != nil {
		return nil, err
	}
	dh, err := c.dev.Open()
	if err != nil {
		return nil, err
	}
	return &libusbOpened{
		dh: dh,
		readNames: func() (string, string, error) {
			manufacturer, err := dh.GetStringDescriptorASCII(desc.ManufacturerIndex)
			if err != nil {
				return "", "", err
			}
			product, err := dh.GetStringDescriptorASCII(desc.ProductIndex)
			if err != nil {
				return "", "", err
			}
			return manufacturer, product, nil
		},
	}, nil
}

type libusbOpened struct {
	dh        *libusb.DeviceHandle
	readNames func() (string, string, error)
}

func (o *libusbOpened) names() (string, string, error) { return o.readNames() }
func (o *libusbOpened) close() error                   { return o.dh.Close() }

// openLibusb walks the bus and returns the first device whose identifiers
// and descriptor strings all match.
func openLibusb(cfg Config) (handle, error) {
	ctx, err := libusb.NewContext()
	if err != nil {
		return nil, fmt.Errorf("%w: libusb init: %v", domain.ErrLink, err)
	}

	devices, err := ctx.GetDeviceList()
	if err != nil {
		_ = ctx.Close()
		return nil, fmt.Errorf("%w: list devices: %v", domain.ErrLink, err)
	}

	candidates := make([]candidate, len(devices))
	for i, dev := range devices {
		candidates[i] = libusbCandidate{dev: dev}
	}

	oc, err := selectDevice(cfg, candidates)
	if err != nil {
		_ = ctx.Close()
		return nil, err
	}
	return &libusbHandle{ctx: ctx, dh: oc.(*libusbOpened).dh}, nil
}
