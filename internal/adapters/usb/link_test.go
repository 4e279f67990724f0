package usb

import (
	"errors"
	"testing"
	"time"

	"github.com/slomkowski/usb-geiger/internal/domain"
	"github.com/slomkowski/usb-geiger/internal/ports"
)

func TestLinkReceiveLittleEndian(t *testing.T) {
	h := &stubHandle{response: []byte{0x34, 0x12}}
	link := mustLink(t, h)

	v, err := link.Receive(ports.RequestGetCounts)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if v != 0x1234 {
		t.Fatalf("expected 0x1234, got %#x", v)
	}
	call := h.calls[0]
	if call.requestType != requestTypeIn || call.request != byte(ports.RequestGetCounts) {
		t.Fatalf("unexpected control call %+v", call)
	}
	if call.timeout != time.Second {
		t.Fatalf("expected default timeout, got %s", call.timeout)
	}
}

func TestLinkReceiveShortResponse(t *testing.T) {
	h := &stubHandle{response: []byte{0x01}}
	link := mustLink(t, h)

	if _, err := link.Receive(ports.RequestGetVoltage); !errors.Is(err, domain.ErrLink) {
		t.Fatalf("expected ErrLink for short response, got %v", err)
	}
}

func TestLinkReceiveTransportFailure(t *testing.T) {
	h := &stubHandle{err: errors.New("pipe error")}
	link := mustLink(t, h)

	if _, err := link.Receive(ports.RequestGetInterval); !errors.Is(err, domain.ErrLink) {
		t.Fatalf("expected ErrLink, got %v", err)
	}
}

func TestLinkSendPlacesValueInSetupPacket(t *testing.T) {
	h := &stubHandle{}
	link := mustLink(t, h)

	if err := link.Send(ports.RequestSetInterval, 6000); err != nil {
		t.Fatalf("send: %v", err)
	}
	call := h.calls[0]
	if call.requestType != requestTypeOut || call.request != byte(ports.RequestSetInterval) || call.value != 6000 {
		t.Fatalf("unexpected control call %+v", call)
	}
	if call.length != 0 {
		t.Fatalf("outbound request should carry no data stage, got %d bytes", call.length)
	}
}

func TestLinkSendRejectsWideValues(t *testing.T) {
	h := &stubHandle{}
	link := mustLink(t, h)

	for _, v := range []int{0x10000, -1} {
		if err := link.Send(ports.RequestSetVoltage, v); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("value %d: expected ErrInvalidArgument, got %v", v, err)
		}
	}
	if len(h.calls) != 0 {
		t.Fatalf("invalid values must not reach the bus")
	}
	if err := link.Send(ports.RequestSetVoltage, 0xFFFF); err != nil {
		t.Fatalf("0xFFFF must be accepted: %v", err)
	}
}

func TestLinkResetSwallowsBusErrorAndReopens(t *testing.T) {
	first := &stubHandle{resetErr: errors.New("reset failed")}
	second := &stubHandle{response: []byte{7, 0}}
	handles := []*stubHandle{first, second}
	opens := 0

	link, err := newLink(Config{}, func(Config) (handle, error) {
		h := handles[opens]
		opens++
		return h, nil
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := link.Reset(); err != nil {
		t.Fatalf("reset should succeed when reopening works: %v", err)
	}
	if !first.resetCalled || !first.closed {
		t.Fatalf("expected old handle to be reset and closed")
	}
	v, err := link.Receive(ports.RequestGetCounts)
	if err != nil || v != 7 {
		t.Fatalf("expected reads from the new handle, got %d %v", v, err)
	}
}

func TestLinkResetReportsMissingDevice(t *testing.T) {
	opens := 0
	link, err := newLink(Config{}, func(Config) (handle, error) {
		opens++
		if opens > 1 {
			return nil, domain.ErrDeviceNotFound
		}
		return &stubHandle{}, nil
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := link.Reset(); !errors.Is(err, domain.ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
	if _, err := link.Receive(ports.RequestGetCounts); !errors.Is(err, domain.ErrLink) {
		t.Fatalf("expected ErrLink on a link without device, got %v", err)
	}
}

func TestLinkCloseIsIdempotent(t *testing.T) {
	h := &stubHandle{}
	link := mustLink(t, h)

	if err := link.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := link.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if h.closeCount != 1 {
		t.Fatalf("expected one release of the handle, got %d", h.closeCount)
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.VendorID != 0x16c0 || cfg.ProductID != 0x05df {
		t.Fatalf("unexpected ids %04x:%04x", cfg.VendorID, cfg.ProductID)
	}
	if cfg.Manufacturer != "slomkowski.eu" || cfg.Product != "USB Geiger" {
		t.Fatalf("unexpected descriptor strings %q %q", cfg.Manufacturer, cfg.Product)
	}
}

func mustLink(t *testing.T, h *stubHandle) *Link {
	t.Helper()
	link, err := newLink(Config{}, func(Config) (handle, error) { return h, nil })
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return link
}

type controlCall struct {
	requestType byte
	request     byte
	value       uint16
	length      int
	timeout     time.Duration
}

type stubHandle struct {
	response    []byte
	err         error
	resetErr    error
	calls       []controlCall
	resetCalled bool
	closed      bool
	closeCount  int
}

func (s *stubHandle) control(requestType, request byte, value uint16, data []byte, timeout time.Duration) (int, error) {
	s.calls = append(s.calls, controlCall{requestType, request, value, len(data), timeout})
	if s.err != nil {
		return 0, s.err
	}
	return copy(data, s.response), nil
}

func (s *stubHandle) reset() error {
	s.resetCalled = true
	return s.resetErr
}

func (s *stubHandle) close() error {
	s.closed = true
	s.closeCount++
	return nil
}
