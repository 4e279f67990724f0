package ports

// Request is a vendor-class control request code understood by the firmware.
type Request byte

const (
	RequestGetCounts       Request = 10
	RequestSetInterval     Request = 20
	RequestGetInterval     Request = 21
	RequestSetVoltage      Request = 30
	RequestGetVoltage      Request = 31
	RequestAcknowledgeFlag Request = 40
)

// DeviceLink exchanges 16-bit register values with one opened device.
type DeviceLink interface {
	Send(req Request, value int) error
	Receive(req Request) (uint16, error)
	Reset() error
	Close() error
}
