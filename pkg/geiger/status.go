package geiger

import (
	"github.com/slomkowski/usb-geiger/internal/adapters/usb"
	"github.com/slomkowski/usb-geiger/internal/app/converter"
)

// Status is a one-shot snapshot of the device registers in physical units.
type Status struct {
	Radiation float64 // uSv/h
	CPM       float64
	Interval  float64 // seconds
	Voltage   float64 // volts
	// NewCount reports whether the device counted a pulse since the flag was last read.
	NewCount bool
}

// OpenDevice opens the first counter matching cfg.
func OpenDevice(cfg USBConfig) (DeviceLink, error) {
	return usb.Open(cfg)
}

// ReadStatus reads every register once without reprogramming the device.
// Reading the count flag clears it.
func ReadStatus(link DeviceLink, tube TubeParams) (Status, error) {
	conv := converter.New(link, tube)

	var (
		st  Status
		err error
	)
	if st.CPM, st.Radiation, err = conv.CPMAndRadiation(); err != nil {
		return Status{}, err
	}
	if st.Interval, err = conv.Interval(); err != nil {
		return Status{}, err
	}
	if st.Voltage, err = conv.Voltage(); err != nil {
		return Status{}, err
	}
	if st.NewCount, err = conv.CountAcknowledged(); err != nil {
		return Status{}, err
	}
	return st, nil
}
