// Package converter translates Geiger counter registers to engineering units.
package converter

import (
	"fmt"
	"math"

	"github.com/slomkowski/usb-geiger/internal/domain"
	"github.com/slomkowski/usb-geiger/internal/ports"
)

// Defaults for the tube and the supply voltage divider.
const (
	DefaultTubeSensitivity = 25.0 // counts per µSv
	DefaultTubeVoltage     = 390.0
	DefaultUpperResistor   = 2000.0
	DefaultLowerResistor   = 4.7
)

// Fixed by the firmware.
const (
	TicksPerSecond = 100
	MinInterval    = 1.0
	MaxInterval    = float64(0xFFFF) / TicksPerSecond
	MinVoltage     = 50.0
	MaxVoltage     = 450.0

	adcReference = 1.1
	adcSteps     = 1024.0
)

// Params is the engineering configuration of the attached tube.
type Params struct {
	TubeSensitivity float64 `yaml:"tube_sensitivity"`
	TubeVoltage     float64 `yaml:"tube_voltage"`
	UpperResistor   float64 `yaml:"upper_resistor"`
	LowerResistor   float64 `yaml:"lower_resistor"`
}

func (p *Params) ApplyDefaults() {
	if p.TubeSensitivity <= 0 {
		p.TubeSensitivity = DefaultTubeSensitivity
	}
	if p.TubeVoltage <= 0 {
		p.TubeVoltage = DefaultTubeVoltage
	}
	if p.UpperResistor <= 0 {
		p.UpperResistor = DefaultUpperResistor
	}
	if p.LowerResistor <= 0 {
		p.LowerResistor = DefaultLowerResistor
	}
}

// Converter wraps a DeviceLink with conversions to seconds, volts, CPM and µSv/h.
type Converter struct {
	link          ports.DeviceLink
	params        Params
	dividerFactor float64
}

func New(link ports.DeviceLink, p Params) *Converter {
	p.ApplyDefaults()
	return &Converter{
		link:          link,
		params:        p,
		dividerFactor: p.LowerResistor / (p.LowerResistor + p.UpperResistor),
	}
}

func (c *Converter) Params() Params { return c.params }

// ValidateInterval reports whether seconds can be programmed into the device.
func ValidateInterval(seconds float64) error {
	if math.IsNaN(seconds) || seconds < MinInterval || seconds > MaxInterval {
		return fmt.Errorf("%w: interval has to be between %g and %g seconds, got %g",
			domain.ErrOutOfRange, MinInterval, MaxInterval, seconds)
	}
	return nil
}

// ValidateVoltage reports whether volts is a tube voltage the supply can produce.
func ValidateVoltage(volts float64) error {
	if math.IsNaN(volts) || volts < MinVoltage || volts > MaxVoltage {
		return fmt.Errorf("%w: voltage has to be between %g and %g volts, got %g",
			domain.ErrOutOfRange, MinVoltage, MaxVoltage, volts)
	}
	return nil
}

// SetInterval programs the counting window. The device clears its counters.
func (c *Converter) SetInterval(seconds float64) error {
	if err := ValidateInterval(seconds); err != nil {
		return err
	}
	ticks := int(math.Round(seconds * TicksPerSecond))
	return c.link.Send(ports.RequestSetInterval, ticks)
}

// Interval returns the programmed counting window in seconds.
func (c *Converter) Interval() (float64, error) {
	ticks, err := c.link.Receive(ports.RequestGetInterval)
	if err != nil {
		return 0, err
	}
	return float64(ticks) / TicksPerSecond, nil
}

// SetVoltage programs the desired tube supply voltage.
func (c *Converter) SetVoltage(volts float64) error {
	if err := ValidateVoltage(volts); err != nil {
		return err
	}
	raw := int(c.dividerFactor * volts * adcSteps / adcReference)
	return c.link.Send(ports.RequestSetVoltage, raw)
}

// ApplyTubeVoltage programs the voltage from Params.
func (c *Converter) ApplyTubeVoltage() error {
	return c.SetVoltage(c.params.TubeVoltage)
}

// Voltage returns the measured tube supply voltage, rounded to whole volts.
func (c *Converter) Voltage() (float64, error) {
	raw, err := c.link.Receive(ports.RequestGetVoltage)
	if err != nil {
		return 0, err
	}
	return math.Round(adcReference * float64(raw) / (c.dividerFactor * adcSteps)), nil
}

// CPM returns counts per minute for the last completed window.
func (c *Converter) CPM() (float64, error) {
	counts, err := c.link.Receive(ports.RequestGetCounts)
	if err != nil {
		return 0, err
	}
	return c.cpmFor(counts)
}

// Radiation returns the dose rate in µSv/h for the last completed window.
func (c *Converter) Radiation() (float64, error) {
	cpm, err := c.CPM()
	if err != nil {
		return 0, err
	}
	return c.RadiationFor(cpm), nil
}

// RadiationFor converts an already known CPM value without touching the device.
func (c *Converter) RadiationFor(cpm float64) float64 {
	return round((cpm/60.0)*10.0/c.params.TubeSensitivity, 3)
}

// CPMAndRadiation derives both values from a single counts read.
func (c *Converter) CPMAndRadiation() (cpm, radiation float64, err error) {
	cpm, err = c.CPM()
	if err != nil {
		return 0, 0, err
	}
	return cpm, c.RadiationFor(cpm), nil
}

// CountAcknowledged reads and clears the new-count flag.
func (c *Converter) CountAcknowledged() (bool, error) {
	v, err := c.link.Receive(ports.RequestAcknowledgeFlag)
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

// Reset resets the underlying link. The device must be reprogrammed afterwards.
func (c *Converter) Reset() error {
	return c.link.Reset()
}

func (c *Converter) cpmFor(counts uint16) (float64, error) {
	interval, err := c.Interval()
	if err != nil {
		return 0, err
	}
	if interval <= 0 {
		return 0, fmt.Errorf("%w: device reports a zero measuring interval", domain.ErrInvalidArgument)
	}
	return round(float64(counts)/interval*60.0, 2), nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
