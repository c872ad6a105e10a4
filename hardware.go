package sx127x

import "time"

// HardwareConfig is the platform independent wiring of the radio.
type HardwareConfig struct {
	RadioConfig
	// Reset drives the chip's NRESET line. Mandatory.
	Reset Pin
	// DIO0 is the interrupt line carrying RxDone/TxDone. When nil, completions
	// are only serviced through Poll.
	DIO0 Pin
}

// Reset timings: NRESET low for more than 100us, then 5ms before the chip
// accepts SPI.
const (
	resetPulse  = 10 * time.Millisecond
	resetSettle = 10 * time.Millisecond
)

// reset pulses NRESET, which returns every register to its default.
func (d *Device) reset() error {
	if err := d.config.Reset.Out(Low); err != nil {
		return err
	}
	time.Sleep(resetPulse)
	if err := d.config.Reset.Out(High); err != nil {
		return err
	}
	time.Sleep(resetSettle)
	return nil
}
