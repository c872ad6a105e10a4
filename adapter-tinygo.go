//go:build tinygo

package sx127x

import (
	"machine"
)

// tinygoPin wraps a machine.Pin to satisfy the Pin interface.
type tinygoPin struct {
	pin  machine.Pin
	mode machine.PinMode
}

func (p *tinygoPin) Out(l Level) error {
	p.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.pin.Set(bool(l))
	return nil
}

func (p *tinygoPin) In(pull Pull) error {
	switch pull {
	case PullUp:
		p.mode = machine.PinInputPullup
	case PullDown:
		p.mode = machine.PinInputPulldown
	default:
		p.mode = machine.PinInput
	}
	p.pin.Configure(machine.PinConfig{Mode: p.mode})
	return nil
}

func (p *tinygoPin) Read() Level {
	return Level(p.pin.Get())
}

// Watch runs handler in interrupt context. The driver takes a mutex and
// talks SPI from it, so boards whose GPIO interrupts cannot block should
// leave DIO0 unwired and call Poll instead.
func (p *tinygoPin) Watch(edge Edge, handler func()) error {
	var mEdge machine.PinChange
	switch edge {
	case RisingEdge:
		mEdge = machine.PinRising
	case FallingEdge:
		mEdge = machine.PinFalling
	case BothEdges:
		mEdge = machine.PinToggle
	default:
		return nil
	}

	return p.pin.SetInterrupt(mEdge, func(machine.Pin) {
		handler()
	})
}

func (p *tinygoPin) Unwatch() error {
	return p.pin.SetInterrupt(0, nil)
}

// tinygoSPI wraps a machine.SPI to satisfy the SPI interface. Chip-select is
// held low for the whole buffer, one Tx is one register transaction.
type tinygoSPI struct {
	spi *machine.SPI
	cs  machine.Pin
}

func (s *tinygoSPI) Tx(w, r []byte) error {
	s.cs.Low()
	err := s.spi.Tx(w, r)
	s.cs.High()
	return err
}

// NewTinyGo creates a new SX127x driver for TinyGo systems. Pass machine.NoPin
// as dio0Pin to run without interrupts.
func NewTinyGo(c RadioConfig, spi *machine.SPI, csPin, resetPin, dio0Pin machine.Pin) (*Device, error) {
	// Configure CS pin as output and set high (inactive)
	csPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	csPin.High()

	hwConfig := HardwareConfig{
		RadioConfig: c,
		Reset:       &tinygoPin{pin: resetPin},
	}
	if dio0Pin != machine.NoPin {
		hwConfig.DIO0 = &tinygoPin{pin: dio0Pin}
	}

	return NewWithHardware(hwConfig, &tinygoSPI{spi: spi, cs: csPin})
}
