//go:build !tinygo

package sx127x

import (
	"fmt"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// watchPoll bounds how long the watch goroutine blocks in WaitForEdge, so
// Unwatch returns promptly.
const watchPoll = 100 * time.Millisecond

// realPin wraps a gpio.PinIO to satisfy the Pin interface.
type realPin struct {
	gpio.PinIO
	pull  gpio.Pull
	watch *edgeWatch
}

// edgeWatch is one Watch goroutine.
type edgeWatch struct {
	stop     chan struct{}
	done     chan struct{}
	handling atomic.Bool
}

func toGpioPull(pull Pull) gpio.Pull {
	switch pull {
	case PullFloat:
		return gpio.Float
	case PullDown:
		return gpio.PullDown
	case PullUp:
		return gpio.PullUp
	default:
		return gpio.PullNoChange
	}
}

func toGpioEdge(edge Edge) gpio.Edge {
	switch edge {
	case RisingEdge:
		return gpio.RisingEdge
	case FallingEdge:
		return gpio.FallingEdge
	case BothEdges:
		return gpio.BothEdges
	default:
		return gpio.NoEdge
	}
}

func (p *realPin) Out(l Level) error {
	if l == High {
		return p.PinIO.Out(gpio.High)
	}
	return p.PinIO.Out(gpio.Low)
}

func (p *realPin) In(pull Pull) error {
	p.pull = toGpioPull(pull)
	return p.PinIO.In(p.pull, gpio.NoEdge)
}

func (p *realPin) Read() Level {
	if p.PinIO.Read() == gpio.High {
		return High
	}
	return Low
}

// Watch keeps the pull selected by In and enables edge detection. The
// handler runs on a dedicated goroutine, one edge at a time.
func (p *realPin) Watch(edge Edge, handler func()) error {
	if p.watch != nil {
		return fmt.Errorf("%w: pin %s already watched", ErrPkg, p.PinIO.Name())
	}
	if err := p.PinIO.In(p.pull, toGpioEdge(edge)); err != nil {
		return err
	}

	w := &edgeWatch{stop: make(chan struct{}), done: make(chan struct{})}
	p.watch = w

	go func() {
		defer close(w.done)
		for {
			edged := p.PinIO.WaitForEdge(watchPoll)
			select {
			case <-w.stop:
				return
			default:
			}
			if edged {
				w.handling.Store(true)
				handler()
				w.handling.Store(false)
			}
		}
	}()
	return nil
}

// Unwatch stops the watch goroutine and waits for it to exit, unless it is
// called from the handler itself: the goroutine then exits once the handler
// returns.
func (p *realPin) Unwatch() error {
	w := p.watch
	if w == nil {
		return nil
	}
	p.watch = nil
	close(w.stop)
	if !w.handling.Load() {
		<-w.done
	}
	// Disable edge detection
	return p.PinIO.In(p.pull, gpio.NoEdge)
}

// Config holds the configuration for the Linux/periph.io driver.
type Config struct {
	RadioConfig
	// ResetPin is the GPIO pin number (BCM numbering) wired to NRESET.
	// Defaults to 25 if not provided.
	ResetPin int
	// DIO0Pin is the GPIO pin number (BCM numbering) wired to DIO0.
	// Optional. If not provided, Poll must be used.
	DIO0Pin int
	// SpiBusPath is the path to the SPI bus (e.g., "/dev/spidev0.0").
	// Defaults to "/dev/spidev0.0" if not provided.
	SpiBusPath string
	// SpiClockHz is the SPI clock frequency in Hz. The chip accepts up to 10MHz.
	// Defaults to 500000 (500kHz) if not provided.
	SpiClockHz int
}

func openPin(number int, role string) (*realPin, error) {
	name := fmt.Sprintf("GPIO%d", number)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: failed to open %s pin %s", ErrPkg, role, name)
	}
	return &realPin{PinIO: p, pull: gpio.PullNoChange}, nil
}

// New creates and initializes a new SX127x driver for Linux systems.
// It applies configuration defaults, initializes the GPIO and SPI interfaces using periph.io,
// and configures the radio module.
// It returns the initialized driver or an error if hardware initialization fails.
func New(c Config) (*Device, error) {
	// 1. Initialize periph.io host (Required for both SPI and GPIO)
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize periph.io host: %w", ErrPkg, err)
	}

	// 2. Defaults
	if c.SpiBusPath == "" {
		c.SpiBusPath = "/dev/spidev0.0"
	}
	if c.SpiClockHz == 0 {
		c.SpiClockHz = 500000
	}
	if c.ResetPin == 0 {
		c.ResetPin = 25
	}

	// 3. Open the SPI Port
	p, err := spireg.Open(c.SpiBusPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open SPI port: %w", ErrPkg, err)
	}

	// 4. Create the SPI Connection (Mode 0, 8 bits). The kernel driver toggles
	// chip-select around each Tx.
	conn, err := p.Connect(physic.Frequency(c.SpiClockHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("%w: failed to create SPI connection: %w", ErrPkg, err)
	}

	// 5. Reset and DIO0
	reset, err := openPin(c.ResetPin, "reset")
	if err != nil {
		p.Close()
		return nil, err
	}
	hwConfig := HardwareConfig{
		RadioConfig: c.RadioConfig,
		Reset:       reset,
	}
	if c.DIO0Pin != 0 {
		dio0, err := openPin(c.DIO0Pin, "DIO0")
		if err != nil {
			p.Close()
			return nil, err
		}
		hwConfig.DIO0 = dio0
	}

	// 6. Call internal constructor
	dev, err := NewWithHardware(hwConfig, conn)
	if err != nil {
		p.Close()
		return nil, err
	}

	// Store the port closer so we can close it later
	dev.port = p
	return dev, nil
}
