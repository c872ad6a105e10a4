// Package sx127x drives a Semtech SX1276/77/78/79 (HopeRF RFM9x) radio in LoRa
// mode over SPI. It turns the chip's register file into an interrupt driven
// packet engine: Send stages a packet in the FIFO and starts transmitting,
// DIO0 rising edges are dispatched to the receive and transmit completion
// handlers, and subscribers are notified through OnReceive and OnTransmitDone.
package sx127x

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
)

var (
	ErrPkg               = errors.New("sx127x")
	ErrTransport         = errors.New("spi transaction failed")
	ErrArgument          = errors.New("invalid argument")
	ErrTransmitBusy      = errors.New("transmit in progress")
	ErrSpuriousInterrupt = errors.New("spurious interrupt")
	ErrNotDetected       = errors.New("sx127x not detected")
	ErrTimeout           = errors.New("timeout waiting for device")
	ErrCRC               = errors.New("payload crc error")
)

type RadioConfig struct {
	// Frequency is the carrier frequency. It is mandatory since the permitted
	// frequencies depend on the region and on the module (433, 868 or 915MHz).
	Frequency physic.Frequency
	// PABoost selects the PA_BOOST output pin instead of RFO. RFM9x modules only
	// have PA_BOOST connected.
	PABoost bool
	// RxPayloadCRC enables the payload CRC. Packets failing the check are dropped.
	RxPayloadCRC bool
	// TxPower is the output power in dBm.
	// Range: 2 to 20 with PABoost, -1 to 14 without.
	// Defaults to 17 (PABoost) or 14 if not provided.
	TxPower int8
	// PreambleLength is the number of preamble symbols (the chip adds 4.25).
	// Defaults to 8 if not provided.
	PreambleLength uint16
	// SpreadingFactor is the log2 of chips per symbol.
	// Range: 7 to 12. SF6 needs implicit headers and is not supported.
	// Defaults to 7 if not provided.
	SpreadingFactor uint8
	// Bandwidth is the signal bandwidth, rounded up to the next supported step.
	// Defaults to 125kHz if not provided.
	Bandwidth physic.Frequency
	// CodingRate is the denominator of the 4/x coding rate.
	// Range: 5 to 8.
	// Defaults to 5 if not provided.
	CodingRate uint8
	// SyncWord must match on both ends. 0x34 is reserved for LoRaWAN.
	// Defaults to 0x12 if not provided.
	SyncWord byte
	// AddressLength is the fixed length of the address prefix carried in front
	// of every payload. Both ends must agree on it, the packet does not encode it.
	// Defaults to 0 (addressing disabled).
	AddressLength int
	// PollInterval is the IRQ flags polling period used by Poll.
	// Defaults to 5ms if not provided.
	PollInterval time.Duration
	// Logger receives driver logs. Defaults to the platform logger.
	Logger Logger
}

func (c *RadioConfig) applyDefaults() error {
	if c.Frequency == 0 {
		return fmt.Errorf("%w: frequency is mandatory", ErrArgument)
	}
	if c.Frequency < minFrequency || c.Frequency > maxFrequency {
		return fmt.Errorf("%w: frequency %s outside %s-%s", ErrArgument, c.Frequency, minFrequency, maxFrequency)
	}
	if c.TxPower == 0 {
		if c.PABoost {
			c.TxPower = 17
		} else {
			c.TxPower = 14
		}
	}
	if c.PreambleLength == 0 {
		c.PreambleLength = 8
	}
	if c.SpreadingFactor == 0 {
		c.SpreadingFactor = 7
	}
	if c.SpreadingFactor < 7 || c.SpreadingFactor > 12 {
		return fmt.Errorf("%w: spreading factor must be between 7 and 12", ErrArgument)
	}
	if c.Bandwidth == 0 {
		c.Bandwidth = 125 * physic.KiloHertz
	}
	if c.CodingRate == 0 {
		c.CodingRate = 5
	}
	if c.CodingRate < 5 || c.CodingRate > 8 {
		return fmt.Errorf("%w: coding rate must be between 5 and 8", ErrArgument)
	}
	if c.SyncWord == 0 {
		c.SyncWord = 0x12
	}
	if c.AddressLength < 0 || c.AddressLength > _MAX_PACKET_BYTES {
		return fmt.Errorf("%w: address length must be between 0 and %d", ErrArgument, _MAX_PACKET_BYTES)
	}
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = defaultLogger()
	}
	return nil
}

type Device struct {
	config HardwareConfig
	bus    transport
	log    Logger
	port   io.Closer
	// mu serializes every register sequence between the interrupt handler
	// and application calls, and guards txBusy.
	mu     sync.Mutex
	txBusy bool

	handlersMu sync.Mutex
	rxHandlers []func(ReceivedMessage)
	txHandlers []func()
}

// NewWithHardware creates and initializes a new SX127x driver with the provided hardware interfaces.
// It resets the chip, checks its version, runs the initialisation sequence and leaves
// the radio in receive-continuous mode with DIO0 reporting RxDone.
func NewWithHardware(c HardwareConfig, conn SPI) (*Device, error) {
	if err := c.applyDefaults(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPkg, err)
	}
	if conn == nil {
		return nil, fmt.Errorf("%w: SPI connection not configured", ErrPkg)
	}
	if c.Reset == nil {
		return nil, fmt.Errorf("%w: reset pin not configured", ErrPkg)
	}

	dev := &Device{
		config: c,
		bus:    transport{conn: conn},
		log:    c.Logger,
	}

	dev.log.Info("Initializing SX127x SPI communication...")

	// 1. Cold start: the chip ignores SPI until reset has been pulsed.
	if err := dev.reset(); err != nil {
		return nil, fmt.Errorf("%w: reset: %w", ErrPkg, err)
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()

	// 2. Verify the chip answers with the expected silicon version.
	version, err := dev.bus.readByte(_VERSION)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPkg, err)
	}
	if version != _EXPECTED_VERSION {
		return nil, fmt.Errorf("%w: %w: version 0x%02X, expected 0x%02X, check wiring/power",
			ErrPkg, ErrNotDetected, version, _EXPECTED_VERSION)
	}

	// 3. Radio parameters, ends in receive-continuous.
	if err := dev.initialise(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPkg, err)
	}

	// 4. Interrupt line. Without it the application drives Poll.
	if dev.config.DIO0 != nil {
		if err := dev.config.DIO0.In(PullDown); err != nil {
			return nil, fmt.Errorf("%w: failed to configure DIO0 pin: %w", ErrPkg, err)
		}
		if err := dev.config.DIO0.Watch(RisingEdge, dev.handleInterrupt); err != nil {
			return nil, fmt.Errorf("%w: failed to watch DIO0 pin: %w", ErrPkg, err)
		}
	} else {
		dev.log.Warn("DIO0 pin not configured, completions must be polled")
	}

	dev.log.Info("SX127x initialized, listening in receive-continuous mode.")
	return dev, nil
}

func (d *Device) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return fmt.Sprintf("SX127x(Frequency=%s, PABoost=%v, TxPower=%ddBm, SF=%d, Bandwidth=%s, CR=4/%d, CRC=%v, AddressLength=%d)",
		d.config.Frequency,
		d.config.PABoost,
		d.config.TxPower,
		d.config.SpreadingFactor,
		d.config.Bandwidth,
		d.config.CodingRate,
		d.config.RxPayloadCRC,
		d.config.AddressLength,
	)
}

// Initialise re-runs the initialisation sequence with a new carrier frequency,
// output pin and CRC setting: sleep, frequency, PA, modem configuration and back
// to receive-continuous. It fails with ErrTransmitBusy while a packet is in flight.
// This method is concurrent safe.
func (d *Device) Initialise(frequency physic.Frequency, paBoost, rxPayloadCRC bool) error {
	if frequency == 0 {
		return fmt.Errorf("%w: %w: frequency is mandatory", ErrPkg, ErrArgument)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.txBusy {
		return fmt.Errorf("%w: %w", ErrPkg, ErrTransmitBusy)
	}
	// Validate on a copy, a rejected call leaves the radio listening as before.
	next := d.config.RadioConfig
	if paBoost != next.PABoost {
		// The power range differs per output pin, fall back to its default.
		next.TxPower = 0
	}
	next.Frequency = frequency
	next.PABoost = paBoost
	next.RxPayloadCRC = rxPayloadCRC
	if err := next.applyDefaults(); err != nil {
		return fmt.Errorf("%w: %w", ErrPkg, err)
	}
	d.config.RadioConfig = next
	if err := d.initialise(); err != nil {
		return fmt.Errorf("%w: %w", ErrPkg, err)
	}
	return nil
}

// Version reads the silicon version register (0x12 for the SX1276 family).
// This method is concurrent safe.
func (d *Device) Version() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bus.readByte(_VERSION)
}

// Mode reads back the current operating mode from the chip.
// This method is concurrent safe.
func (d *Device) Mode() (Mode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, err := d.bus.readByte(_OP_MODE)
	if err != nil {
		return 0, err
	}
	if v&_LONG_RANGE_MODE == 0 {
		return 0, fmt.Errorf("%w: chip is in FSK/OOK mode, op-mode 0x%02X", ErrPkg, v)
	}
	return Mode(v & _MODE_MASK), nil
}

// Close cleans up the resources used by the SX127x driver.
// It stops the interrupt watch, puts the radio to sleep and closes the SPI port
// when the driver opened it.
// It may be called from an OnReceive or OnTransmitDone handler.
// This method is concurrent safe.
func (d *Device) Close() error {
	// 1. Stop interrupts first, Unwatch must not wait on a handler holding mu.
	if d.config.DIO0 != nil {
		if err := d.config.DIO0.Unwatch(); err != nil {
			d.log.Warn("Failed to stop DIO0 watch")
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// 2. Sleep, which also clears the FIFO.
	err := d.setMode(ModeSleep)
	d.txBusy = false
	d.log.Info("SX127x put to sleep.")

	// 3. Clean up SPI
	if d.port != nil {
		if cerr := d.port.Close(); cerr != nil {
			d.log.Warn("Failed to close SPI port")
			if err == nil {
				err = cerr
			}
		}
		d.log.Info("SPI bus closed.")
	}
	return err
}
