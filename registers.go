package sx127x

import "strings"

// Register is a 7-bit SX127x register address (0x00-0x7F). The read/write
// selector in bit 7 is owned by the transport and never part of a Register.
type Register byte

// --- SX127x Registers/Bits (LoRa page) ---

// SX127x Register Addresses
const (
	_FIFO                 Register = 0x00
	_OP_MODE              Register = 0x01
	_FRF_MSB              Register = 0x06 // MID and LSB follow
	_PA_CONFIG            Register = 0x09
	_OCP                  Register = 0x0B
	_LNA                  Register = 0x0C
	_FIFO_ADDR_PTR        Register = 0x0D
	_FIFO_TX_BASE_ADDR    Register = 0x0E
	_FIFO_RX_BASE_ADDR    Register = 0x0F
	_FIFO_RX_CURRENT_ADDR Register = 0x10
	_IRQ_FLAGS_MASK       Register = 0x11
	_IRQ_FLAGS            Register = 0x12
	_RX_NB_BYTES          Register = 0x13
	_PKT_SNR_VALUE        Register = 0x19
	_PKT_RSSI_VALUE       Register = 0x1A
	_RSSI_VALUE           Register = 0x1B
	_MODEM_CONFIG_1       Register = 0x1D
	_MODEM_CONFIG_2       Register = 0x1E
	_PREAMBLE_MSB         Register = 0x20
	_PAYLOAD_LENGTH       Register = 0x22
	_MODEM_CONFIG_3       Register = 0x26
	_DETECTION_OPTIMIZE   Register = 0x31
	_DETECTION_THRESHOLD  Register = 0x37
	_SYNC_WORD            Register = 0x39
	_DIO_MAPPING_1        Register = 0x40
	_VERSION              Register = 0x42
	_PA_DAC               Register = 0x4D

	_MAX_REGISTER Register = 0x7F
)

// SX127x Register Bit Definitions
const (
	_LONG_RANGE_MODE = 1 << 7 // OP_MODE: LoRa modem selected
	_MODE_MASK       = 0x07

	_PA_SELECT      = 1 << 7 // PA_CONFIG: PA_BOOST pin
	_PA_MAX_POWER   = 0x07 << 4
	_PA_DAC_DEFAULT = 0x84
	_PA_DAC_BOOST   = 0x87 // +20dBm on PA_BOOST

	_RX_PAYLOAD_CRC_ON = 1 << 2 // MODEM_CONFIG_2
	_AGC_AUTO_ON       = 1 << 2 // MODEM_CONFIG_3
	_LOW_DATA_RATE_OPT = 1 << 3 // MODEM_CONFIG_3

	_DIO0_RX_DONE = 0x00 << 6 // DIO_MAPPING_1
	_DIO0_TX_DONE = 0x01 << 6
)

const (
	_EXPECTED_VERSION = 0x12
	// _FIFO_TX_BASE and _FIFO_RX_BASE share the whole 256 byte FIFO, RX and TX
	// never run at the same time.
	_FIFO_TX_BASE = 0x00
	_FIFO_RX_BASE = 0x00

	_MAX_PACKET_BYTES = 255

	// 32MHz crystal, 19-bit synthesizer: Fstep = Fxosc / 2^19.
	_FXOSC     = 32_000_000
	_FRF_SHIFT = 19

	_RSSI_OFFSET_HF  = 157
	_RSSI_OFFSET_LF  = 164
	_MID_BAND_THRESH = 525_000_000 // Hz, RF port split between LF and HF
)

// Mode is the coarse operating mode of the chip. The value written to the
// op-mode register always carries the LoRa modem bit as well.
type Mode byte

const (
	ModeSleep             Mode = 0x00
	ModeStandby           Mode = 0x01
	ModeTransmit          Mode = 0x03
	ModeReceiveContinuous Mode = 0x05
)

func (m Mode) String() string {
	switch m {
	case ModeSleep:
		return "sleep"
	case ModeStandby:
		return "standby"
	case ModeTransmit:
		return "tx"
	case ModeReceiveContinuous:
		return "rx-continuous"
	default:
		return "unknown"
	}
}

// IRQFlags is a snapshot of the IRQ_FLAGS register.
type IRQFlags byte

// IRQ flag bits, bit 0 first.
const (
	IRQCADDetected IRQFlags = 1 << iota
	IRQFHSSChange
	IRQCADDone
	IRQTxDone
	IRQValidHeader
	IRQPayloadCRCError
	IRQRxDone
	IRQRxTimeout
)

var irqFlagNames = [8]string{
	"CADDetected", "FHSSChange", "CADDone", "TxDone",
	"ValidHeader", "CRCError", "RxDone", "RxTimeout",
}

func (f IRQFlags) RxDone() bool   { return f&IRQRxDone != 0 }
func (f IRQFlags) TxDone() bool   { return f&IRQTxDone != 0 }
func (f IRQFlags) CRCError() bool { return f&IRQPayloadCRCError != 0 }

func (f IRQFlags) String() string {
	var names []string
	for i := 0; i < 8; i++ {
		if f&(1<<i) != 0 {
			names = append(names, irqFlagNames[i])
		}
	}
	return "[" + strings.Join(names, ",") + "]"
}
