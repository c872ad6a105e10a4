package sx127x

import (
	"fmt"

	"golang.org/x/exp/constraints"
	"periph.io/x/conn/v3/physic"
)

// Supported frequency band of the SX1276, the widest of the family.
const (
	minFrequency = 137 * physic.MegaHertz
	maxFrequency = 1020 * physic.MegaHertz
)

// bandwidths holds the MODEM_CONFIG_1 bandwidth steps in Hz, index is the
// register value. Anything above the last step selects 500kHz.
var bandwidths = [...]int64{7800, 10400, 15600, 20800, 31250, 41700, 62500, 125000, 250000, 500000}

func clamp[T constraints.Integer](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// setMode writes the operating mode. The LoRa modem bit is always kept set,
// the driver never leaves LoRa mode.
func (d *Device) setMode(m Mode) error {
	if err := d.bus.writeByte(_OP_MODE, _LONG_RANGE_MODE|byte(m)); err != nil {
		return err
	}
	d.log.Debug(fmt.Sprintf("Mode set to %s", m))
	return nil
}

// frequencyWord converts a carrier frequency to the 24-bit FRF register value:
// frf = f * 2^19 / Fxosc.
func frequencyWord(f physic.Frequency) uint32 {
	hz := uint64(f / physic.Hertz)
	return uint32((hz << _FRF_SHIFT) / _FXOSC)
}

// setCarrierFrequency writes FRF MSB, MID and LSB in a single burst, the chip
// latches the new frequency on the LSB write. The range is checked by
// RadioConfig.applyDefaults.
func (d *Device) setCarrierFrequency(f physic.Frequency) error {
	frf := frequencyWord(f)
	return d.bus.writeBlock(_FRF_MSB, []byte{byte(frf >> 16), byte(frf >> 8), byte(frf)})
}

// setPowerAmplifier selects the output pin and power level.
//
// PA_BOOST: Pout = 2 + OutputPower, 20dBm needs the high power DAC setting
// (Pout = 5 + OutputPower) and a raised over current trip.
// RFO: Pout = Pmax - (15 - OutputPower) with Pmax = 15dBm.
func (d *Device) setPowerAmplifier(boost bool, power int8) error {
	var paConfig, paDac, ocp byte
	if boost {
		power = clamp(power, 2, 20)
		if power > 17 {
			paDac = _PA_DAC_BOOST
			paConfig = _PA_SELECT | _PA_MAX_POWER | byte(power-5)&0x0F
			ocp = 0x20 | 0x0F // 120mA
		} else {
			paDac = _PA_DAC_DEFAULT
			paConfig = _PA_SELECT | _PA_MAX_POWER | byte(power-2)&0x0F
			ocp = 0x20 | 0x0B // 100mA, reset value
		}
	} else {
		power = clamp(power, -1, 14)
		paDac = _PA_DAC_DEFAULT
		paConfig = _PA_MAX_POWER | byte(power+1)&0x0F
		ocp = 0x20 | 0x0B
	}

	if err := d.bus.writeByte(_PA_CONFIG, paConfig); err != nil {
		return err
	}
	if err := d.bus.writeByte(_PA_DAC, paDac); err != nil {
		return err
	}
	if err := d.bus.writeByte(_OCP, ocp); err != nil {
		return err
	}
	d.log.Debug(fmt.Sprintf("PA config 0x%02X, PA DAC 0x%02X", paConfig, paDac))
	return nil
}

// bandwidthIndex rounds bw up to the next supported step.
func bandwidthIndex(bw physic.Frequency) byte {
	hz := int64(bw / physic.Hertz)
	for i, step := range bandwidths {
		if hz <= step {
			return byte(i)
		}
	}
	return byte(len(bandwidths) - 1)
}

// lowDataRateOptimize is required when a symbol lasts longer than 16ms.
func lowDataRateOptimize(sf uint8, bwIndex byte) bool {
	symbolMicros := (int64(1) << sf) * 1_000_000 / bandwidths[bwIndex]
	return symbolMicros > 16_000
}

// setModemConfig programs bandwidth, coding rate, header mode, spreading
// factor and payload CRC. MODEM_CONFIG_1 and 2 are adjacent and written in
// one burst.
func (d *Device) setModemConfig() error {
	c := &d.config.RadioConfig
	bw := bandwidthIndex(c.Bandwidth)

	// Explicit header: length, coding rate and CRC presence travel in the packet.
	config1 := bw<<4 | (c.CodingRate-4)<<1
	config2 := c.SpreadingFactor << 4
	if c.RxPayloadCRC {
		config2 |= _RX_PAYLOAD_CRC_ON
	}
	config3 := byte(_AGC_AUTO_ON)
	if lowDataRateOptimize(c.SpreadingFactor, bw) {
		config3 |= _LOW_DATA_RATE_OPT
	}

	if err := d.bus.writeBlock(_MODEM_CONFIG_1, []byte{config1, config2}); err != nil {
		return err
	}
	// Only AGC and LDRO are ours in MODEM_CONFIG_3, the rest is reserved.
	if err := d.bus.updateByte(_MODEM_CONFIG_3, _AGC_AUTO_ON|_LOW_DATA_RATE_OPT, config3); err != nil {
		return err
	}
	// SF7-12 detection settings, SF6 has its own.
	if err := d.bus.writeByte(_DETECTION_OPTIMIZE, 0xC3); err != nil {
		return err
	}
	if err := d.bus.writeByte(_DETECTION_THRESHOLD, 0x0A); err != nil {
		return err
	}
	d.log.Debug(fmt.Sprintf("Modem config 0x%02X 0x%02X 0x%02X", config1, config2, config3))
	return nil
}

func (d *Device) setPreambleLength(n uint16) error {
	return d.bus.writeWord(_PREAMBLE_MSB, n)
}

// initialise brings the chip from any state to receive-continuous with the
// current config. Caller must hold d.mu.
func (d *Device) initialise() error {
	c := &d.config.RadioConfig

	// 1. Sleep. The LoRa bit only latches in sleep, and sleep empties the FIFO.
	if err := d.setMode(ModeSleep); err != nil {
		return err
	}
	d.txBusy = false

	// 2. Carrier
	if err := d.setCarrierFrequency(c.Frequency); err != nil {
		return err
	}

	// 3. Power amplifier
	if err := d.setPowerAmplifier(c.PABoost, c.TxPower); err != nil {
		return err
	}

	// 4. Modem, CRC included
	if err := d.setModemConfig(); err != nil {
		return err
	}
	if err := d.setPreambleLength(c.PreambleLength); err != nil {
		return err
	}
	if err := d.bus.writeByte(_SYNC_WORD, c.SyncWord); err != nil {
		return err
	}

	// 5. Max LNA gain, boost on the HF port
	lna := byte(0x20)
	if c.Frequency >= _MID_BAND_THRESH*physic.Hertz {
		lna |= 0x03
	}
	if err := d.bus.writeByte(_LNA, lna); err != nil {
		return err
	}

	// 6. FIFO layout, interrupts unmasked, DIO0 on RxDone
	if err := d.bus.writeByte(_FIFO_TX_BASE_ADDR, _FIFO_TX_BASE); err != nil {
		return err
	}
	if err := d.bus.writeByte(_FIFO_RX_BASE_ADDR, _FIFO_RX_BASE); err != nil {
		return err
	}
	if err := d.bus.writeByte(_IRQ_FLAGS_MASK, 0x00); err != nil {
		return err
	}
	if err := d.bus.writeByte(_DIO_MAPPING_1, _DIO0_RX_DONE); err != nil {
		return err
	}

	// 7. Listen
	if err := d.setMode(ModeReceiveContinuous); err != nil {
		return err
	}
	d.log.Info(fmt.Sprintf("Radio configured: %s, SF%d, %s, CR 4/%d",
		c.Frequency, c.SpreadingFactor, c.Bandwidth, c.CodingRate))
	return nil
}
