package sx127x

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// rssiOffset is subtracted from the raw RSSI registers, it depends on the RF
// port in use.
func rssiOffset(f physic.Frequency) int {
	if f >= _MID_BAND_THRESH*physic.Hertz {
		return _RSSI_OFFSET_HF
	}
	return _RSSI_OFFSET_LF
}

// onReceiveComplete drains the packet the chip just stored in the FIFO.
// It returns nil without error when the packet is dropped.
// Caller must hold d.mu.
func (d *Device) onReceiveComplete(flags IRQFlags) (*ReceivedMessage, error) {
	if flags.CRCError() {
		d.log.Warn(fmt.Sprintf("%s, packet dropped", ErrCRC))
		return nil, nil
	}

	// 1. Point the FIFO at the start of the last packet.
	current, err := d.bus.readByte(_FIFO_RX_CURRENT_ADDR)
	if err != nil {
		return nil, err
	}
	if err := d.bus.writeByte(_FIFO_ADDR_PTR, current); err != nil {
		return nil, err
	}

	// 2. Read it out in one burst.
	count, err := d.bus.readByte(_RX_NB_BYTES)
	if err != nil {
		return nil, err
	}
	data := []byte{}
	if count > 0 {
		if data, err = d.bus.readBlock(_FIFO, int(count)); err != nil {
			return nil, err
		}
	}

	// 3. Link quality: PKT_SNR, PKT_RSSI and RSSI are adjacent.
	quality, err := d.bus.readBlock(_PKT_SNR_VALUE, 3)
	if err != nil {
		return nil, err
	}

	msg := &ReceivedMessage{Payload: data}
	if n := d.config.AddressLength; n > 0 && len(data) > 0 {
		if len(data) < n {
			d.log.Warn(fmt.Sprintf("Packet of %d bytes shorter than address length %d, dropped", len(data), n))
			return nil, nil
		}
		msg.Address = data[:n:n]
		msg.Payload = data[n:]
	}

	offset := rssiOffset(d.config.Frequency)
	msg.SNR = float64(int8(quality[0])) / 4
	msg.PacketRSSI = int(quality[1]) - offset
	msg.RSSI = int(quality[2]) - offset

	d.log.Debug(fmt.Sprintf("Received %d bytes at FIFO 0x%02X, RSSI %ddBm, SNR %.2fdB",
		count, current, msg.PacketRSSI, msg.SNR))
	return msg, nil
}
