package sx127x

import "fmt"

// Send transmits payload without an address prefix. It fails with ErrArgument
// when the driver is configured with a non-zero AddressLength.
// This method is concurrent safe.
func (d *Device) Send(payload []byte) error {
	return d.SendTo(nil, payload)
}

// SendTo stages address followed by payload in the FIFO and starts
// transmitting. It does not wait for the packet to go out: completion is
// reported through OnTransmitDone, after which the radio is back in
// receive-continuous. While a packet is in flight further calls fail with
// ErrTransmitBusy without touching the chip.
// A packet received just before the FIFO is reused is drained first and
// delivered to OnReceive handlers before SendTo returns.
// This method is concurrent safe.
func (d *Device) SendTo(address, payload []byte) error {
	d.mu.Lock()
	pending, err := d.sendLocked(address, payload)
	d.mu.Unlock()

	if pending != nil {
		d.emitReceive(*pending)
	}
	return err
}

func (d *Device) sendLocked(address, payload []byte) (*ReceivedMessage, error) {
	if d.txBusy {
		return nil, fmt.Errorf("%w: %w", ErrPkg, ErrTransmitBusy)
	}
	if len(address) != d.config.AddressLength {
		return nil, fmt.Errorf("%w: %w: address of %d bytes, configured address length is %d",
			ErrPkg, ErrArgument, len(address), d.config.AddressLength)
	}
	total := len(address) + len(payload)
	if total > _MAX_PACKET_BYTES {
		return nil, fmt.Errorf("%w: %w: packet of %d bytes exceeds %d",
			ErrPkg, ErrArgument, total, _MAX_PACKET_BYTES)
	}

	pending, err := d.startTransmit(address, payload)
	if err != nil {
		d.log.Error(fmt.Sprintf("Transmit setup failed: %v", err))
		// Best effort back to listening, the chip may be left in standby.
		_ = d.bus.writeByte(_DIO_MAPPING_1, _DIO0_RX_DONE)
		_ = d.setMode(ModeReceiveContinuous)
		return pending, fmt.Errorf("%w: %w", ErrPkg, err)
	}
	d.txBusy = true
	d.log.Debug(fmt.Sprintf("Transmitting %d bytes", total))
	return pending, nil
}

// startTransmit runs the transmit register sequence. It returns the packet
// drained from the FIFO, if one was waiting. Caller must hold d.mu.
func (d *Device) startTransmit(address, payload []byte) (*ReceivedMessage, error) {
	// 1. Standby, the FIFO is only writable outside of receive and sleep.
	// No packet can complete from here on.
	if err := d.setMode(ModeStandby); err != nil {
		return nil, err
	}

	// 2. RX and TX share the FIFO base. A packet that completed before
	// standby, its DIO0 handler still waiting on d.mu, is read out before
	// the TX bytes overwrite it.
	pending, err := d.drainPending()
	if err != nil {
		return nil, err
	}

	// 3. Rewind the FIFO to the TX base.
	if err := d.bus.writeByte(_FIFO_TX_BASE_ADDR, _FIFO_TX_BASE); err != nil {
		return pending, err
	}
	if err := d.bus.writeByte(_FIFO_ADDR_PTR, _FIFO_TX_BASE); err != nil {
		return pending, err
	}

	// 4. Packet, one burst.
	packet := make([]byte, 0, len(address)+len(payload))
	packet = append(packet, address...)
	packet = append(packet, payload...)
	if len(packet) > 0 {
		if err := d.bus.writeBlock(_FIFO, packet); err != nil {
			return pending, err
		}
	}
	if err := d.bus.writeByte(_PAYLOAD_LENGTH, byte(len(packet))); err != nil {
		return pending, err
	}

	// 5. DIO0 on TxDone, then go.
	if err := d.bus.writeByte(_DIO_MAPPING_1, _DIO0_TX_DONE); err != nil {
		return pending, err
	}
	return pending, d.setMode(ModeTransmit)
}

// drainPending reads out a packet whose RxDone is latched but not yet
// serviced and clears the flags it observed. Caller must hold d.mu.
func (d *Device) drainPending() (*ReceivedMessage, error) {
	raw, err := d.bus.readByte(_IRQ_FLAGS)
	if err != nil {
		return nil, err
	}
	flags := IRQFlags(raw)
	if !flags.RxDone() {
		return nil, nil
	}
	msg, err := d.onReceiveComplete(flags)
	if err != nil {
		return nil, err
	}
	if err := d.bus.writeByte(_IRQ_FLAGS, raw); err != nil {
		return nil, err
	}
	return msg, nil
}

// onTransmitComplete puts the radio back to listening. It reports whether the
// completion belongs to a packet started by SendTo.
// Caller must hold d.mu.
func (d *Device) onTransmitComplete() (bool, error) {
	wasBusy := d.txBusy
	d.txBusy = false
	if err := d.bus.writeByte(_DIO_MAPPING_1, _DIO0_RX_DONE); err != nil {
		return false, err
	}
	if err := d.setMode(ModeReceiveContinuous); err != nil {
		return false, err
	}
	if !wasBusy {
		d.log.Warn("TxDone without a pending transmit")
	}
	return wasBusy, nil
}
