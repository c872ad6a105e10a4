package sx127x

// ReceivedMessage is a packet read out of the FIFO together with the link
// quality measured while receiving it.
type ReceivedMessage struct {
	// Address is the fixed length prefix split off the packet, nil when
	// addressing is disabled.
	Address []byte
	// Payload is the packet body. It is empty, never nil, for a zero length packet.
	Payload []byte
	// RSSI is the current channel RSSI in dBm, read right after the packet.
	RSSI int
	// PacketRSSI is the averaged RSSI of the packet in dBm.
	PacketRSSI int
	// SNR of the packet in dB, 0.25dB resolution.
	SNR float64
}

// OnReceive registers a handler called for every packet received.
// Handlers run on the interrupt context (the DIO0 watch goroutine, or the
// caller of Poll or SendTo) after the driver has released the bus, so they
// may call Send or Close.
// This method is concurrent safe.
func (d *Device) OnReceive(handler func(ReceivedMessage)) {
	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()
	d.rxHandlers = append(d.rxHandlers, handler)
}

// OnTransmitDone registers a handler called when a packet started by Send
// has left the antenna.
// This method is concurrent safe.
func (d *Device) OnTransmitDone(handler func()) {
	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()
	d.txHandlers = append(d.txHandlers, handler)
}

func (d *Device) emitReceive(msg ReceivedMessage) {
	d.handlersMu.Lock()
	handlers := d.rxHandlers
	d.handlersMu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

func (d *Device) emitTransmitDone() {
	d.handlersMu.Lock()
	handlers := d.txHandlers
	d.handlersMu.Unlock()

	for _, h := range handlers {
		h()
	}
}
