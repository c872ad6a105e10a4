package sx127x

import "fmt"

const (
	_READ_MASK  = 0x7F
	_WRITE_FLAG = 0x80
)

// transport is the register access layer. Every method is exactly one SPI
// transaction: chip-select stays asserted for the address byte and all the
// data bytes, which is what makes the chip auto-increment its register (or
// FIFO) pointer. Callers serialize access through Device.mu.
type transport struct {
	conn    SPI
	scratch [1 + 256]byte // address byte + max block (full FIFO)
}

func (t *transport) exchange(n int) ([]byte, error) {
	buf := t.scratch[:n]
	if err := t.conn.Tx(buf, buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return buf, nil
}

// readByte reads a single register.
func (t *transport) readByte(reg Register) (byte, error) {
	t.scratch[0] = byte(reg) & _READ_MASK
	t.scratch[1] = 0
	buf, err := t.exchange(2)
	if err != nil {
		return 0, err
	}
	return buf[1], nil
}

// readBlock reads length consecutive bytes starting at reg. For _FIFO the
// chip advances FIFO_ADDR_PTR instead of the register address.
// The returned slice is freshly allocated and owned by the caller.
func (t *transport) readBlock(reg Register, length int) ([]byte, error) {
	if length < 0 || length > len(t.scratch)-1 {
		return nil, fmt.Errorf("%w: block length %d out of range", ErrArgument, length)
	}
	t.scratch[0] = byte(reg) & _READ_MASK
	for i := 1; i <= length; i++ {
		t.scratch[i] = 0
	}
	buf, err := t.exchange(length + 1)
	if err != nil {
		return nil, err
	}
	result := make([]byte, length)
	copy(result, buf[1:])
	return result, nil
}

// writeByte writes a single register.
func (t *transport) writeByte(reg Register, val byte) error {
	t.scratch[0] = byte(reg) | _WRITE_FLAG
	t.scratch[1] = val
	_, err := t.exchange(2)
	return err
}

// writeBlock writes data starting at reg within one chip-select assertion.
// Splitting it would make the chip read the second chunk's first byte as a
// new address.
func (t *transport) writeBlock(reg Register, data []byte) error {
	if len(data) > len(t.scratch)-1 {
		return fmt.Errorf("%w: block length %d out of range", ErrArgument, len(data))
	}
	t.scratch[0] = byte(reg) | _WRITE_FLAG
	copy(t.scratch[1:], data)
	_, err := t.exchange(1 + len(data))
	return err
}

// readWord reads a big-endian 16-bit value from reg and reg+1.
func (t *transport) readWord(reg Register) (uint16, error) {
	buf, err := t.readBlock(reg, 2)
	if err != nil {
		return 0, err
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

// writeWord writes a big-endian 16-bit value to reg and reg+1.
func (t *transport) writeWord(reg Register, val uint16) error {
	return t.writeBlock(reg, []byte{byte(val >> 8), byte(val)})
}

// updateByte does a read-modify-write of the bits selected by mask.
func (t *transport) updateByte(reg Register, mask, val byte) error {
	cur, err := t.readByte(reg)
	if err != nil {
		return err
	}
	return t.writeByte(reg, cur&^mask|val&mask)
}
