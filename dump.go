package sx127x

import (
	"fmt"
	"io"
)

// ReadRegister reads one raw register, for diagnostics.
// This method is concurrent safe.
func (d *Device) ReadRegister(reg Register) (byte, error) {
	if reg > _MAX_REGISTER {
		return 0, fmt.Errorf("%w: %w: register 0x%02X", ErrPkg, ErrArgument, byte(reg))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bus.readByte(reg)
}

// RegisterDump writes one line per register from start to end inclusive:
//
//	Register 0x01 - Value 0x85 - Bits 10000101
//
// Reading the FIFO register advances the FIFO pointer.
// This method is concurrent safe.
func (d *Device) RegisterDump(w io.Writer, start, end Register) error {
	if start > end || end > _MAX_REGISTER {
		return fmt.Errorf("%w: %w: register range 0x%02X-0x%02X", ErrPkg, ErrArgument, byte(start), byte(end))
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	for reg := start; reg <= end; reg++ {
		v, err := d.bus.readByte(reg)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPkg, err)
		}
		if _, err := fmt.Fprintf(w, "Register 0x%02x - Value 0x%02X - Bits %08b\n", byte(reg), v, v); err != nil {
			return err
		}
	}
	return nil
}
