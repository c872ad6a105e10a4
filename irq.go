package sx127x

import (
	"context"
	"fmt"
	"time"
)

// outcome is what one IRQ service pass found, events are emitted from it once
// the bus lock has been released.
type outcome struct {
	flags    IRQFlags
	received *ReceivedMessage
	txDone   bool
}

// maxServicePasses bounds how often one edge re-services the chip while
// DIO0 stays high.
const maxServicePasses = 8

// handleInterrupt is the DIO0 rising-edge handler. A flag latched after the
// IRQ_FLAGS read keeps DIO0 high and produces no new rising edge, so the line
// is checked again after each pass.
func (d *Device) handleInterrupt() {
	for pass := 0; pass < maxServicePasses; pass++ {
		flags, err := d.service()
		if err != nil {
			d.log.Error(fmt.Sprintf("Interrupt service failed: %v", err))
			return
		}
		if !flags.RxDone() && !flags.TxDone() {
			if pass == 0 {
				d.log.Warn(fmt.Sprintf("%s, IRQ flags %s", ErrSpuriousInterrupt, flags))
			}
			return
		}
		if d.config.DIO0.Read() == Low {
			return
		}
	}
	d.log.Warn("DIO0 still high after servicing, leaving it to the next edge")
}

// service reads the IRQ flags once, runs the completion handlers for the
// flags it saw and clears exactly those flags. A flag raised by the chip
// after the read survives for the next pass.
func (d *Device) service() (IRQFlags, error) {
	d.mu.Lock()
	out, err := d.serviceLocked()
	d.mu.Unlock()

	if out.received != nil {
		d.emitReceive(*out.received)
	}
	if out.txDone {
		d.emitTransmitDone()
	}
	return out.flags, err
}

func (d *Device) serviceLocked() (outcome, error) {
	raw, err := d.bus.readByte(_IRQ_FLAGS)
	if err != nil {
		return outcome{}, err
	}
	out := outcome{flags: IRQFlags(raw)}
	if !out.flags.RxDone() && !out.flags.TxDone() {
		// Nothing we own, leave the register alone.
		return out, nil
	}
	d.log.Debug(fmt.Sprintf("IRQ flags %s", out.flags))

	var firstErr error
	if out.flags.RxDone() {
		out.received, firstErr = d.onReceiveComplete(out.flags)
	}
	if out.flags.TxDone() {
		done, err := d.onTransmitComplete()
		out.txDone = done
		if firstErr == nil {
			firstErr = err
		}
	}

	// Write-1-to-clear: writing back the snapshot clears only what was handled.
	if err := d.bus.writeByte(_IRQ_FLAGS, raw); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		out.received = nil
		return out, fmt.Errorf("%w: %w", ErrPkg, firstErr)
	}
	return out, nil
}

// Poll services the IRQ flags until a receive or transmit completion has been
// handled or ctx is done. It is the polling fallback for boards without the
// DIO0 line wired, it also works alongside the interrupt handler.
// This method is concurrent safe.
func (d *Device) Poll(ctx context.Context) error {
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		flags, err := d.service()
		if err != nil {
			return err
		}
		if flags.RxDone() || flags.TxDone() {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w: %w", ErrPkg, ErrTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}
