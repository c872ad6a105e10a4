package sx127x

import (
	"sync"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"
)

// --- Mocks ---

// simChip emulates the SX127x SPI slave: a register file with address
// auto-increment, the FIFO behind register 0x00 and the write-1-to-clear
// IRQ_FLAGS register.
type simChip struct {
	mu     sync.Mutex
	regs   [0x80]byte
	fifo   [256]byte
	tx     [][]byte   // every transaction as sent by the driver
	writes []regWrite // register writes in order, FIFO excluded
	err    error

	// onRead runs after a register has been read, with the lock held.
	onRead func(reg Register)
}

type regWrite struct {
	reg Register
	val byte
}

func newSimChip() *simChip {
	s := &simChip{}
	s.regs[_VERSION] = _EXPECTED_VERSION
	s.regs[_OP_MODE] = 0x09 // FSK standby, power-on value
	return s
}

func (s *simChip) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in := append([]byte(nil), w...)
	s.tx = append(s.tx, in)
	if s.err != nil {
		return s.err
	}
	if len(in) == 0 {
		return nil
	}

	addr := Register(in[0] & 0x7F)
	write := in[0]&0x80 != 0
	r[0] = 0
	for i, b := range in[1:] {
		reg := addr
		if addr != _FIFO {
			reg = (addr + Register(i)) & 0x7F
		}
		if write {
			s.store(reg, b)
		} else {
			r[1+i] = s.load(reg)
			if s.onRead != nil {
				s.onRead(reg)
			}
		}
	}
	return nil
}

func (s *simChip) store(reg Register, b byte) {
	switch reg {
	case _FIFO:
		s.fifo[s.regs[_FIFO_ADDR_PTR]] = b
		s.regs[_FIFO_ADDR_PTR]++
		return
	case _IRQ_FLAGS:
		s.regs[_IRQ_FLAGS] &^= b
	default:
		s.regs[reg] = b
	}
	s.writes = append(s.writes, regWrite{reg, b})
}

func (s *simChip) load(reg Register) byte {
	if reg == _FIFO {
		b := s.fifo[s.regs[_FIFO_ADDR_PTR]]
		s.regs[_FIFO_ADDR_PTR]++
		return b
	}
	return s.regs[reg]
}

// receive places packet in the FIFO at addr as the modem would and raises
// RxDone plus extra. Like the modem it only receives in receive-continuous,
// otherwise the packet is lost and receive reports false.
func (s *simChip) receive(addr byte, packet []byte, snr, pktRssi, rssi byte, extra IRQFlags) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.regs[_OP_MODE] != _LONG_RANGE_MODE|byte(ModeReceiveContinuous) {
		return false
	}
	for i, b := range packet {
		s.fifo[addr+byte(i)] = b
	}
	s.regs[_FIFO_RX_CURRENT_ADDR] = addr
	s.regs[_RX_NB_BYTES] = byte(len(packet))
	s.regs[_PKT_SNR_VALUE] = snr
	s.regs[_PKT_RSSI_VALUE] = pktRssi
	s.regs[_RSSI_VALUE] = rssi
	s.regs[_IRQ_FLAGS] |= byte(IRQRxDone | extra)
	return true
}

func (s *simChip) raise(f IRQFlags) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[_IRQ_FLAGS] |= byte(f)
}

// dio0 is the DIO0 line level: high while the mapped completion flag is set.
func (s *simChip) dio0() Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	flag := IRQRxDone
	if s.regs[_DIO_MAPPING_1] == _DIO0_TX_DONE {
		flag = IRQTxDone
	}
	return Level(IRQFlags(s.regs[_IRQ_FLAGS])&flag != 0)
}

func (s *simChip) reg(r Register) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[r]
}

func (s *simChip) fifoAt(addr byte, n int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, n)
	for i := range out {
		out[i] = s.fifo[addr+byte(i)]
	}
	return out
}

// mark returns the current transaction count, since returns what came after.
func (s *simChip) mark() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tx)
}

func (s *simChip) since(mark int) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.tx[mark:]...)
}

func (s *simChip) writesTo(reg Register) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var vals []byte
	for _, w := range s.writes {
		if w.reg == reg {
			vals = append(vals, w.val)
		}
	}
	return vals
}

type mockPin struct {
	mu      sync.Mutex
	levels  []Level
	pull    Pull
	edge    Edge
	handler func()
	level   func() Level // Read, Low when nil
}

func (m *mockPin) Out(l Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels = append(m.levels, l)
	return nil
}

func (m *mockPin) In(pull Pull) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pull = pull
	return nil
}

func (m *mockPin) Read() Level {
	m.mu.Lock()
	level := m.level
	m.mu.Unlock()
	if level == nil {
		return Low
	}
	return level()
}

func (m *mockPin) Watch(edge Edge, handler func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edge = edge
	m.handler = handler
	return nil
}

func (m *mockPin) Unwatch() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edge = NoEdge
	m.handler = nil
	return nil
}

// fire delivers a rising edge synchronously.
func (m *mockPin) fire(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h == nil {
		t.Fatal("DIO0 is not watched")
	}
	h()
}

func testConfig() RadioConfig {
	return RadioConfig{
		Frequency:    915 * physic.MegaHertz,
		PABoost:      true,
		RxPayloadCRC: true,
		PollInterval: time.Millisecond,
		Logger:       NopLogger(),
	}
}

// newTestDevice builds a driver on a fresh simulated chip with DIO0 wired.
func newTestDevice(t *testing.T, c RadioConfig) (*Device, *simChip, *mockPin) {
	t.Helper()
	sim := newSimChip()
	dio0 := &mockPin{}
	dev, err := NewWithHardware(HardwareConfig{
		RadioConfig: c,
		Reset:       &mockPin{},
		DIO0:        dio0,
	}, sim)
	if err != nil {
		t.Fatalf("NewWithHardware failed: %v", err)
	}
	return dev, sim, dio0
}
