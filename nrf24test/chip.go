// Package nrf24test provides an in-memory nRF24L01+ for tests. Chips attached
// to the same Ether hear each other when they share channel, data rate and
// address, the way boards on a bench do.
package nrf24test

import (
	"sync"

	"github.com/msoodb/nrf24"
	"github.com/msoodb/nrf24/clock"
)

const (
	regConfig   = 0x00
	regEnAA     = 0x01
	regEnRxAddr = 0x02
	regRFCh     = 0x05
	regRFSetup  = 0x06
	regStatus   = 0x07
	regObserve  = 0x08
	regRxAddrP0 = 0x0A
	regRxAddrP1 = 0x0B
	regTxAddr   = 0x10
	regRxPwP0   = 0x11
	regFIFO     = 0x17
	regDynPD    = 0x1C
	regFeature  = 0x1D

	pwrUp   = 1 << 1
	primRx  = 1 << 0
	rxDR    = 1 << 6
	txDS    = 1 << 5
	maxRT   = 1 << 4
	enDPL   = 1 << 2
	rateBit = 1<<3 | 1<<5

	fifoDepth = 3
)

// Frame is one transmission seen on the ether.
type Frame struct {
	From  *Chip
	To    nrf24.Address
	Data  []byte
	NoAck bool
	// Heard is the number of chips that accepted the frame.
	Heard int
}

// Ether connects chips. It serializes every chip operation so a test can
// drive several devices from different goroutines.
type Ether struct {
	mu     sync.Mutex
	chips  []*Chip
	frames []Frame
}

func NewEther() *Ether {
	return &Ether{}
}

// NewChip attaches a powered-down chip with reset register values.
func (e *Ether) NewChip() *Chip {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := &Chip{ether: e, present: true}
	c.reset()
	e.chips = append(e.chips, c)
	return c
}

// Frames returns a copy of every frame sent so far.
func (e *Ether) Frames() []Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Frame(nil), e.frames...)
}

// ClearFrames forgets the recorded frames.
func (e *Ether) ClearFrames() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames = nil
}

type rxFrame struct {
	pipe byte
	data []byte
}

// Chip models the register file, FIFOs and CE line of one transceiver. It
// implements nrf24.SPI.
type Chip struct {
	ether   *Ether
	regs    [0x20]byte
	addrs   map[byte]nrf24.Address
	rx      []rxFrame
	tx      [][]byte
	txNoAck []bool
	ce      nrf24.Level
	present bool
	busy    bool
	dropAck bool
	stall   bool
}

func (c *Chip) reset() {
	c.regs = [0x20]byte{}
	c.regs[regConfig] = 0x08
	c.regs[regEnAA] = 0x3F
	c.regs[regEnRxAddr] = 0x03
	c.regs[0x03] = 0x03
	c.regs[0x04] = 0x03
	c.regs[regRFCh] = 0x02
	c.regs[regRFSetup] = 0x0E
	c.addrs = map[byte]nrf24.Address{
		regRxAddrP0: {0xE7, 0xE7, 0xE7, 0xE7, 0xE7},
		regRxAddrP1: {0xC2, 0xC2, 0xC2, 0xC2, 0xC2},
		regTxAddr:   {0xE7, 0xE7, 0xE7, 0xE7, 0xE7},
	}
	c.regs[0x0C], c.regs[0x0D], c.regs[0x0E], c.regs[0x0F] = 0xC3, 0xC4, 0xC5, 0xC6
}

// Device builds a driver on this chip. The returned device still needs Init.
func (c *Chip) Device(clk clock.Clock) (*nrf24.Device, error) {
	return nrf24.NewWithHardware(nrf24.HardwareConfig{CE: c.CE(), Clock: clk}, c)
}

// SetPresent simulates an unplugged chip: MISO floats high.
func (c *Chip) SetPresent(v bool) {
	c.ether.mu.Lock()
	defer c.ether.mu.Unlock()
	c.present = v
}

// SetBusy makes the SPI controller report busy forever.
func (c *Chip) SetBusy(v bool) {
	c.ether.mu.Lock()
	defer c.ether.mu.Unlock()
	c.busy = v
}

// SetDropAcks makes every acknowledged transmission exhaust its retries.
func (c *Chip) SetDropAcks(v bool) {
	c.ether.mu.Lock()
	defer c.ether.mu.Unlock()
	c.dropAck = v
}

// SetStall makes transmissions report neither TX_DS nor MAX_RT.
func (c *Chip) SetStall(v bool) {
	c.ether.mu.Lock()
	defer c.ether.mu.Unlock()
	c.stall = v
}

// Inject places a frame in the RX FIFO as if it arrived on pipe.
func (c *Chip) Inject(pipe byte, data []byte) {
	c.ether.mu.Lock()
	defer c.ether.mu.Unlock()
	c.pushRx(pipe, data)
}

// Reg returns a single byte register.
func (c *Chip) Reg(reg byte) byte {
	c.ether.mu.Lock()
	defer c.ether.mu.Unlock()
	return c.regs[reg&0x1F]
}

// Addr returns a five byte address register (RX_ADDR_P0, RX_ADDR_P1, TX_ADDR).
func (c *Chip) Addr(reg byte) nrf24.Address {
	c.ether.mu.Lock()
	defer c.ether.mu.Unlock()
	return c.addrs[reg]
}

// CELevel returns the level last driven on CE.
func (c *Chip) CELevel() nrf24.Level {
	c.ether.mu.Lock()
	defer c.ether.mu.Unlock()
	return c.ce
}

// Pending returns the number of frames in the RX FIFO.
func (c *Chip) Pending() int {
	c.ether.mu.Lock()
	defer c.ether.mu.Unlock()
	return len(c.rx)
}

// Busy implements nrf24.Busy.
func (c *Chip) Busy() bool {
	c.ether.mu.Lock()
	defer c.ether.mu.Unlock()
	return c.busy
}

func (c *Chip) status() byte {
	s := c.regs[regStatus] & (rxDR | txDS | maxRT)
	if len(c.rx) > 0 {
		s |= c.rx[0].pipe << 1
	} else {
		s |= 7 << 1
	}
	if len(c.tx) >= fifoDepth {
		s |= 1
	}
	return s
}

func (c *Chip) fifoStatus() byte {
	var v byte
	if len(c.rx) == 0 {
		v |= 1 << 0
	}
	if len(c.rx) >= fifoDepth {
		v |= 1 << 1
	}
	if len(c.tx) == 0 {
		v |= 1 << 4
	}
	if len(c.tx) >= fifoDepth {
		v |= 1 << 5
	}
	return v
}

// Tx implements nrf24.SPI: w[0] is the command, the response replaces r.
func (c *Chip) Tx(w, r []byte) error {
	c.ether.mu.Lock()
	defer c.ether.mu.Unlock()

	cmd := w[0]
	if !c.present {
		for i := range r {
			r[i] = 0xFF
		}
		return nil
	}
	status := c.status()
	// w and r may alias, so decode before answering.
	in := append([]byte(nil), w[1:]...)
	for i := range r {
		r[i] = 0
	}
	r[0] = status

	switch {
	case cmd&0xE0 == 0x00:
		c.readRegister(cmd&0x1F, r[1:])
	case cmd&0xE0 == 0x20:
		c.writeRegister(cmd&0x1F, in)
	case cmd == 0x60:
		if len(r) > 1 && len(c.rx) > 0 {
			r[1] = byte(len(c.rx[0].data))
		}
	case cmd == 0x61:
		if len(c.rx) > 0 {
			copy(r[1:], c.rx[0].data)
			c.rx = c.rx[1:]
		}
	case cmd == 0xA0, cmd == 0xB0:
		if len(c.tx) < fifoDepth {
			c.tx = append(c.tx, in)
			c.txNoAck = append(c.txNoAck, cmd == 0xB0)
		}
	case cmd == 0xE1:
		c.tx, c.txNoAck = nil, nil
	case cmd == 0xE2:
		c.rx = nil
	}
	return nil
}

func (c *Chip) readRegister(reg byte, out []byte) {
	if len(out) == 0 {
		return
	}
	switch reg {
	case regRxAddrP0, regRxAddrP1, regTxAddr:
		a := c.addrs[reg]
		copy(out, a[:])
	case regStatus:
		out[0] = c.status()
	case regFIFO:
		out[0] = c.fifoStatus()
	default:
		out[0] = c.regs[reg]
	}
}

func (c *Chip) writeRegister(reg byte, in []byte) {
	if len(in) == 0 {
		return
	}
	switch reg {
	case regRxAddrP0, regRxAddrP1, regTxAddr:
		a := c.addrs[reg]
		copy(a[:], in)
		c.addrs[reg] = a
	case regStatus:
		c.regs[regStatus] &^= in[0] & (rxDR | txDS | maxRT)
	case regFIFO, regObserve, 0x09:
		// read only
	default:
		c.regs[reg] = in[0]
	}
}

func (c *Chip) pushRx(pipe byte, data []byte) bool {
	if len(c.rx) >= fifoDepth {
		return false
	}
	c.rx = append(c.rx, rxFrame{pipe: pipe, data: append([]byte(nil), data...)})
	c.regs[regStatus] |= rxDR
	return true
}

func (c *Chip) listening() bool {
	cfg := c.regs[regConfig]
	return c.present && cfg&pwrUp != 0 && cfg&primRx != 0 && c.ce == nrf24.High
}

// pipeFor returns the enabled pipe whose address is a.
func (c *Chip) pipeFor(a nrf24.Address) (byte, bool) {
	en := c.regs[regEnRxAddr]
	p1 := c.addrs[regRxAddrP1]
	for pipe := byte(0); pipe < 6; pipe++ {
		if en&(1<<pipe) == 0 {
			continue
		}
		var want nrf24.Address
		switch pipe {
		case 0:
			want = c.addrs[regRxAddrP0]
		case 1:
			want = p1
		default:
			want = p1
			want[0] = c.regs[regRxAddrP0+pipe]
		}
		if want == a {
			return pipe, true
		}
	}
	return 0, false
}

func (c *Chip) dynamic(pipe byte) bool {
	return c.regs[regFeature]&enDPL != 0 && c.regs[regDynPD]&(1<<pipe) != 0
}

// fire sends every queued frame. Called with the ether lock held.
func (c *Chip) fire() {
	for len(c.tx) > 0 {
		data, noAck := c.tx[0], c.txNoAck[0]
		to := c.addrs[regTxAddr]
		heard, acked := c.ether.deliver(c, to, data)
		c.ether.frames = append(c.ether.frames, Frame{From: c, To: to, Data: data, NoAck: noAck, Heard: heard})

		if c.stall {
			return
		}
		if noAck || c.regs[regEnAA]&1 == 0 {
			acked = true
		}
		if !acked || c.dropAck {
			c.regs[regStatus] |= maxRT
			retries := c.regs[0x04] & 0x0F
			lost := c.regs[regObserve] >> 4
			if lost < 15 {
				lost++
			}
			c.regs[regObserve] = lost<<4 | retries
			return
		}
		c.regs[regObserve] &= 0xF0
		c.regs[regStatus] |= txDS
		c.tx, c.txNoAck = c.tx[1:], c.txNoAck[1:]
	}
}

func (e *Ether) deliver(from *Chip, to nrf24.Address, data []byte) (heard int, acked bool) {
	for _, c := range e.chips {
		if c == from || !c.listening() {
			continue
		}
		if c.regs[regRFCh] != from.regs[regRFCh] || c.regs[regRFSetup]&rateBit != from.regs[regRFSetup]&rateBit {
			continue
		}
		pipe, ok := c.pipeFor(to)
		if !ok {
			continue
		}
		if !c.dynamic(pipe) && int(c.regs[regRxPwP0+pipe]) != len(data) {
			continue
		}
		if !c.pushRx(pipe, data) {
			continue
		}
		heard++
		if c.regs[regEnAA]&(1<<pipe) != 0 {
			acked = true
		}
	}
	return heard, acked
}

// CE returns the Chip Enable line of the chip.
func (c *Chip) CE() nrf24.Pin {
	return &cePin{c: c}
}

type cePin struct {
	c *Chip
}

func (p *cePin) Out(l nrf24.Level) error {
	c := p.c
	c.ether.mu.Lock()
	defer c.ether.mu.Unlock()
	rising := c.ce == nrf24.Low && l == nrf24.High
	c.ce = l
	cfg := c.regs[regConfig]
	if rising && c.present && cfg&pwrUp != 0 && cfg&primRx == 0 {
		c.fire()
	}
	return nil
}

func (p *cePin) In(nrf24.Pull) error { return nil }

func (p *cePin) Read() nrf24.Level {
	return p.c.CELevel()
}

func (p *cePin) Watch(nrf24.Edge, func()) error { return nil }
func (p *cePin) Unwatch() error                 { return nil }
