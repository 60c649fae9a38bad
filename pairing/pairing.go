// Package pairing implements the zero-configuration handshake that lets two
// boards find each other on a shared broadcast address and settle on a
// private address pair.
//
// A board that starts pairing listens for 2 seconds. If it hears a Request
// it sends Accept to the requester's address and becomes Slave; otherwise it
// becomes Master and broadcasts a Request every second until a Slave
// accepts. The Master sends Confirm to the Slave's address and both sides
// end Paired, each sending to the other's derived address and listening on
// its own. Pairing that has not
// finished after 30 seconds is abandoned.
//
// Two boards that both become Master never pair with each other; the timeout
// resets them.
package pairing

import (
	"errors"
	"time"

	"github.com/msoodb/nrf24"
	"github.com/msoodb/nrf24/clock"
)

// ErrSelfTest is reported when the transceiver fails its self-test at Start.
var ErrSelfTest = errors.New("transceiver self-test failed")

const (
	Timeout          = 30 * time.Second
	WaitBeforeMaster = 2 * time.Second
	RetryInterval    = time.Second
)

var (
	// Broadcast is where every board listens while pairing.
	Broadcast = nrf24.Address{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	// DefaultAddress is used for both directions while unpaired.
	DefaultAddress = nrf24.Address{0x01, 0x02, 0x03, 0x04, 0x05}
)

type State uint8

const (
	Normal State = iota
	Waiting
	Master
	Slave
	Paired
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case Waiting:
		return "waiting"
	case Master:
		return "master"
	case Slave:
		return "slave"
	case Paired:
		return "paired"
	default:
		return "unknown"
	}
}

// InProgress reports whether the handshake is running.
func (s State) InProgress() bool {
	return s == Waiting || s == Master || s == Slave
}

// Radio is the part of the transceiver the handshake drives.
type Radio interface {
	Test() bool
	SetTxAddress(nrf24.Address) error
	SetRxAddress(nrf24.Address) error
	SetMode(nrf24.Mode) error
	TransmitNoAck([]byte) error
	OpenRxPipe(pipe int, addr nrf24.Address) error
}

// directPipe receives Accept and Confirm frames sent to the board's own
// address while pairing. Handshake frames are never acknowledged, so the
// ack pipe is free until the peer is known.
const directPipe = 0

// Pairing is the handshake state machine. It is driven by Tick and
// ProcessMessage from the goroutine that owns the radio.
type Pairing struct {
	radio Radio
	clk   clock.Clock
	uid   []byte

	id    BoardID
	addr  nrf24.Address
	state State

	started   time.Time
	lastRetry time.Time
	peer      nrf24.Address
	paired    bool

	// OnError is called when Start cannot proceed, e.g. to blink an LED.
	OnError func(error)
}

// New creates a pairing state machine. Init must be called before use.
func New(radio Radio, clk clock.Clock, uid []byte) *Pairing {
	if clk == nil {
		clk = clock.System
	}
	return &Pairing{radio: radio, clk: clk, uid: uid}
}

// Init derives the board identity and enters Normal.
func (p *Pairing) Init() {
	p.id, p.addr = IdentityFrom(p.uid)
	p.state = Normal
	p.paired = false
	nrf24.GetLogger().Info("pairing: board " + p.id.String() + " address " + p.addr.String())
}

// Start begins pairing. It does nothing unless the state is Normal.
func (p *Pairing) Start() error {
	if p.state != Normal {
		return nil
	}
	log := nrf24.GetLogger()
	if !p.radio.Test() {
		log.Error("pairing: " + ErrSelfTest.Error())
		if p.OnError != nil {
			p.OnError(ErrSelfTest)
		}
		return ErrSelfTest
	}

	p.state = Waiting
	p.started = p.clk.Now()
	p.lastRetry = time.Time{}
	if err := p.listenPairing(); err != nil {
		log.Warn("pairing: cannot listen: " + err.Error())
	}
	log.Info("pairing: waiting")
	return nil
}

// Tick advances timeouts and retries.
func (p *Pairing) Tick() {
	if !p.state.InProgress() {
		return
	}
	now := p.clk.Now()
	if now.Sub(p.started) >= Timeout {
		nrf24.GetLogger().Info("pairing: timed out in state " + p.state.String())
		p.Reset()
		return
	}

	switch p.state {
	case Waiting:
		if now.Sub(p.started) >= WaitBeforeMaster {
			p.state = Master
			nrf24.GetLogger().Info("pairing: no request heard, becoming master")
			p.send(Request, Broadcast)
			p.lastRetry = now
		}
	case Master:
		if now.Sub(p.lastRetry) >= RetryInterval {
			p.send(Request, Broadcast)
			p.lastRetry = now
		}
	}
}

// ProcessMessage consumes a received frame. It returns false when b is not
// a pairing frame, and true for every pairing frame, including those that
// cause no transition. Requests arrive on the broadcast address; Accept and
// Confirm are sent to the receiver's own address, so a Master only hears the
// Accepts that answer its own Request.
func (p *Pairing) ProcessMessage(b []byte) bool {
	m, ok := Decode(b)
	if !ok {
		return false
	}
	if m.BoardID == p.id {
		return true
	}

	switch {
	case p.state == Waiting && m.Type == Request:
		p.peer = m.Address
		p.state = Slave
		nrf24.GetLogger().Info("pairing: request from " + m.BoardID.String() + ", becoming slave")
		p.send(Accept, p.peer)
	case p.state == Master && m.Type == Accept:
		p.peer = m.Address
		p.send(Confirm, p.peer)
		p.complete()
	case p.state == Slave && m.Type == Confirm && m.Address == p.peer:
		p.complete()
	}
	return true
}

// Reset abandons pairing and returns to the default addresses.
func (p *Pairing) Reset() {
	p.state = Normal
	p.paired = false
	if err := p.radio.SetTxAddress(DefaultAddress); err != nil {
		nrf24.GetLogger().Warn("pairing: reset: " + err.Error())
	}
	if err := p.listen(DefaultAddress); err != nil {
		nrf24.GetLogger().Warn("pairing: reset: " + err.Error())
	}
}

func (p *Pairing) State() State {
	return p.state
}

func (p *Pairing) IsPaired() bool {
	return p.paired
}

// PairedAddress returns the peer's address once paired.
func (p *Pairing) PairedAddress() (nrf24.Address, bool) {
	if !p.paired {
		return nrf24.Address{}, false
	}
	return p.peer, true
}

func (p *Pairing) BoardID() BoardID {
	return p.id
}

func (p *Pairing) Address() nrf24.Address {
	return p.addr
}

func (p *Pairing) complete() {
	p.state = Paired
	p.paired = true
	log := nrf24.GetLogger()
	if err := p.radio.SetTxAddress(p.peer); err != nil {
		log.Warn("pairing: set tx address: " + err.Error())
	}
	if err := p.listen(p.addr); err != nil {
		log.Warn("pairing: listen on own address: " + err.Error())
	}
	log.Info("pairing: paired with " + p.peer.String())
}

// listenPairing listens on the broadcast address and on the board's own.
func (p *Pairing) listenPairing() error {
	if err := p.radio.OpenRxPipe(directPipe, p.addr); err != nil {
		return err
	}
	return p.listen(Broadcast)
}

func (p *Pairing) listen(addr nrf24.Address) error {
	if err := p.radio.SetRxAddress(addr); err != nil {
		return err
	}
	return p.radio.SetMode(nrf24.ModeRx)
}

// send transmits a frame to addr without acknowledgement and goes back to
// listening. SetTxAddress may mirror addr onto the direct pipe, so it is
// reopened on the own address. Failures are logged; the retry timer or the
// timeout recovers.
func (p *Pairing) send(t MsgType, addr nrf24.Address) {
	frame := Message{Type: t, BoardID: p.id, Address: p.addr}.Encode()
	err := p.radio.SetTxAddress(addr)
	if err == nil {
		err = p.radio.SetMode(nrf24.ModeTx)
	}
	if err == nil {
		err = p.radio.TransmitNoAck(frame[:])
	}
	if rerr := p.radio.OpenRxPipe(directPipe, p.addr); err == nil {
		err = rerr
	}
	if rerr := p.radio.SetMode(nrf24.ModeRx); err == nil {
		err = rerr
	}
	if err != nil {
		nrf24.GetLogger().Warn("pairing: send " + t.String() + ": " + err.Error())
	}
}
