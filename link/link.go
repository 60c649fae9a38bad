// Package link is the half-duplex TX/RX state machine on top of the
// transceiver driver. Outgoing frames of four bytes or more carry a
// big-endian sequence number in their first four bytes.
package link

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/msoodb/nrf24"
)

// ErrLinkDown is returned by every operation once initialization failed.
var ErrLinkDown = errors.New("radio link down")

// SeqLen is the size of the sequence number stamped on outgoing frames.
const SeqLen = 4

type State uint8

const (
	Idle State = iota
	TxMode
	RxMode
	Transmitting
	Listening
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case TxMode:
		return "tx-mode"
	case RxMode:
		return "rx-mode"
	case Transmitting:
		return "transmitting"
	case Listening:
		return "listening"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Transceiver is the part of *nrf24.Device the link drives.
type Transceiver interface {
	Init(nrf24.Config) error
	SetMode(nrf24.Mode) error
	Transmit([]byte) error
	Receive([]byte) (int, error)
	DataAvailable() bool
}

// Link owns the transceiver mode. Not safe for concurrent use.
type Link struct {
	dev     Transceiver
	state   State
	mode    nrf24.Mode
	counter uint32
	buf     [nrf24.MaxPayloadSize]byte
}

func New(dev Transceiver) *Link {
	return &Link{dev: dev, state: Idle, mode: nrf24.ModeStandby}
}

// Init initializes the transceiver and starts listening. Any failure leaves
// the link in Error until the next successful Init.
func (l *Link) Init(cfg nrf24.Config) error {
	log := nrf24.GetLogger()
	if err := l.dev.Init(cfg); err != nil {
		l.state = Error
		log.Error("link: transceiver init failed: " + err.Error())
		return fmt.Errorf("%w: %w", ErrLinkDown, err)
	}
	if err := l.dev.SetMode(nrf24.ModeRx); err != nil {
		l.state = Error
		log.Error("link: cannot enter rx mode: " + err.Error())
		return fmt.Errorf("%w: %w", ErrLinkDown, err)
	}
	l.mode = nrf24.ModeRx
	l.state = RxMode
	log.Info("link: up in rx mode")
	return nil
}

// SwitchMode toggles between TxMode and RxMode.
func (l *Link) SwitchMode() error {
	if l.state == Error {
		return ErrLinkDown
	}
	if l.mode == nrf24.ModeRx {
		return l.enter(nrf24.ModeTx)
	}
	return l.enter(nrf24.ModeRx)
}

func (l *Link) enter(m nrf24.Mode) error {
	if err := l.dev.SetMode(m); err != nil {
		return err
	}
	l.mode = m
	if m == nrf24.ModeTx {
		l.state = TxMode
	} else {
		l.state = RxMode
	}
	return nil
}

func (l *Link) force(m nrf24.Mode) error {
	if l.mode == m {
		return nil
	}
	return l.enter(m)
}

// SendData transmits at most 32 bytes of data. The caller's slice is not
// modified; the sequence number is written into a copy.
func (l *Link) SendData(data []byte) error {
	if l.state == Error {
		return ErrLinkDown
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: %w: empty payload", nrf24.ErrPkg, nrf24.ErrInvalidParam)
	}
	if err := l.force(nrf24.ModeTx); err != nil {
		return err
	}

	n := copy(l.buf[:], data)
	if n >= SeqLen {
		binary.BigEndian.PutUint32(l.buf[:SeqLen], l.counter)
		l.counter++
	}

	l.state = Transmitting
	err := l.dev.Transmit(l.buf[:n])
	l.state = TxMode
	if err != nil {
		nrf24.GetLogger().Debug("link: transmit failed: " + err.Error())
	}
	return err
}

// Listen switches to RX if needed.
func (l *Link) Listen() error {
	if l.state == Error {
		return ErrLinkDown
	}
	return l.force(nrf24.ModeRx)
}

// IsDataAvailable switches to RX if needed and reports a pending frame.
func (l *Link) IsDataAvailable() bool {
	if l.state == Error {
		return false
	}
	if err := l.force(nrf24.ModeRx); err != nil {
		return false
	}
	return l.dev.DataAvailable()
}

// ReceiveData switches to RX if needed and reads one frame into buf.
func (l *Link) ReceiveData(buf []byte) (int, error) {
	if l.state == Error {
		return 0, ErrLinkDown
	}
	if err := l.force(nrf24.ModeRx); err != nil {
		return 0, err
	}
	l.state = Listening
	n, err := l.dev.Receive(buf)
	l.state = RxMode
	return n, err
}

func (l *Link) State() State {
	return l.state
}

// ModeString returns "TX" or "RX", or "ERROR" when the link is down.
func (l *Link) ModeString() string {
	if l.state == Error {
		return "ERROR"
	}
	switch l.mode {
	case nrf24.ModeTx:
		return "TX"
	case nrf24.ModeRx:
		return "RX"
	default:
		return "ERROR"
	}
}

// Counter returns the sequence number the next stamped frame will carry.
func (l *Link) Counter() uint32 {
	return l.counter
}
