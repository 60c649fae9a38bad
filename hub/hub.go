// Package hub composes the radio link and the pairing handshake behind the
// small API the rest of the system uses: Init, Read, Send, Tick and
// StartPairing. A Hub is owned by one goroutine (see Task).
package hub

import (
	"errors"
	"fmt"

	"github.com/msoodb/nrf24"
	"github.com/msoodb/nrf24/clock"
	"github.com/msoodb/nrf24/link"
	"github.com/msoodb/nrf24/pairing"
)

// ErrNotPaired is returned by Send before pairing has completed.
var ErrNotPaired = errors.New("radio not paired")

// maxDrain bounds one Read, and the number of frames one Task step
// surfaces: the RX FIFO holds three frames and a few more may arrive while
// it is drained.
const maxDrain = 8

type Hub struct {
	dev     *nrf24.Device
	link    *link.Link
	pairing *pairing.Pairing
	cfg     nrf24.Config
}

// New builds a hub over dev. uid is the hardware-unique id the board
// identity is derived from.
func New(dev *nrf24.Device, clk clock.Clock, uid []byte, cfg nrf24.Config) *Hub {
	return &Hub{
		dev:     dev,
		link:    link.New(dev),
		pairing: pairing.New(dev, clk, uid),
		cfg:     cfg,
	}
}

// Init brings the link up on the default addresses and resets pairing.
// The pairing identity is derived even when the link fails. A fixed payload
// width must hold a pairing frame.
func (h *Hub) Init() error {
	defer h.pairing.Init()

	if !h.cfg.DynamicPayload && h.cfg.PayloadSize < pairing.FrameLen {
		return fmt.Errorf("%w: %w: payload size %d below pairing frame length %d",
			nrf24.ErrPkg, nrf24.ErrInvalidParam, h.cfg.PayloadSize, pairing.FrameLen)
	}

	if err := h.link.Init(h.cfg); err != nil {
		return err
	}
	if err := h.dev.SetTxAddress(pairing.DefaultAddress); err != nil {
		return err
	}
	if err := h.dev.SetRxAddress(pairing.DefaultAddress); err != nil {
		return err
	}
	return h.link.Listen()
}

// Read fetches the next application frame into p. While pairing is in
// progress every frame goes to the handshake and Read returns false;
// otherwise stray handshake frames are dropped.
func (h *Hub) Read(p *nrf24.Packet) bool {
	for i := 0; i < maxDrain && h.link.IsDataAvailable(); i++ {
		n, err := h.link.ReceiveData(p.Data[:])
		if err != nil {
			if !errors.Is(err, nrf24.ErrRxEmpty) {
				nrf24.GetLogger().Warn("hub: receive: " + err.Error())
			}
			return false
		}
		p.Len = uint8(n)

		if h.pairing.State().InProgress() {
			h.pairing.ProcessMessage(p.Bytes())
			continue
		}
		if pairing.IsFrame(p.Bytes()) {
			continue
		}
		return true
	}
	return false
}

// Send transmits p to the paired board and goes back to listening.
func (h *Hub) Send(p nrf24.Packet) error {
	if !h.pairing.IsPaired() {
		return ErrNotPaired
	}
	err := h.link.SendData(p.Bytes())
	if lerr := h.link.Listen(); err == nil {
		err = lerr
	}
	return err
}

// Tick advances pairing timeouts and retries.
func (h *Hub) Tick() {
	h.pairing.Tick()
}

// StartPairing begins the handshake; it does nothing while one is running.
func (h *Hub) StartPairing() error {
	return h.pairing.Start()
}

// ResetPairing forgets the peer and returns to the default addresses.
func (h *Hub) ResetPairing() {
	h.pairing.Reset()
}

func (h *Hub) PairState() pairing.State {
	return h.pairing.State()
}

func (h *Hub) IsPaired() bool {
	return h.pairing.IsPaired()
}

func (h *Hub) LinkState() link.State {
	return h.link.State()
}

// Pairing exposes the handshake for identity and indicator queries.
func (h *Hub) Pairing() *pairing.Pairing {
	return h.pairing
}

// Link exposes the link for status queries.
func (h *Hub) Link() *link.Link {
	return h.link
}
