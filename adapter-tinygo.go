//go:build tinygo

package nrf24

import (
	"machine"
)

var tinygoEdge = map[Edge]machine.PinChange{
	RisingEdge:  machine.PinRising,
	FallingEdge: machine.PinFalling,
	BothEdges:   machine.PinToggle,
}

// tinygoPin wraps a machine.Pin. The pin is configured lazily, once per
// direction change, since CE and CS toggle on every transaction.
type tinygoPin struct {
	pin    machine.Pin
	output bool
	mode   machine.PinMode
}

func (p *tinygoPin) Out(l Level) error {
	if !p.output {
		p.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.output = true
	}
	p.pin.Set(bool(l))
	return nil
}

func (p *tinygoPin) In(pull Pull) error {
	switch pull {
	case PullUp:
		p.mode = machine.PinInputPullup
	case PullDown:
		p.mode = machine.PinInputPulldown
	default:
		p.mode = machine.PinInput
	}
	p.pin.Configure(machine.PinConfig{Mode: p.mode})
	p.output = false
	return nil
}

func (p *tinygoPin) Read() Level {
	return Level(p.pin.Get())
}

// Watch runs handler in interrupt context; it must only enqueue.
func (p *tinygoPin) Watch(edge Edge, handler func()) error {
	change, ok := tinygoEdge[edge]
	if !ok {
		return nil
	}
	return p.pin.SetInterrupt(change, func(machine.Pin) {
		handler()
	})
}

func (p *tinygoPin) Unwatch() error {
	return p.pin.SetInterrupt(0, nil)
}

// NewTinyGo creates a new NRF24L01 driver for TinyGo systems. The chip-select
// pin is driven by the bus around each transaction. Pass machine.NoPin as
// irqPin to poll.
func NewTinyGo(c Config, spi *machine.SPI, csPin, cePin, irqPin machine.Pin) (*Device, error) {
	var irq Pin
	if irqPin != machine.NoPin {
		irq = &tinygoPin{pin: irqPin}
	}

	dev, err := NewWithHardware(HardwareConfig{
		CE:  &tinygoPin{pin: cePin},
		CS:  &tinygoPin{pin: csPin},
		IRQ: irq,
	}, spi)
	if err != nil {
		return nil, err
	}
	if err := dev.Init(c); err != nil {
		return nil, err
	}
	return dev, nil
}
