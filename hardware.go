package nrf24

import (
	"fmt"

	"github.com/msoodb/nrf24/clock"
)

// HardwareConfig wires a Device to its pins and timing source.
type HardwareConfig struct {
	// CE is the Chip Enable pin interface.
	CE Pin
	// CS is the chip-select pin. Optional. Leave nil when the SPI controller
	// drives chip-select itself.
	CS Pin
	// IRQ is the Interrupt Request pin interface.
	// Optional. If not provided, polling is used.
	IRQ Pin
	// Bus configures the serial transport.
	Bus BusConfig
	// Clock provides delays. Defaults to clock.System.
	Clock clock.Clock
}

// NewWithHardware creates a driver on the provided hardware interfaces.
// The radio is left untouched until Init.
func NewWithHardware(hw HardwareConfig, conn SPI) (*Device, error) {
	if hw.CE == nil {
		return nil, fmt.Errorf("%w: %w: CE pin not configured", ErrPkg, ErrInvalidParam)
	}
	if hw.Clock == nil {
		hw.Clock = clock.System
	}
	bus, err := NewBus(conn, hw.CS, hw.Bus)
	if err != nil {
		return nil, err
	}

	dev := &Device{
		bus: bus,
		ce:  hw.CE,
		irq: hw.IRQ,
		clk: hw.Clock,
	}

	// Setup CE
	if err := dev.setCE(false); err != nil {
		return nil, fmt.Errorf("failed to configure CE pin: %w", err)
	}

	// Setup IRQ if provided
	if hw.IRQ != nil {
		if err := hw.IRQ.In(PullUp); err != nil {
			return nil, fmt.Errorf("failed to configure IRQ pin: %w", err)
		}
		dev.irqChan = make(chan struct{}, 1)
		// Watch starts a goroutine that calls the handler on edge
		err := hw.IRQ.Watch(FallingEdge, func() {
			select {
			case dev.irqChan <- struct{}{}:
			default:
				// Channel full
			}
		})
		if err != nil {
			return nil, fmt.Errorf("failed to watch IRQ pin: %w", err)
		}
	}
	return dev, nil
}
