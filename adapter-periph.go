//go:build !tinygo

package nrf24

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// edgePoll bounds one WaitForEdge so Unwatch is noticed.
const edgePoll = 100 * time.Millisecond

var (
	toGPIOPull = map[Pull]gpio.Pull{
		PullNoChange: gpio.PullNoChange,
		PullFloat:    gpio.Float,
		PullDown:     gpio.PullDown,
		PullUp:       gpio.PullUp,
	}
	toGPIOEdge = map[Edge]gpio.Edge{
		NoEdge:      gpio.NoEdge,
		RisingEdge:  gpio.RisingEdge,
		FallingEdge: gpio.FallingEdge,
		BothEdges:   gpio.BothEdges,
	}
)

// realPin wraps a gpio.PinIO to satisfy the Pin interface. The pull chosen
// by In is kept when Watch switches on edge detection.
type realPin struct {
	gpio.PinIO
	pull gpio.Pull
	stop chan struct{}
}

func newRealPin(p gpio.PinIO) *realPin {
	return &realPin{PinIO: p, pull: gpio.PullUp}
}

func (p *realPin) Out(l Level) error {
	return p.PinIO.Out(gpio.Level(l))
}

func (p *realPin) In(pull Pull) error {
	p.pull = toGPIOPull[pull]
	return p.PinIO.In(p.pull, gpio.NoEdge)
}

func (p *realPin) Read() Level {
	return Level(p.PinIO.Read())
}

// Watch calls handler from a goroutine on every matching edge until Unwatch.
func (p *realPin) Watch(edge Edge, handler func()) error {
	if p.stop != nil {
		return fmt.Errorf("%w: %w: %s already watched", ErrPkg, ErrInvalidParam, p.PinIO.Name())
	}
	if err := p.PinIO.In(p.pull, toGPIOEdge[edge]); err != nil {
		return err
	}
	stop := make(chan struct{})
	p.stop = stop
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if p.PinIO.WaitForEdge(edgePoll) {
				handler()
			}
		}
	}()
	return nil
}

func (p *realPin) Unwatch() error {
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	return p.PinIO.In(p.pull, gpio.NoEdge)
}

// HostConfig holds the configuration for the Linux/periph.io driver.
type HostConfig struct {
	// Radio is passed to Init by New.
	Radio Config `yaml:"radio"`
	// CEPin is the BCM number of the Chip Enable pin. Defaults to 25.
	CEPin int `yaml:"ce_pin"`
	// IRQPin is the BCM number of the IRQ pin. 0 means polling.
	IRQPin int `yaml:"irq_pin"`
	// SpiBusPath defaults to "/dev/spidev0.0".
	SpiBusPath string `yaml:"spi_bus"`
	// SpiClockHz defaults to 1MHz.
	SpiClockHz int `yaml:"spi_clock_hz"`
}

// OpenPin returns the GPIO pin with the given BCM number.
// host.Init must have run (Open does it).
func OpenPin(n int) (Pin, error) {
	name := fmt.Sprintf("GPIO%d", n)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %w: no pin %s", ErrPkg, ErrInvalidParam, name)
	}
	return newRealPin(p), nil
}

// Open initializes periph.io, connects the SPI port and returns a driver that
// still needs Init. spidev frames chip-select per transfer, so the bus runs
// without a CS pin.
func Open(c HostConfig) (*Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io host: %w", err)
	}
	if c.SpiBusPath == "" {
		c.SpiBusPath = "/dev/spidev0.0"
	}
	if c.SpiClockHz == 0 {
		c.SpiClockHz = 1000000
	}
	if c.CEPin == 0 {
		c.CEPin = 25
	}

	port, err := spireg.Open(c.SpiBusPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port: %w", err)
	}
	dev, err := openOn(port, c)
	if err != nil {
		port.Close()
		return nil, err
	}
	dev.closer = port
	return dev, nil
}

func openOn(port spi.Port, c HostConfig) (*Device, error) {
	conn, err := port.Connect(physic.Frequency(c.SpiClockHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("failed to create SPI connection: %w", err)
	}
	hw := HardwareConfig{}
	if hw.CE, err = OpenPin(c.CEPin); err != nil {
		return nil, err
	}
	if c.IRQPin != 0 {
		if hw.IRQ, err = OpenPin(c.IRQPin); err != nil {
			return nil, err
		}
	}
	return NewWithHardware(hw, conn)
}

// New opens the hardware like Open and runs Init with c.Radio.
func New(c HostConfig) (*Device, error) {
	dev, err := Open(c)
	if err != nil {
		return nil, err
	}
	if err := dev.Init(c.Radio); err != nil {
		dev.Close()
		return nil, err
	}
	return dev, nil
}
