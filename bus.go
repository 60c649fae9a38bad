package nrf24

import "fmt"

// DefaultMaxWaitLoops bounds every wait on the controller's busy flag.
const DefaultMaxWaitLoops = 10000

// BusConfig configures the serial transport.
type BusConfig struct {
	// MaxWaitLoops is the iteration budget for a single busy-flag wait.
	// Defaults to DefaultMaxWaitLoops.
	MaxWaitLoops int
}

// Bus is the byte-level serial transport to the transceiver. Every logical
// transaction is bracketed by Select and Deselect.
//
// When cs is nil the SPI controller frames chip-select itself (Linux spidev
// does this per Tx call), so a transaction must be issued as one Exchange.
type Bus struct {
	conn     SPI
	cs       Pin
	cfg      BusConfig
	selected bool
}

// NewBus initializes the transport and leaves chip-select idle (high).
func NewBus(conn SPI, cs Pin, cfg BusConfig) (*Bus, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: %w: nil SPI connection", ErrPkg, ErrInvalidParam)
	}
	if cfg.MaxWaitLoops <= 0 {
		cfg.MaxWaitLoops = DefaultMaxWaitLoops
	}
	b := &Bus{conn: conn, cs: cs, cfg: cfg}
	if cs != nil {
		if err := cs.Out(High); err != nil {
			return nil, fmt.Errorf("failed to configure CS pin: %w", err)
		}
	}
	return b, nil
}

// Select asserts chip-select.
func (b *Bus) Select() error {
	if b.cs != nil {
		if err := b.cs.Out(Low); err != nil {
			return err
		}
	}
	b.selected = true
	return nil
}

// Deselect releases chip-select.
func (b *Bus) Deselect() error {
	b.selected = false
	if b.cs != nil {
		return b.cs.Out(High)
	}
	return nil
}

// Selected reports whether a transaction is open.
func (b *Bus) Selected() bool {
	return b.selected
}

func (b *Bus) waitReady() error {
	busy, ok := b.conn.(Busy)
	if !ok {
		return nil
	}
	for i := 0; i < b.cfg.MaxWaitLoops; i++ {
		if !busy.Busy() {
			return nil
		}
	}
	return fmt.Errorf("%w: %w: SPI busy", ErrPkg, ErrTimeout)
}

// Transfer exchanges a single byte.
func (b *Bus) Transfer(v byte) (byte, error) {
	var w, r [1]byte
	w[0] = v
	if err := b.TransferMulti(w[:], r[:], 1); err != nil {
		return 0, err
	}
	return r[0], nil
}

// TransferMulti exchanges n bytes full duplex. A nil tx sends zeros, a nil rx
// discards what is read; they may not both be nil.
func (b *Bus) TransferMulti(tx, rx []byte, n int) error {
	if n == 0 {
		return nil
	}
	if n < 0 || (tx == nil && rx == nil) {
		return fmt.Errorf("%w: %w: no buffers for transfer", ErrPkg, ErrInvalidParam)
	}
	if (tx != nil && len(tx) < n) || (rx != nil && len(rx) < n) {
		return fmt.Errorf("%w: %w: buffer shorter than %d", ErrPkg, ErrInvalidParam, n)
	}
	if tx == nil {
		tx = make([]byte, n)
	}
	if rx == nil {
		rx = make([]byte, n)
	}
	if err := b.waitReady(); err != nil {
		return err
	}
	return b.conn.Tx(tx[:n], rx[:n])
}

// Exchange runs one framed transaction over buf in place: the bytes in buf
// are sent and replaced by the bytes read. Chip-select is released on every
// return path.
func (b *Bus) Exchange(buf []byte) (err error) {
	if err := b.Select(); err != nil {
		return err
	}
	defer func() {
		if derr := b.Deselect(); derr != nil && err == nil {
			err = derr
		}
	}()
	return b.TransferMulti(buf, buf, len(buf))
}
