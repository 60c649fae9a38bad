package nrf24

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/msoodb/nrf24/clock"
)

var (
	ErrPkg            = errors.New("nrf24dev")
	ErrTimeout        = errors.New("timeout waiting for device")
	ErrNotPresent     = errors.New("transceiver not present")
	ErrInvalidParam   = errors.New("invalid parameter")
	ErrNotInitialized = errors.New("device not initialized")
	ErrRxEmpty        = errors.New("no payload available")
	ErrTxFailed       = errors.New("max retransmissions reached")
	// ErrMaxRetries is the historical name of ErrTxFailed.
	ErrMaxRetries = ErrTxFailed
)

// MaxPayloadSize is the largest frame the chip carries over the air.
const MaxPayloadSize = 32

// Timing of the chip. These are minimums from the datasheet and are never
// shortened.
const (
	SettleDelay    = 130 * time.Microsecond
	PowerOnDelay   = 2 * time.Millisecond
	CEPulse        = 15 * time.Microsecond
	TxPollInterval = 10 * time.Microsecond
	TxTimeout      = 10 * time.Millisecond
)

type Address [5]byte

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4])
}

// Packet is a fixed radio buffer with an explicit length.
type Packet struct {
	Data [MaxPayloadSize]byte
	Len  uint8
}

// NewPacket copies at most MaxPayloadSize bytes of b into a packet.
func NewPacket(b []byte) Packet {
	var p Packet
	p.Len = uint8(copy(p.Data[:], b))
	return p
}

// Bytes returns the valid part of the buffer.
func (p *Packet) Bytes() []byte {
	n := int(p.Len)
	if n > MaxPayloadSize {
		n = MaxPayloadSize
	}
	return p.Data[:n]
}

type (
	DataRate byte
	PALevel  byte
	Mode     byte
)

const (
	// DataRate250kbps represents a data rate of 250kbps
	DataRate250kbps DataRate = iota
	// DataRate1mbps represents a data rate of 1mbps
	DataRate1mbps
	// DataRate2mbps represents a data rate of 2mbps
	DataRate2mbps
)

func (d DataRate) String() string {
	switch d {
	case DataRate250kbps:
		return "250kbps"
	case DataRate1mbps:
		return "1mbps"
	case DataRate2mbps:
		return "2mbps"
	default:
		return "unknown"
	}
}

const (
	// PALevelMin represents a power amplifier level of -18dBm
	PALevelMin PALevel = iota
	// PALevelLow represents a power amplifier level of -12dBm
	PALevelLow
	// PALevelHigh represents a power amplifier level of -6dBm
	PALevelHigh
	// PALevelMax represents a power amplifier level of 0dBm
	PALevelMax
)

func (p PALevel) String() string {
	switch p {
	case PALevelMin:
		return "-18dBm"
	case PALevelLow:
		return "-12dBm"
	case PALevelHigh:
		return "-6dBm"
	case PALevelMax:
		return "0dBm"
	default:
		return "unknown"
	}
}

const (
	ModePowerDown Mode = iota
	ModeStandby
	ModeTx
	ModeRx
)

func (m Mode) String() string {
	switch m {
	case ModePowerDown:
		return "power-down"
	case ModeStandby:
		return "standby"
	case ModeTx:
		return "tx"
	case ModeRx:
		return "rx"
	default:
		return "unknown"
	}
}

// Status Register Bits
const (
	StatusDataReady   = 1 << 6 // RX_DR
	StatusDataSent    = 1 << 5 // TX_DS
	StatusMaxRetries  = 1 << 4 // MAX_RT
	StatusRXFIFOEmpty = 7 << 1 // RX_P_NO (111)
	StatusTXFIFOFull  = 1 << 0 // TX_FULL
)

// --- NRF24L01 Registers/Commands/Bits ---

// NRF24 Register Addresses
const (
	_CONFIG      = 0x00
	_EN_AA       = 0x01 // Auto Ack
	_EN_RXADDR   = 0x02
	_SETUP_AW    = 0x03
	_SETUP_RETR  = 0x04
	_RF_CH       = 0x05
	_RF_SETUP    = 0x06
	_STATUS      = 0x07
	_OBSERVE_TX  = 0x08
	_RPD         = 0x09
	_RX_ADDR_P0  = 0x0A
	_RX_ADDR_P1  = 0x0B
	_TX_ADDR_REG = 0x10
	_RX_PW_P0    = 0x11 // Receive Payload Width for Data Pipe 0
	_RX_PW_P1    = 0x12 // Receive Payload Width for Data Pipe 1
	_DYNPD       = 0x1C // Dynamic Payload Register
	_FEATURE     = 0x1D // Feature Register

	_REGISTER_MASK      = 0x1F
	_W_REGISTER         = 0x20
	_R_RX_PL_WID        = 0x60
	_R_RX_PAYLOAD       = 0x61
	_W_TX_PAYLOAD       = 0xA0
	_W_TX_PAYLOAD_NOACK = 0xB0
	_FLUSH_TX           = 0xE1
	_FLUSH_RX           = 0xE2
	_NOP                = 0xFF
)

// NRF24 Register Bit Definitions
const (
	_PWR_UP  = 1 << 1
	_PRIM_RX = 1 << 0
	_RX_DR   = 1 << 6
	_TX_DS   = 1 << 5
	_MAX_RT  = 1 << 4
	_EN_CRC  = 1 << 3
	_CRCO    = 1 << 2

	_ERX_P0 = 1 << 0
	_ERX_P1 = 1 << 1

	_EN_DPL     = 1 << 2 // Enable Dynamic Payload Length
	_EN_DYN_ACK = 1 << 0 // Enable Payload with No ACK

	_RF_DR_HIGH = 1 << 3
	_RF_DR_LOW  = 1 << 5

	_SELF_TEST_PATTERN = 0x55
)

// Config holds the radio parameters. It is stored by Init and cannot change
// afterwards except through another Init.
type Config struct {
	// Channel selects 2400+Channel MHz. Range: 0 to 127.
	Channel byte `yaml:"channel"`
	// PALevel sets the power amplifier level.
	PALevel PALevel `yaml:"pa_level"`
	// DataRate sets the air data rate.
	DataRate DataRate `yaml:"data_rate"`
	// RetryCount is the number of auto retransmissions. Range: 0 to 15.
	RetryCount byte `yaml:"retry_count"`
	// RetryDelay is the auto retransmit delay in steps of 250us, (n+1)*250us.
	// Range: 0 to 15.
	RetryDelay byte `yaml:"retry_delay"`
	// AutoAck enables hardware acknowledgements on pipes 0 and 1.
	AutoAck bool `yaml:"auto_ack"`
	// DynamicPayload enables per-frame payload lengths.
	DynamicPayload bool `yaml:"dynamic_payload"`
	// PayloadSize is the fixed frame width when DynamicPayload is false.
	// Range: 1 to 32.
	PayloadSize byte `yaml:"payload_size"`
}

// DefaultConfig returns channel 76, 0dBm, 1mbps, 3 retries of 1.5ms,
// auto-ack and fixed 32 byte payloads.
func DefaultConfig() Config {
	return Config{
		Channel:     76,
		PALevel:     PALevelMax,
		DataRate:    DataRate1mbps,
		RetryCount:  3,
		RetryDelay:  5,
		AutoAck:     true,
		PayloadSize: MaxPayloadSize,
	}
}

// Validate checks every field against the range the chip accepts.
func (c Config) Validate() error {
	switch {
	case c.Channel > 127:
		return fmt.Errorf("%w: %w: channel %d out of range 0-127", ErrPkg, ErrInvalidParam, c.Channel)
	case c.PALevel > PALevelMax:
		return fmt.Errorf("%w: %w: unknown PA level %d", ErrPkg, ErrInvalidParam, c.PALevel)
	case c.DataRate > DataRate2mbps:
		return fmt.Errorf("%w: %w: unknown data rate %d", ErrPkg, ErrInvalidParam, c.DataRate)
	case c.RetryCount > 15:
		return fmt.Errorf("%w: %w: retry count %d out of range 0-15", ErrPkg, ErrInvalidParam, c.RetryCount)
	case c.RetryDelay > 15:
		return fmt.Errorf("%w: %w: retry delay %d out of range 0-15", ErrPkg, ErrInvalidParam, c.RetryDelay)
	case c.PayloadSize == 0 || c.PayloadSize > MaxPayloadSize:
		return fmt.Errorf("%w: %w: payload size %d out of range 1-32", ErrPkg, ErrInvalidParam, c.PayloadSize)
	}
	return nil
}

func (c Config) rfSetup() byte {
	var v byte
	switch c.DataRate {
	case DataRate1mbps:
		// RF_DR_HIGH = 0, RF_DR_LOW = 0
	case DataRate2mbps:
		v |= _RF_DR_HIGH
	case DataRate250kbps:
		v |= _RF_DR_LOW
	}
	return v | byte(c.PALevel)<<1
}

// Device drives one nRF24L01(+) chip. It is owned by a single goroutine and
// is not safe for concurrent use.
type Device struct {
	bus         *Bus
	ce          Pin
	irq         Pin
	irqChan     chan struct{}
	clk         clock.Clock
	closer      io.Closer
	config      Config
	mode        Mode
	initialized bool
	scratch     [MaxPayloadSize + 1]byte // Max payload (32) + 1 command/status byte
}

func (d *Device) String() string {
	return fmt.Sprintf("NRF24L01(Channel=%d, DataRate=%s, PALevel=%s, DynamicPayload=%v, AutoAck=%v, Mode=%s)",
		d.config.Channel,
		d.config.DataRate,
		d.config.PALevel,
		d.config.DynamicPayload,
		d.config.AutoAck,
		d.mode,
	)
}

// Config returns the configuration stored by the last successful Init.
func (d *Device) Config() Config {
	return d.config
}

// Mode returns the last mode requested through SetMode.
func (d *Device) Mode() Mode {
	return d.mode
}

// Initialized reports whether Init has completed.
func (d *Device) Initialized() bool {
	return d.initialized
}

// Init configures the chip from c and leaves it powered up in standby.
// It returns ErrNotPresent when the register self-test fails.
func (d *Device) Init(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	d.initialized = false
	d.config = c

	globalLogger.Info("Initializing NRF24L01...")

	if err := d.setCE(false); err != nil {
		return err
	}
	if err := d.writeRegister(_CONFIG, 0); err != nil {
		return err
	}
	d.clk.Sleep(PowerOnDelay)
	d.mode = ModePowerDown

	ok, err := d.selfTest()
	if err != nil {
		return err
	}
	if !ok {
		globalLogger.Error("NRF24L01 self-test failed: check wiring/power")
		return fmt.Errorf("%w: %w", ErrPkg, ErrNotPresent)
	}

	var enAA byte
	if c.AutoAck {
		enAA = _ERX_P0 | _ERX_P1
	}
	feature := byte(_EN_DYN_ACK)
	if c.DynamicPayload {
		feature |= _EN_DPL
	}

	w := regWriter{d: d}
	w.write(_EN_AA, enAA)
	w.write(_EN_RXADDR, _ERX_P0|_ERX_P1)
	w.write(_SETUP_AW, 0x03) // 5 byte addresses
	w.write(_SETUP_RETR, c.RetryDelay<<4|c.RetryCount)
	w.write(_RF_CH, c.Channel)
	w.write(_RF_SETUP, c.rfSetup())
	w.write(_FEATURE, feature)
	if c.DynamicPayload {
		w.write(_DYNPD, _ERX_P0|_ERX_P1)
	} else {
		w.write(_DYNPD, 0)
		w.write(_RX_PW_P0, c.PayloadSize)
		w.write(_RX_PW_P1, c.PayloadSize)
	}
	w.write(_STATUS, _RX_DR|_TX_DS|_MAX_RT)
	w.command(_FLUSH_TX)
	w.command(_FLUSH_RX)
	w.write(_CONFIG, _EN_CRC|_CRCO|_PWR_UP)
	if w.err != nil {
		return w.err
	}
	d.clk.Sleep(PowerOnDelay)

	d.mode = ModeStandby
	d.initialized = true
	globalLogger.Info("NRF24L01 initialized and powered up. Ready to operate.")
	return nil
}

// SetMode moves the chip to m and waits for it to settle. Setting the
// current mode again is harmless.
func (d *Device) SetMode(m Mode) error {
	if err := d.ready(); err != nil {
		return err
	}
	cfg, err := d.readRegister(_CONFIG)
	if err != nil {
		return err
	}
	ce := false
	switch m {
	case ModePowerDown:
		cfg &^= _PWR_UP
	case ModeStandby, ModeTx:
		cfg |= _PWR_UP
		cfg &^= _PRIM_RX
	case ModeRx:
		cfg |= _PWR_UP | _PRIM_RX
		ce = true
	default:
		return fmt.Errorf("%w: %w: unknown mode %d", ErrPkg, ErrInvalidParam, m)
	}

	// CE low while reconfiguring
	if err := d.setCE(false); err != nil {
		return err
	}
	if err := d.writeRegister(_CONFIG, cfg); err != nil {
		return err
	}
	if ce {
		if err := d.setCE(true); err != nil {
			return err
		}
	}
	d.mode = m
	d.clk.Sleep(SettleDelay)
	return nil
}

// SetTxAddress sets the destination of subsequent transmissions. With
// auto-ack the address is mirrored to pipe 0, where acknowledgements arrive.
func (d *Device) SetTxAddress(addr Address) error {
	if err := d.ready(); err != nil {
		return err
	}
	if err := d.writeRegisterN(_TX_ADDR_REG, addr[:]); err != nil {
		return err
	}
	if d.config.AutoAck {
		return d.writeRegisterN(_RX_ADDR_P0, addr[:])
	}
	return nil
}

// SetRxAddress sets the listening address (pipe 1).
func (d *Device) SetRxAddress(addr Address) error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.writeRegisterN(_RX_ADDR_P1, addr[:])
}

// Transmit sends one frame and waits for the acknowledgement (or, without
// auto-ack, for the frame to leave the chip).
func (d *Device) Transmit(data []byte) error {
	return d.transmit(data, _W_TX_PAYLOAD)
}

// TransmitNoAck sends one frame with the "No Acknowledgement" flag in the
// packet header, so no receiver replies. This is the way to broadcast to
// several listeners at once.
func (d *Device) TransmitNoAck(data []byte) error {
	return d.transmit(data, _W_TX_PAYLOAD_NOACK)
}

func (d *Device) transmit(data []byte, cmd byte) error {
	if err := d.ready(); err != nil {
		return err
	}
	limit := MaxPayloadSize
	if !d.config.DynamicPayload {
		limit = int(d.config.PayloadSize)
	}
	if len(data) == 0 || len(data) > limit {
		return fmt.Errorf("%w: %w: payload of %d bytes, limit is %d", ErrPkg, ErrInvalidParam, len(data), limit)
	}

	if err := d.SetMode(ModeStandby); err != nil {
		return err
	}
	if _, err := d.command(_FLUSH_TX); err != nil {
		return err
	}

	size := len(data)
	if !d.config.DynamicPayload {
		size = limit
	}
	d.scratch[0] = cmd
	clear(d.scratch[1 : size+1])
	copy(d.scratch[1:], data) // fixed width frames are zero padded
	if _, _, err := d.exchange(size + 1); err != nil {
		return err
	}

	if err := d.setCE(true); err != nil {
		return err
	}
	d.clk.Sleep(CEPulse)
	if err := d.setCE(false); err != nil {
		return err
	}

	deadline := d.clk.Now().Add(TxTimeout)
	for {
		status, err := d.command(_NOP)
		if err != nil {
			return err
		}
		if status&_MAX_RT != 0 {
			globalLogger.Debug("Transmit: max retransmissions reached")
			if err := d.ClearStatus(_MAX_RT | _TX_DS); err != nil {
				return err
			}
			if _, err := d.command(_FLUSH_TX); err != nil {
				return err
			}
			return fmt.Errorf("%w: %w", ErrPkg, ErrTxFailed)
		}
		if status&_TX_DS != 0 {
			return d.ClearStatus(_TX_DS)
		}
		if !d.clk.Now().Before(deadline) {
			globalLogger.Warn("Transmit: timeout waiting for TX_DS/MAX_RT")
			if _, err := d.command(_FLUSH_TX); err != nil {
				return err
			}
			return fmt.Errorf("%w: %w", ErrPkg, ErrTimeout)
		}
		d.clk.Sleep(TxPollInterval)
	}
}

// Receive copies the frame at the head of the RX FIFO into buf and returns
// its length. It returns ErrRxEmpty when nothing is waiting.
func (d *Device) Receive(buf []byte) (int, error) {
	if err := d.ready(); err != nil {
		return 0, err
	}
	status, err := d.command(_NOP)
	if err != nil {
		return 0, err
	}
	if !dataReady(status) {
		return 0, fmt.Errorf("%w: %w", ErrPkg, ErrRxEmpty)
	}

	width := int(d.config.PayloadSize)
	if d.config.DynamicPayload {
		d.scratch[0] = _R_RX_PL_WID
		d.scratch[1] = _NOP
		_, data, err := d.exchange(2)
		if err != nil {
			return 0, err
		}
		width = int(data[0])
		if width == 0 || width > MaxPayloadSize {
			// A corrupt width cannot be read past; drop the whole FIFO.
			globalLogger.Warn("Receive: invalid dynamic payload width, flushing RX")
			if _, err := d.command(_FLUSH_RX); err != nil {
				return 0, err
			}
			if err := d.ClearStatus(_RX_DR); err != nil {
				return 0, err
			}
			return 0, fmt.Errorf("%w: %w", ErrPkg, ErrRxEmpty)
		}
	}
	if len(buf) < width {
		return 0, fmt.Errorf("%w: %w: buffer of %d bytes for a %d byte payload", ErrPkg, ErrInvalidParam, len(buf), width)
	}

	d.scratch[0] = _R_RX_PAYLOAD
	for i := 1; i <= width; i++ {
		d.scratch[i] = _NOP
	}
	_, data, err := d.exchange(width + 1)
	if err != nil {
		return 0, err
	}
	n := copy(buf, data)

	if err := d.ClearStatus(_RX_DR); err != nil {
		return n, err
	}
	return n, nil
}

// ReceivePacket reads one frame into p.
func (d *Device) ReceivePacket(p *Packet) error {
	n, err := d.Receive(p.Data[:])
	if err != nil {
		return err
	}
	p.Len = uint8(n)
	return nil
}

// dataReady reports RX_DR or a pipe number in RX_P_NO (the FIFO is not
// empty even after RX_DR has been cleared for an earlier frame).
func dataReady(status byte) bool {
	return status&_RX_DR != 0 || status&StatusRXFIFOEmpty != StatusRXFIFOEmpty
}

// DataAvailable reports whether a frame is waiting in the RX FIFO.
func (d *Device) DataAvailable() bool {
	status, err := d.Status()
	return err == nil && dataReady(status)
}

// TxComplete reports whether TX_DS is set.
func (d *Device) TxComplete() bool {
	status, err := d.Status()
	return err == nil && status&_TX_DS != 0
}

// Status samples the STATUS register with a NOP.
func (d *Device) Status() (byte, error) {
	if err := d.ready(); err != nil {
		return 0, err
	}
	return d.command(_NOP)
}

// ClearStatus clears the given interrupt flags (write 1 to clear).
func (d *Device) ClearStatus(flags byte) error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.writeRegister(_STATUS, flags&(_RX_DR|_TX_DS|_MAX_RT))
}

// Test runs the register self-test: CONFIG is overwritten with a known
// pattern, read back and restored. It returns false on mismatch or bus error.
func (d *Device) Test() bool {
	if d.ready() != nil {
		return false
	}
	ok, err := d.selfTest()
	if err != nil {
		globalLogger.Error("Self-test: bus error")
		return false
	}
	return ok
}

func (d *Device) selfTest() (bool, error) {
	orig, err := d.readRegister(_CONFIG)
	if err != nil {
		return false, err
	}
	if err := d.writeRegister(_CONFIG, _SELF_TEST_PATTERN); err != nil {
		return false, err
	}
	got, err := d.readRegister(_CONFIG)
	if err != nil {
		return false, err
	}
	if err := d.writeRegister(_CONFIG, orig); err != nil {
		return false, err
	}
	return got == _SELF_TEST_PATTERN, nil
}

// FlushTX clears the transmit FIFO buffer.
func (d *Device) FlushTX() error {
	if err := d.ready(); err != nil {
		return err
	}
	_, err := d.command(_FLUSH_TX)
	return err
}

// FlushRX clears the receive FIFO buffer.
func (d *Device) FlushRX() error {
	if err := d.ready(); err != nil {
		return err
	}
	_, err := d.command(_FLUSH_RX)
	return err
}

// RetransmitCounters returns the number of lost packets and the number of retransmissions
// for the last sent packet.
// lostPackets: Number of packets lost (count resets when changing channel).
// currentRetries: Number of retransmissions for the latest transmission.
func (d *Device) RetransmitCounters() (lostPackets byte, currentRetries byte, err error) {
	if err = d.ready(); err != nil {
		return 0, 0, err
	}
	val, err := d.readRegister(_OBSERVE_TX)
	if err != nil {
		return 0, 0, err
	}
	return (val >> 4) & 0x0F, val & 0x0F, nil
}

// CarrierDetected returns true if a carrier is detected on the current channel.
// On NRF24L01+, it detects signals > -64dBm.
func (d *Device) CarrierDetected() bool {
	if d.ready() != nil {
		return false
	}
	v, err := d.readRegister(_RPD)
	return err == nil && v&0x01 != 0
}

// OpenRxPipe enables a data pipe (0-5) with the specified address.
// For Pipe 0 and 1, the full 5 byte address is used.
// For Pipes 2-5, only the LSB is used, as they share the high bytes with Pipe 1.
// Note: Pipe 0 is also used for receiving Auto-Ack packets and SetTxAddress
// overwrites it.
func (d *Device) OpenRxPipe(pipeID int, addr Address) error {
	if pipeID < 0 || pipeID > 5 {
		return fmt.Errorf("%w: %w: pipeID must be between 0 and 5", ErrPkg, ErrInvalidParam)
	}
	if err := d.ready(); err != nil {
		return err
	}

	w := regWriter{d: d}
	if pipeID <= 1 {
		w.writeN(byte(_RX_ADDR_P0+pipeID), addr[:])
	} else {
		w.write(byte(_RX_ADDR_P0+pipeID), addr[0])
	}
	bit := byte(1) << pipeID
	if d.config.DynamicPayload {
		w.update(_DYNPD, func(v byte) byte { return v | bit })
	} else {
		w.update(_DYNPD, func(v byte) byte { return v &^ bit })
		w.write(byte(_RX_PW_P0+pipeID), d.config.PayloadSize)
	}
	w.update(_EN_RXADDR, func(v byte) byte { return v | bit })
	if d.config.AutoAck {
		w.update(_EN_AA, func(v byte) byte { return v | bit })
	} else {
		w.update(_EN_AA, func(v byte) byte { return v &^ bit })
	}
	return w.err
}

// CloseRxPipe disables a specific data pipe (0-5).
func (d *Device) CloseRxPipe(pipeID int) error {
	if pipeID < 0 || pipeID > 5 {
		return fmt.Errorf("%w: %w: pipeID must be between 0 and 5", ErrPkg, ErrInvalidParam)
	}
	if err := d.ready(); err != nil {
		return err
	}
	bit := byte(1) << pipeID
	w := regWriter{d: d}
	w.update(_EN_RXADDR, func(v byte) byte { return v &^ bit })
	w.update(_EN_AA, func(v byte) byte { return v &^ bit })
	return w.err
}

// PowerDown puts the NRF24L01 into Power Down mode.
// In this mode, the radio is disabled with minimal current consumption (approx. 900nA).
func (d *Device) PowerDown() error {
	return d.SetMode(ModePowerDown)
}

// Close powers the radio down and releases the bus and the IRQ pin.
func (d *Device) Close() error {
	var errs []error
	if d.initialized {
		if err := d.PowerDown(); err != nil {
			errs = append(errs, err)
		} else {
			globalLogger.Info("NRF24L01 powered down.")
		}
	}
	d.initialized = false
	if d.irq != nil {
		if err := d.irq.Unwatch(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.closer != nil {
		if err := d.closer.Close(); err != nil {
			globalLogger.Warn("Failed to close SPI port")
			errs = append(errs, err)
		}
		d.closer = nil
	}
	return errors.Join(errs...)
}

// WaitForInterrupt blocks until the IRQ pin goes low (active) or the context is cancelled.
// It returns the content of the STATUS register.
func (d *Device) WaitForInterrupt(ctx context.Context) (byte, error) {
	if d.irq == nil {
		return 0, fmt.Errorf("%w: %w: IRQ pin not configured", ErrPkg, ErrInvalidParam)
	}
	if d.irq.Read() == Low {
		return d.Status()
	}
	select {
	case <-d.irqChan:
		return d.Status()
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// ReceiveBlocking waits for a packet to arrive or for the context to be cancelled.
// It blocks on the IRQ pin if configured, or falls back to polling.
// The chip must already be in ModeRx.
func (d *Device) ReceiveBlocking(ctx context.Context, p *Packet) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := d.ReceivePacket(p)
		if err == nil || !errors.Is(err, ErrRxEmpty) {
			return err
		}

		if d.irq != nil {
			status, err := d.WaitForInterrupt(ctx)
			if err != nil {
				return err
			}
			if status&_RX_DR != 0 {
				continue
			}
			// Another interrupt (e.g. MAX_RT); clear it so we don't get stuck
			if err := d.ClearStatus(status); err != nil {
				return err
			}
		} else {
			d.clk.Sleep(5 * time.Millisecond)
		}
	}
}

// --- NRF24L01 Core Functions (SPI interaction) ---

func (d *Device) ready() error {
	if !d.initialized {
		return fmt.Errorf("%w: %w", ErrPkg, ErrNotInitialized)
	}
	return nil
}

// exchange runs one transaction over the first n bytes of scratch.
func (d *Device) exchange(n int) (status byte, response []byte, err error) {
	slice := d.scratch[:n]
	if err := d.bus.Exchange(slice); err != nil {
		globalLogger.Error("SPI Transfer Error")
		return 0, nil, err
	}
	return d.scratch[0], d.scratch[1:n], nil
}

func (d *Device) command(cmd byte) (byte, error) {
	d.scratch[0] = cmd
	status, _, err := d.exchange(1)
	return status, err
}

func (d *Device) writeRegister(reg, val byte) error {
	d.scratch[0] = _W_REGISTER | (reg & _REGISTER_MASK)
	d.scratch[1] = val
	_, _, err := d.exchange(2)
	return err
}

func (d *Device) readRegister(reg byte) (byte, error) {
	d.scratch[0] = reg & _REGISTER_MASK
	d.scratch[1] = _NOP
	_, data, err := d.exchange(2)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func (d *Device) writeRegisterN(reg byte, data []byte) error {
	d.scratch[0] = _W_REGISTER | (reg & _REGISTER_MASK)
	n := copy(d.scratch[1:], data)
	_, _, err := d.exchange(1 + n)
	return err
}

func (d *Device) setCE(level bool) error {
	if level {
		return d.ce.Out(High)
	}
	return d.ce.Out(Low)
}

// regWriter runs a sequence of register operations and keeps the first error.
type regWriter struct {
	d   *Device
	err error
}

func (w *regWriter) write(reg, val byte) {
	if w.err == nil {
		w.err = w.d.writeRegister(reg, val)
	}
}

func (w *regWriter) writeN(reg byte, data []byte) {
	if w.err == nil {
		w.err = w.d.writeRegisterN(reg, data)
	}
}

func (w *regWriter) update(reg byte, fn func(byte) byte) {
	if w.err != nil {
		return
	}
	var v byte
	if v, w.err = w.d.readRegister(reg); w.err == nil {
		w.err = w.d.writeRegister(reg, fn(v))
	}
}

func (w *regWriter) command(cmd byte) {
	if w.err == nil {
		_, w.err = w.d.command(cmd)
	}
}
