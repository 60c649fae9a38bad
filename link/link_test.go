package link

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/msoodb/nrf24"
	"github.com/msoodb/nrf24/clock"
	"github.com/msoodb/nrf24/nrf24test"
)

var peerAddr = nrf24.Address{0xB1, 0xB2, 0xB3, 0xB4, 0xB5}

type fakeDev struct {
	initErr error
	txErr   error
	modes   []nrf24.Mode
	sent    [][]byte
	avail   bool
}

func (f *fakeDev) Init(nrf24.Config) error { return f.initErr }
func (f *fakeDev) SetMode(m nrf24.Mode) error {
	f.modes = append(f.modes, m)
	return nil
}
func (f *fakeDev) Transmit(b []byte) error {
	f.sent = append(f.sent, append([]byte(nil), b...))
	return f.txErr
}
func (f *fakeDev) Receive(b []byte) (int, error) { return 0, nrf24.ErrRxEmpty }
func (f *fakeDev) DataAvailable() bool           { return f.avail }

func TestInit(t *testing.T) {
	dev := &fakeDev{}
	l := New(dev)
	require.Equal(t, Idle, l.State())

	require.NoError(t, l.Init(nrf24.DefaultConfig()))
	require.Equal(t, RxMode, l.State())
	require.Equal(t, "RX", l.ModeString())
	require.Equal(t, []nrf24.Mode{nrf24.ModeRx}, dev.modes)
}

func TestInitNotPresentIsSticky(t *testing.T) {
	dev := &fakeDev{initErr: fmt.Errorf("%w: %w", nrf24.ErrPkg, nrf24.ErrNotPresent)}
	l := New(dev)

	err := l.Init(nrf24.DefaultConfig())
	require.ErrorIs(t, err, ErrLinkDown)
	require.ErrorIs(t, err, nrf24.ErrNotPresent)
	require.Equal(t, Error, l.State())
	require.Equal(t, "ERROR", l.ModeString())

	require.ErrorIs(t, l.SendData([]byte{1}), ErrLinkDown)
	require.ErrorIs(t, l.SwitchMode(), ErrLinkDown)
	_, err = l.ReceiveData(make([]byte, 32))
	require.ErrorIs(t, err, ErrLinkDown)
	dev.avail = true
	require.False(t, l.IsDataAvailable())
	require.Empty(t, dev.sent)
	require.Empty(t, dev.modes)

	// Only a successful init clears the error.
	dev.initErr = nil
	require.NoError(t, l.Init(nrf24.DefaultConfig()))
	require.Equal(t, RxMode, l.State())
}

func TestSwitchMode(t *testing.T) {
	dev := &fakeDev{}
	l := New(dev)
	require.NoError(t, l.Init(nrf24.DefaultConfig()))

	require.NoError(t, l.SwitchMode())
	require.Equal(t, TxMode, l.State())
	require.Equal(t, "TX", l.ModeString())

	require.NoError(t, l.SwitchMode())
	require.Equal(t, RxMode, l.State())
	require.Equal(t, []nrf24.Mode{nrf24.ModeRx, nrf24.ModeTx, nrf24.ModeRx}, dev.modes)
}

func TestSendDataStampsCopy(t *testing.T) {
	dev := &fakeDev{}
	l := New(dev)
	require.NoError(t, l.Init(nrf24.DefaultConfig()))

	data := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE}
	require.NoError(t, l.SendData(data))
	require.NoError(t, l.SendData(data))

	require.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE}, data)
	require.Equal(t, []byte{0, 0, 0, 0, 0xEE}, dev.sent[0])
	require.Equal(t, []byte{0, 0, 0, 1, 0xEE}, dev.sent[1])
	require.Equal(t, uint32(2), l.Counter())
	require.Equal(t, TxMode, l.State())
	// Forced into TX once.
	require.Equal(t, []nrf24.Mode{nrf24.ModeRx, nrf24.ModeTx}, dev.modes)
}

func TestSendDataShortAndLong(t *testing.T) {
	dev := &fakeDev{}
	l := New(dev)
	require.NoError(t, l.Init(nrf24.DefaultConfig()))

	require.NoError(t, l.SendData([]byte{1, 2, 3}))
	require.Equal(t, []byte{1, 2, 3}, dev.sent[0])
	require.Zero(t, l.Counter())

	require.NoError(t, l.SendData(make([]byte, 40)))
	require.Len(t, dev.sent[1], nrf24.MaxPayloadSize)
	require.Equal(t, uint32(1), l.Counter())

	require.ErrorIs(t, l.SendData(nil), nrf24.ErrInvalidParam)
}

func TestSendDataFailureKeepsLinkUp(t *testing.T) {
	dev := &fakeDev{txErr: errors.New("no ack")}
	l := New(dev)
	require.NoError(t, l.Init(nrf24.DefaultConfig()))

	require.EqualError(t, l.SendData([]byte{1, 2, 3, 4}), "no ack")
	require.Equal(t, TxMode, l.State())
	// The sequence number was consumed.
	require.Equal(t, uint32(1), l.Counter())
}

func TestIsDataAvailableForcesRx(t *testing.T) {
	dev := &fakeDev{avail: true}
	l := New(dev)
	require.NoError(t, l.Init(nrf24.DefaultConfig()))
	require.NoError(t, l.SendData([]byte{1}))

	require.True(t, l.IsDataAvailable())
	require.Equal(t, RxMode, l.State())
	require.Equal(t, []nrf24.Mode{nrf24.ModeRx, nrf24.ModeTx, nrf24.ModeRx}, dev.modes)
}

func TestListen(t *testing.T) {
	dev := &fakeDev{}
	l := New(dev)
	require.NoError(t, l.Init(nrf24.DefaultConfig()))
	require.NoError(t, l.Listen())
	require.NoError(t, l.SendData([]byte{1}))
	require.NoError(t, l.Listen())
	require.Equal(t, RxMode, l.State())
	require.Equal(t, []nrf24.Mode{nrf24.ModeRx, nrf24.ModeTx, nrf24.ModeRx}, dev.modes)
}

// Every length from 1 to 32 arrives intact, except that frames of four
// bytes or more carry the sender's counter in their first four bytes.
func TestSendReceiveAllLengths(t *testing.T) {
	ether, clk := nrf24test.NewEther(), clock.NewFake()
	cfg := nrf24.DefaultConfig()
	cfg.DynamicPayload = true

	var links [2]*Link
	var devs [2]*nrf24.Device
	for i := range links {
		dev, err := ether.NewChip().Device(clk)
		require.NoError(t, err)
		devs[i] = dev
		links[i] = New(dev)
		require.NoError(t, links[i].Init(cfg))
	}
	require.NoError(t, devs[0].SetTxAddress(peerAddr))
	require.NoError(t, devs[1].SetRxAddress(peerAddr))

	var seq uint32
	buf := make([]byte, nrf24.MaxPayloadSize)
	for n := 1; n <= nrf24.MaxPayloadSize; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(0x80 + i)
		}
		require.NoError(t, links[0].SendData(data))
		require.True(t, links[1].IsDataAvailable())

		got, err := links[1].ReceiveData(buf)
		require.NoError(t, err)
		require.Equal(t, n, got)

		want := append([]byte(nil), data...)
		if n >= SeqLen {
			binary.BigEndian.PutUint32(want, seq)
			seq++
		}
		require.Equal(t, want, buf[:got], "length %d", n)
		require.Equal(t, RxMode, links[1].State())
	}
	require.Equal(t, seq, links[0].Counter())
}
