package nrf24

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBusIdlesCS(t *testing.T) {
	cs := &mockPin{}
	b, err := NewBus(&mockSPIConn{}, cs, BusConfig{})
	require.NoError(t, err)
	require.Equal(t, High, cs.level)
	require.Equal(t, DefaultMaxWaitLoops, b.cfg.MaxWaitLoops)
	require.False(t, b.Selected())
}

func TestBusExchange(t *testing.T) {
	spi := &mockSPIConn{}
	cs := &mockPin{}
	b, err := NewBus(spi, cs, BusConfig{})
	require.NoError(t, err)

	spi.queueRx([]byte{0x0E, 0x42})
	buf := []byte{_RF_CH, _NOP}
	require.NoError(t, b.Exchange(buf))

	require.Equal(t, []byte{0x0E, 0x42}, buf)
	require.Equal(t, []byte{_RF_CH, _NOP}, spi.tx)
	require.Equal(t, []Level{High, Low, High}, cs.levels)
	require.False(t, b.Selected())
}

func TestBusExchangeDeselectsOnError(t *testing.T) {
	spi := &mockSPIConn{err: errors.New("broken wire")}
	cs := &mockPin{}
	b, err := NewBus(spi, cs, BusConfig{})
	require.NoError(t, err)

	require.EqualError(t, b.Exchange([]byte{_NOP}), "broken wire")
	require.Equal(t, High, cs.level)
	require.False(t, b.Selected())
}

func TestBusWithoutCSPin(t *testing.T) {
	spi := &mockSPIConn{}
	b, err := NewBus(spi, nil, BusConfig{})
	require.NoError(t, err)

	require.NoError(t, b.Select())
	require.True(t, b.Selected())
	require.NoError(t, b.Deselect())
}

func TestBusTransfer(t *testing.T) {
	spi := &mockSPIConn{}
	b, err := NewBus(spi, nil, BusConfig{})
	require.NoError(t, err)

	spi.queueRx([]byte{0x5A})
	v, err := b.Transfer(_NOP)
	require.NoError(t, err)
	require.Equal(t, byte(0x5A), v)
	require.Equal(t, []byte{_NOP}, spi.tx)
}

func TestBusTransferMulti(t *testing.T) {
	spi := &mockSPIConn{}
	b, err := NewBus(spi, nil, BusConfig{})
	require.NoError(t, err)

	// n == 0 is a no-op.
	require.NoError(t, b.TransferMulti(nil, nil, 0))
	require.Empty(t, spi.txs)

	require.ErrorIs(t, b.TransferMulti(nil, nil, 2), ErrInvalidParam)
	require.ErrorIs(t, b.TransferMulti([]byte{1}, nil, 2), ErrInvalidParam)

	// Missing tx sends zeros.
	rx := make([]byte, 3)
	spi.queueRx([]byte{7, 8, 9})
	require.NoError(t, b.TransferMulti(nil, rx, 3))
	require.Equal(t, []byte{0, 0, 0}, spi.txs[0])
	require.Equal(t, []byte{7, 8, 9}, rx)

	// Missing rx discards.
	require.NoError(t, b.TransferMulti([]byte{1, 2, 3, 4}, nil, 2))
	require.Equal(t, []byte{1, 2}, spi.txs[1])
}

func TestBusBusyTimeout(t *testing.T) {
	conn := &busyConn{}
	conn.busy = true
	cs := &mockPin{}
	b, err := NewBus(conn, cs, BusConfig{MaxWaitLoops: 5})
	require.NoError(t, err)

	err = b.Exchange([]byte{_NOP})
	require.ErrorIs(t, err, ErrTimeout)
	require.Empty(t, conn.txs)
	require.Equal(t, High, cs.level)

	conn.busy = false
	require.NoError(t, b.Exchange([]byte{_NOP}))
	require.Len(t, conn.txs, 1)
}
