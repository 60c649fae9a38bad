package nrf24test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/msoodb/nrf24"
	"github.com/msoodb/nrf24/clock"
)

func TestChipRegisters(t *testing.T) {
	c := NewEther().NewChip()

	r := make([]byte, 2)
	require.NoError(t, c.Tx([]byte{0x20 | regRFCh, 0x4C}, r))
	require.Equal(t, byte(0x4C), c.Reg(regRFCh))

	// STATUS answers every command; an empty RX FIFO reads as pipe 7.
	require.NoError(t, c.Tx([]byte{regRFCh, 0xFF}, r))
	require.Equal(t, []byte{0x0E, 0x4C}, r)

	addr := []byte{0x20 | regTxAddr, 1, 2, 3, 4, 5}
	require.NoError(t, c.Tx(addr, addr))
	require.Equal(t, nrf24.Address{1, 2, 3, 4, 5}, c.Addr(regTxAddr))
}

func TestChipRxFIFODepth(t *testing.T) {
	c := NewEther().NewChip()
	for i := 0; i < 5; i++ {
		c.Inject(1, []byte{byte(i)})
	}
	require.Equal(t, fifoDepth, c.Pending())

	// Write-one-to-clear leaves the FIFO alone.
	require.NoError(t, c.Tx([]byte{0x20 | regStatus, rxDR}, make([]byte, 2)))
	require.Equal(t, byte(1<<1), c.status())

	require.NoError(t, c.Tx([]byte{0xE2}, make([]byte, 1)))
	require.Zero(t, c.Pending())
}

func TestChipNotPresent(t *testing.T) {
	c := NewEther().NewChip()
	c.SetPresent(false)
	r := make([]byte, 2)
	require.NoError(t, c.Tx([]byte{regConfig, 0xFF}, r))
	require.Equal(t, []byte{0xFF, 0xFF}, r)
}

func TestEtherRecordsFrames(t *testing.T) {
	e := NewEther()
	clk := clock.NewFake()
	var devs []*nrf24.Device
	for i := 0; i < 2; i++ {
		dev, err := e.NewChip().Device(clk)
		require.NoError(t, err)
		require.NoError(t, dev.Init(nrf24.DefaultConfig()))
		devs = append(devs, dev)
	}
	dst := nrf24.Address{9, 9, 9, 9, 9}
	require.NoError(t, devs[1].SetRxAddress(dst))
	require.NoError(t, devs[1].SetMode(nrf24.ModeRx))

	require.NoError(t, devs[0].SetTxAddress(dst))
	require.NoError(t, devs[0].TransmitNoAck([]byte{7}))

	frames := e.Frames()
	require.Len(t, frames, 1)
	require.Equal(t, dst, frames[0].To)
	require.Equal(t, 1, frames[0].Heard)
	require.Len(t, frames[0].Data, 32)

	e.ClearFrames()
	require.Empty(t, e.Frames())
}
