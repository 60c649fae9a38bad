package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/msoodb/nrf24"
	"github.com/msoodb/nrf24/clock"
	"github.com/msoodb/nrf24/nrf24test"
	"github.com/msoodb/nrf24/pairing"
)

func newTestTask(t *testing.T, ether *nrf24test.Ether, clk clock.Clock, uid string) *Task {
	t.Helper()
	return NewTask(newNode(t, ether, clk, uid).hub, TaskConfig{})
}

func TestNewTaskDefaults(t *testing.T) {
	task := newTestTask(t, nrf24test.NewEther(), clock.NewFake(), "a")
	require.Equal(t, DefaultTaskConfig(), task.cfg)
	require.Equal(t, 5, cap(task.events))
}

func TestSubmitLatestWins(t *testing.T) {
	task := newTestTask(t, nrf24test.NewEther(), clock.NewFake(), "a")

	task.Submit(nrf24.NewPacket([]byte("first")))
	task.Submit(nrf24.NewPacket([]byte("second")))

	require.Len(t, task.cmd, 1)
	p := <-task.cmd
	require.Equal(t, "second", string(p.Bytes()))
}

func TestPostDropsWhenFull(t *testing.T) {
	task := newTestTask(t, nrf24test.NewEther(), clock.NewFake(), "a")

	for i := 0; i < 5; i++ {
		require.True(t, task.Post(EventStartPairing))
	}
	require.False(t, task.Post(EventResetPairing))
}

func TestStepHandlesEvents(t *testing.T) {
	task := newTestTask(t, nrf24test.NewEther(), clock.NewFake(), "a")
	var states []pairing.State
	task.OnStateChange = func(s pairing.State) { states = append(states, s) }

	require.True(t, task.Post(EventStartPairing))
	task.Step()
	require.Equal(t, pairing.Waiting, task.hub.PairState())

	require.True(t, task.Post(EventResetPairing))
	task.Step()
	require.Equal(t, pairing.Normal, task.hub.PairState())
	require.Equal(t, []pairing.State{pairing.Waiting, pairing.Normal}, states)
}

func TestStepReportsUnsentCommand(t *testing.T) {
	task := newTestTask(t, nrf24test.NewEther(), clock.NewFake(), "a")
	var sendErr error
	task.OnSendError = func(err error) { sendErr = err }

	task.Submit(nrf24.NewPacket([]byte("go")))
	task.Step()
	require.ErrorIs(t, sendErr, ErrNotPaired)
	require.Empty(t, task.cmd)
}

func TestStepBoundsInboundFrames(t *testing.T) {
	ether, clk := nrf24test.NewEther(), clock.NewFake()
	n := newNode(t, ether, clk, "a")
	task := NewTask(n.hub, TaskConfig{})

	frame := make([]byte, nrf24.MaxPayloadSize)
	copy(frame, "telemetry")
	n.chip.Inject(1, frame)

	// Every delivered frame is replaced by a new one: the radio never runs dry.
	received := 0
	task.OnPacket = func(nrf24.Packet) {
		received++
		n.chip.Inject(1, frame)
	}
	var sendErr error
	task.OnSendError = func(err error) { sendErr = err }

	task.Submit(nrf24.NewPacket([]byte("go")))
	task.Step()

	require.Equal(t, maxDrain, received)
	// The command slot was still reached.
	require.ErrorIs(t, sendErr, ErrNotPaired)
	require.Empty(t, task.cmd)
}

func TestTasksPairAndDeliver(t *testing.T) {
	ether, clk := nrf24test.NewEther(), clock.NewFake()
	rover := newTestTask(t, ether, clk, "rover")
	remote := newTestTask(t, ether, clk, "remote")

	var got []nrf24.Packet
	rover.OnPacket = func(p nrf24.Packet) { got = append(got, p) }
	var roverStates []pairing.State
	rover.OnStateChange = func(s pairing.State) { roverStates = append(roverStates, s) }

	// The remote starts 300ms later so that only the rover becomes master.
	require.True(t, rover.Post(EventStartPairing))
	for i := 0; i < 3000 && !(rover.hub.IsPaired() && remote.hub.IsPaired()); i++ {
		if i == 30 {
			require.True(t, remote.Post(EventStartPairing))
		}
		rover.Step()
		remote.Step()
		clk.Advance(10 * time.Millisecond)
	}
	require.True(t, rover.hub.IsPaired())
	require.True(t, remote.hub.IsPaired())
	require.Equal(t, pairing.Waiting, roverStates[0])
	require.Equal(t, pairing.Paired, roverStates[len(roverStates)-1])

	remote.Submit(nrf24.NewPacket([]byte("stale command")))
	remote.Submit(nrf24.NewPacket([]byte("forward!")))
	remote.Step()
	rover.Step()

	require.Len(t, got, 1)
	require.Equal(t, []byte("ard!"), got[0].Data[4:8])
}

func TestRunStopsOnCancel(t *testing.T) {
	task := NewTask(newNode(t, nrf24test.NewEther(), clock.NewFake(), "a").hub, TaskConfig{Period: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- task.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
