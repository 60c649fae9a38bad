package hub

import (
	"context"
	"time"

	"github.com/msoodb/nrf24"
	"github.com/msoodb/nrf24/pairing"
)

// Event is a request from outside the owning goroutine.
type Event uint8

const (
	EventNone Event = iota
	EventStartPairing
	EventResetPairing
)

func (e Event) String() string {
	switch e {
	case EventStartPairing:
		return "start-pairing"
	case EventResetPairing:
		return "reset-pairing"
	default:
		return "none"
	}
}

type TaskConfig struct {
	// Period between two steps. Defaults to 10ms.
	Period time.Duration
	// EventQueue is the capacity of the event queue. Defaults to 5.
	EventQueue int
}

func DefaultTaskConfig() TaskConfig {
	return TaskConfig{Period: 10 * time.Millisecond, EventQueue: 5}
}

// Task owns a Hub and drives it periodically. Other goroutines interact only
// through Post and Submit.
type Task struct {
	hub    *Hub
	cfg    TaskConfig
	events chan Event
	cmd    chan nrf24.Packet
	state  pairing.State

	// OnPacket receives every application frame read from the radio.
	OnPacket func(nrf24.Packet)
	// OnStateChange is called after each pairing state transition.
	OnStateChange func(pairing.State)
	// OnSendError is called when the pending command could not be sent.
	OnSendError func(error)
}

func NewTask(h *Hub, cfg TaskConfig) *Task {
	def := DefaultTaskConfig()
	if cfg.Period <= 0 {
		cfg.Period = def.Period
	}
	if cfg.EventQueue <= 0 {
		cfg.EventQueue = def.EventQueue
	}
	return &Task{
		hub:    h,
		cfg:    cfg,
		events: make(chan Event, cfg.EventQueue),
		cmd:    make(chan nrf24.Packet, 1),
		state:  h.PairState(),
	}
}

// Events is the queue Post writes to, for registering with a Dispatcher.
func (t *Task) Events() chan<- Event {
	return t.events
}

// Post queues e without blocking. It returns false and drops e when the
// queue is full.
func (t *Task) Post(e Event) bool {
	select {
	case t.events <- e:
		return true
	default:
		return false
	}
}

// Submit makes p the next command to send, replacing any command not yet
// sent.
func (t *Task) Submit(p nrf24.Packet) {
	for {
		select {
		case t.cmd <- p:
			return
		default:
		}
		select {
		case <-t.cmd:
		default:
		}
	}
}

// Run steps the hub every period until ctx is done.
func (t *Task) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.Step()
		}
	}
}

// Step runs one iteration: queued events, pairing timers, inbound frames,
// then the pending command.
func (t *Task) Step() {
	log := nrf24.GetLogger()

	for drained := false; !drained; {
		select {
		case e := <-t.events:
			t.handle(e)
		default:
			drained = true
		}
	}

	t.hub.Tick()
	t.notify()

	var p nrf24.Packet
	for i := 0; i < maxDrain && t.hub.Read(&p); i++ {
		if t.OnPacket != nil {
			t.OnPacket(p)
		}
	}
	t.notify()

	select {
	case cmd := <-t.cmd:
		if err := t.hub.Send(cmd); err != nil {
			log.Debug("task: command not sent: " + err.Error())
			if t.OnSendError != nil {
				t.OnSendError(err)
			}
		}
	default:
	}
}

func (t *Task) handle(e Event) {
	switch e {
	case EventStartPairing:
		if err := t.hub.StartPairing(); err != nil {
			nrf24.GetLogger().Warn("task: start pairing: " + err.Error())
		}
	case EventResetPairing:
		t.hub.ResetPairing()
	}
	t.notify()
}

func (t *Task) notify() {
	s := t.hub.PairState()
	if s == t.state {
		return
	}
	t.state = s
	if t.OnStateChange != nil {
		t.OnStateChange(s)
	}
}
