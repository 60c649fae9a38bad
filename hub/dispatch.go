package hub

import (
	"fmt"

	"github.com/msoodb/nrf24"
)

// Lines is the number of external interrupt lines.
const Lines = 16

type route struct {
	ch chan<- Event
	ev Event
}

// Dispatcher maps interrupt lines to event queues. Fire may be called from
// interrupt context or a GPIO watcher goroutine: it only enqueues. Register
// all lines before the first Fire.
type Dispatcher struct {
	routes [Lines]route
}

// Register makes Fire(line) post ev to ch.
func (d *Dispatcher) Register(line int, ch chan<- Event, ev Event) error {
	if line < 0 || line >= Lines {
		return fmt.Errorf("%w: %w: line %d out of range 0-%d", nrf24.ErrPkg, nrf24.ErrInvalidParam, line, Lines-1)
	}
	d.routes[line] = route{ch: ch, ev: ev}
	return nil
}

// Fire posts the event registered for line without blocking. It returns
// false when the line is unregistered or the queue is full.
func (d *Dispatcher) Fire(line int) bool {
	if line < 0 || line >= Lines {
		return false
	}
	r := d.routes[line]
	if r.ch == nil {
		return false
	}
	select {
	case r.ch <- r.ev:
		return true
	default:
		return false
	}
}
