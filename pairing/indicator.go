package pairing

import "time"

// Blink periods of the status LED.
const (
	SlowBlink = 500 * time.Millisecond
	FastBlink = 200 * time.Millisecond
)

// Indicator is the LED pattern for a pairing state: off, solid, or
// toggling every Blink.
type Indicator struct {
	On    bool
	Blink time.Duration
}

// Level returns the LED level at elapsed time d into the pattern.
func (i Indicator) Level(d time.Duration) bool {
	if i.Blink <= 0 {
		return i.On
	}
	return (d/i.Blink)%2 == 0
}

// Indicator returns the pattern for the current state.
func (p *Pairing) Indicator() Indicator {
	return IndicatorFor(p.state)
}

// IndicatorFor maps a state to its pattern: off when Normal, slow blink
// while Waiting, fast blink as Master or Slave, solid when Paired.
func IndicatorFor(s State) Indicator {
	switch s {
	case Waiting:
		return Indicator{Blink: SlowBlink}
	case Master, Slave:
		return Indicator{Blink: FastBlink}
	case Paired:
		return Indicator{On: true}
	default:
		return Indicator{}
	}
}
