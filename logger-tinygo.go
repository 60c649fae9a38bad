//go:build tinygo

package nrf24

import (
	"machine"
)

func init() {
	globalLogger = NewSerialLogger(false)
}

// serialLogger writes to machine.Serial directly to avoid the memory
// overhead of the fmt package. Lines carry the same component tag as the
// logrus backend.
type serialLogger struct {
	debug bool
}

// NewSerialLogger logs to the USB/UART console. Debug lines are written only
// when debug is set.
func NewSerialLogger(debug bool) Logger {
	return &serialLogger{debug: debug}
}

func (l *serialLogger) log(level, msg string) {
	machine.Serial.Write([]byte(level))
	machine.Serial.Write([]byte("component=radio "))
	machine.Serial.Write([]byte(msg))
	machine.Serial.Write([]byte("\r\n"))
}

func (l *serialLogger) Debug(msg string) {
	if l.debug {
		l.log("[DEBUG] ", msg)
	}
}
func (l *serialLogger) Info(msg string)  { l.log("[INFO]  ", msg) }
func (l *serialLogger) Warn(msg string)  { l.log("[WARN]  ", msg) }
func (l *serialLogger) Error(msg string) { l.log("[ERROR] ", msg) }
