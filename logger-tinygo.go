//go:build tinygo

package sx127x

import (
	"machine"
)

func defaultLogger() Logger {
	return &serialLogger{}
}

// serialLogger is a default logger for TinyGo that writes to machine.Serial
// directly. Debug is dropped to keep interrupt handling short on the UART.
type serialLogger struct{}

func (l *serialLogger) log(level, msg string) {
	machine.Serial.Write([]byte(level))
	machine.Serial.Write([]byte(msg))
	machine.Serial.Write([]byte("\r\n"))
}

func (l *serialLogger) Debug(msg string) {}
func (l *serialLogger) Info(msg string)  { l.log("[INFO]  ", msg) }
func (l *serialLogger) Warn(msg string)  { l.log("[WARN]  ", msg) }
func (l *serialLogger) Error(msg string) { l.log("[ERROR] ", msg) }
