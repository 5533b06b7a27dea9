package sealevel

import (
	"fmt"
)

type Logger interface {
	Log(s string)
}

// LogRecorder collects program log lines in emission order.
type LogRecorder struct {
	Logs []string
}

func (r *LogRecorder) Log(s string) {
	r.Logs = append(r.Logs, s)
}

// Msgf writes a program log line, prefixed the way on-chain programs'
// messages are.
func Msgf(log Logger, format string, args ...interface{}) {
	log.Log("Program log: " + fmt.Sprintf(format, args...))
}
