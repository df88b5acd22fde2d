package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// skippedFrames are the function prefixes that never count as a call site.
var skippedFrames = []string{
	"github.com/sirupsen/logrus",
	"settleflow/logger.",
}

// callerHook points entry.Caller at the first frame outside logrus and the
// Entry wrappers in this package.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 24)
	n := runtime.Callers(4, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !isSkipped(frame.Function) {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}

func isSkipped(fn string) bool {
	for _, prefix := range skippedFrames {
		if strings.HasPrefix(fn, prefix) {
			return true
		}
	}
	return false
}
