package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// temporalLogger adapts logrus to the Temporal SDK logger.
type temporalLogger struct {
	entry logrus.FieldLogger
}

func (l temporalLogger) with(keyvals []any) logrus.FieldLogger {
	if len(keyvals) == 0 {
		return l.entry
	}
	fields := make(logrus.Fields, len(keyvals)/2+1)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 == len(keyvals) {
			fields[key] = nil
			break
		}
		fields[key] = keyvals[i+1]
	}
	return l.entry.WithFields(fields)
}

func (l temporalLogger) Debug(msg string, keyvals ...any) { l.with(keyvals).Debug(msg) }
func (l temporalLogger) Info(msg string, keyvals ...any)  { l.with(keyvals).Info(msg) }
func (l temporalLogger) Warn(msg string, keyvals ...any)  { l.with(keyvals).Warn(msg) }
func (l temporalLogger) Error(msg string, keyvals ...any) { l.with(keyvals).Error(msg) }
