package planner

import (
	"time"

	"github.com/sirupsen/logrus"
)

// timed logs the duration of op when the returned func runs. Pass the
// address of the named error result so failures are logged at warn.
func timed(log logrus.FieldLogger, op string, fields logrus.Fields) func(errp *error) {
	start := time.Now()
	return func(errp *error) {
		entry := log.WithFields(fields).WithFields(logrus.Fields{
			"op":     op,
			"dur_ms": time.Since(start).Milliseconds(),
		})
		if errp != nil && *errp != nil {
			entry.WithError(*errp).Warn("op failed")
			return
		}
		entry.Info("op done")
	}
}
