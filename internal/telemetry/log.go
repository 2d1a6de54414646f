// Package telemetry confines process-wide logging setup.
package telemetry

import "github.com/sirupsen/logrus"

// Setup configures the global logger.
func Setup(verbose bool) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

// Component returns a log entry tagged with the component name.
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
