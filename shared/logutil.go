package shared

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LogOutput selects where log lines are written, per the LOG_OUTPUT env var.
type LogOutput string

// Supported LOG_OUTPUT values.
const (
	LogOutputConsole LogOutput = "console"
	LogOutputFile    LogOutput = "file"
)

// ConfigureLogging sets the global logrus formatter/level/output the way the
// teacher's shared/logutil.ConfigurePersistentLogging does, returning a
// root *logrus.Entry components derive their own WithField("prefix", ...)
// entries from. The actual log-rotation policy is out of scope (spec §1);
// this only owns where the process writes to and at what level.
func ConfigureLogging(output LogOutput, level, filePath string) (*logrus.Entry, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid LOG_LEVEL %q", level)
	}

	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	switch output {
	case LogOutputConsole, "":
		logger.SetOutput(os.Stderr)
	case LogOutputFile:
		if filePath == "" {
			return nil, errors.New("LOG_OUTPUT=file requires a log file path")
		}
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, errors.Wrap(err, "could not open log file")
		}
		logger.SetOutput(io.MultiWriter(os.Stderr, f))
	default:
		return nil, errors.Errorf("invalid LOG_OUTPUT %q", output)
	}

	return logrus.NewEntry(logger), nil
}
