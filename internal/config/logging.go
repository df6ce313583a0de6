// ABOUTME: Logrus setup for the player
// ABOUTME: Logs to a rotated file only under the TUI and to stdout plus file otherwise
package config

import (
	"io"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log file rotation limits
const (
	logMaxSizeMB  = 10
	logMaxBackups = 3
	logMaxAgeDays = 7
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetupLogging configures the standard logrus logger. The returned closer
// closes the log file.
func SetupLogging(level, file string, useTUI bool, stdout io.Writer) (io.Closer, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	var closer io.Closer = nopCloser{}
	var out io.Writer = io.Discard
	if file != "" {
		logFile := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
		}
		closer = logFile
		out = logFile
	}

	if !useTUI {
		// Streaming logs mode: log to both stdout and file
		if file != "" {
			out = io.MultiWriter(stdout, out)
		} else {
			out = stdout
		}
	}
	log.SetOutput(out)
	return closer, nil
}
