// Package logging configures the global logrus logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// rotating is the current log file, if any
var rotating *lumberjack.Logger

// Init parses and sets the log level and directs output to logPath.
// An empty logPath or "console" logs to stderr.
func Init(logLevel string, logPath string) error {
	level, err := log.ParseLevel(strings.TrimSpace(logLevel))
	if err != nil {
		return err
	}

	Close()
	formatter := &log.TextFormatter{FullTimestamp: true}

	if logPath != "" && logPath != "console" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return err
		}
		rotating = &lumberjack.Logger{
			// Log file absolute path, os agnostic
			Filename:   filepath.ToSlash(logPath),
			MaxSize:    5, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		}
		formatter.DisableColors = true
		log.SetOutput(io.Writer(rotating))
	} else {
		log.SetOutput(os.Stderr)
	}

	log.SetFormatter(formatter)
	log.SetLevel(level)
	return nil
}

// Close flushes and closes the log file opened by Init.
func Close() {
	if rotating != nil {
		_ = rotating.Close()
		rotating = nil
	}
}
