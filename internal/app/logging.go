package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogging points the global logger at a console writer on console and,
// when logFile is set, also appends JSON lines to that file. The returned
// closer releases the file and is never nil.
func SetupLogging(console io.Writer, verbose bool, logFile string) (io.Closer, error) {
	zerolog.TimeFieldFormat = time.RFC3339
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	cw := zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	if strings.TrimSpace(logFile) == "" {
		log.Logger = log.Output(cw)
		return io.NopCloser(nil), nil
	}
	if dir := filepath.Dir(logFile); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return io.NopCloser(nil), fmt.Errorf("log dir: %w", err)
		}
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return io.NopCloser(nil), fmt.Errorf("open log file: %w", err)
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(cw, f)).With().Timestamp().Logger()
	return f, nil
}
