package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

const diagFileName = "diagnostics_log.txt"

var (
	diagLog  zerolog.Logger
	diagFile *os.File
	logMu    sync.Mutex
	logReady bool
	dir      string
)

func ResolveDir(flagPath string) (string, error) {
	if flagPath != "" {
		return absolute(flagPath)
	}
	if envPath := os.Getenv("UTTER_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

// Init opens the diagnostics log in Dir(). Until Init succeeds every
// logging call is a no-op.
func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(dir, diagFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	diagFile = f
	diagLog = newLogger(f)
	logReady = true
	return nil
}

// InitWriter logs to w instead of a file. Used by the headless driver and tests.
func InitWriter(w io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()
	diagLog = newLogger(w)
	logReady = true
}

func newLogger(w io.Writer) zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	return zerolog.New(consoleWriter).With().Timestamp().Int("pid", os.Getpid()).Logger()
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	logReady = false
}

func ready() bool {
	logMu.Lock()
	defer logMu.Unlock()
	return logReady
}

func Info(msg string) {
	if ready() {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if ready() {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if ready() {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if ready() {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if ready() {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if ready() {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func Transition(from, to string, session uint64) {
	if !ready() {
		return
	}
	diagLog.Info().
		Str("from", from).
		Str("to", to).
		Uint64("session", session).
		Msg("state")
}

func Match(color, segment string, final bool) {
	if !ready() {
		return
	}
	diagLog.Info().
		Str("color", color).
		Str("segment", segment).
		Bool("final", final).
		Msg("color_match")
}

func Auth(status string) {
	if !ready() {
		return
	}
	diagLog.Info().Str("status", status).Msg("authorization")
}

func SessionStart(provider, locale, device string) {
	if !ready() {
		return
	}
	diagLog.Info().
		Str("provider", provider).
		Str("locale", locale).
		Str("device", device).
		Msg("session_start")
}

func SessionEnd(recordings int) {
	if !ready() {
		return
	}
	diagLog.Info().
		Int("recordings", recordings).
		Msg("session_end")
}
