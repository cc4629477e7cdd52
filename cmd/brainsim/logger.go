package main

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/brainsim/config"
	"github.com/wippyai/brainsim/engine"
	"github.com/wippyai/brainsim/jumptable"
	"github.com/wippyai/brainsim/loader"
	"github.com/wippyai/brainsim/scheduler"
	"github.com/wippyai/brainsim/script"
	"github.com/wippyai/brainsim/sdk/competition"
	"github.com/wippyai/brainsim/sdk/controller"
	"github.com/wippyai/brainsim/sdk/display"
	"github.com/wippyai/brainsim/sdk/system"
	"github.com/wippyai/brainsim/session"
)

const logBufferLines = 200

// newLogger builds the process logger. Console output is used on a
// terminal and JSON otherwise unless the config forces a format. With a
// buffer set, logs go to the buffer instead of stderr.
func newLogger(cfg config.Log, buf *logBuffer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	if buf != nil {
		enc := zap.NewDevelopmentEncoderConfig()
		enc.TimeKey = ""
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(buf), level)
		return zap.New(core), nil
	}

	console := term.IsTerminal(int(os.Stderr.Fd()))
	switch cfg.Format {
	case config.FormatConsole:
		console = true
	case config.FormatJSON:
		console = false
	}

	var zc zap.Config
	if console {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func setLoggers(l *zap.Logger) {
	engine.SetLogger(l.Named("engine"))
	jumptable.SetLogger(l.Named("jumptable"))
	loader.SetLogger(l.Named("loader"))
	scheduler.SetLogger(l.Named("scheduler"))
	session.SetLogger(l.Named("session"))
	script.SetLogger(l.Named("script"))
	display.SetLogger(l.Named("display"))
	competition.SetLogger(l.Named("competition"))
	controller.SetLogger(l.Named("controller"))
	system.SetLogger(l.Named("system"))
}

// logBuffer keeps the most recent log lines for the TUI.
type logBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
	seq   uint64
}

func newLogBuffer(max int) *logBuffer {
	return &logBuffer{max: max}
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		b.lines = append(b.lines, line)
	}
	if over := len(b.lines) - b.max; over > 0 {
		b.lines = append(b.lines[:0], b.lines[over:]...)
	}
	b.seq++
	return len(p), nil
}

// Snapshot returns the buffered lines and a counter that changes on every
// write.
func (b *logBuffer) Snapshot() ([]string, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...), b.seq
}
