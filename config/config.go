// Package config loads simulator settings from YAML.
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/brainsim/engine"
	"github.com/wippyai/brainsim/errors"
	"github.com/wippyai/brainsim/jumptable"
	"github.com/wippyai/brainsim/memory"
	"github.com/wippyai/brainsim/sdk/competition"
)

// Log formats.
const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config is the complete simulator configuration.
type Config struct {
	Engine      Engine      `yaml:"engine"`
	Memory      Memory      `yaml:"memory"`
	Scheduler   Scheduler   `yaml:"scheduler"`
	Competition Competition `yaml:"competition"`
	Display     Display     `yaml:"display"`
	Serial      Serial      `yaml:"serial"`
	Log         Log         `yaml:"log"`
	Session     Session     `yaml:"session"`
}

type Engine struct {
	Compiler         bool   `yaml:"compiler"`
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`
}

type Memory struct {
	Pages         uint32 `yaml:"pages"`
	JumpTableBase uint32 `yaml:"jump_table_base"`
}

type Scheduler struct {
	TickInterval  Duration `yaml:"tick_interval"`
	FrameInterval Duration `yaml:"frame_interval"`
}

type Competition struct {
	Connected bool     `yaml:"connected"`
	Phase     string   `yaml:"phase"` // requested once connected
	Match     []Period `yaml:"match"`
}

// Period is one timed match period.
type Period struct {
	Phase    string   `yaml:"phase"`
	Duration Duration `yaml:"duration"`
}

type Display struct {
	Header bool `yaml:"header"` // composite the status bar on exported frames
}

type Serial struct {
	Echo     bool     `yaml:"echo"` // copy stdio output to the process stdout
	Channels []uint32 `yaml:"channels"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Session struct {
	Enabled bool `yaml:"enabled"`
}

// Duration wraps time.Duration for YAML unmarshaling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Memory: Memory{
			Pages:         engine.DefaultMemoryPages,
			JumpTableBase: jumptable.DefaultBase,
		},
		Scheduler: Scheduler{
			TickInterval:  Duration(10 * time.Millisecond),
			FrameInterval: Duration(16 * time.Millisecond),
		},
		Display: Display{Header: true},
		Serial:  Serial{Echo: true},
		Log:     Log{Level: "info", Format: FormatAuto},
	}
}

// Load reads path over the defaults and validates the result. Unknown keys
// are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.New(errors.PhaseConfig, errors.KindNotFound).
			Path(path).
			Detail("read config").
			Cause(err).
			Build()
	}
	return Parse(path, data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(path string, data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return Config{}, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Path(path).
			Detail("parse config").
			Cause(err).
			Build()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and names.
func (c Config) Validate() error {
	invalid := func(path string, format string, args ...any) error {
		return errors.InvalidData(errors.PhaseConfig, []string{path}, fmt.Sprintf(format, args...))
	}

	const maxPages = 1 << 16
	if c.Memory.Pages == 0 || c.Memory.Pages > maxPages {
		return invalid("memory.pages", "must be between 1 and %d", maxPages)
	}
	if c.Engine.MemoryLimitPages != 0 && c.Engine.MemoryLimitPages < c.Memory.Pages {
		return invalid("engine.memory_limit_pages", "%d is below memory.pages %d", c.Engine.MemoryLimitPages, c.Memory.Pages)
	}
	base := uint64(c.Memory.JumpTableBase)
	if base%4 != 0 {
		return invalid("memory.jump_table_base", "0x%x is not word aligned", base)
	}
	if end := base + uint64(jumptable.Size); end > uint64(c.Memory.Pages)*memory.PageSize {
		return invalid("memory.jump_table_base", "table ends at 0x%x, past %d pages of memory", end, c.Memory.Pages)
	}
	if c.Scheduler.TickInterval <= 0 {
		return invalid("scheduler.tick_interval", "must be positive")
	}
	if c.Scheduler.FrameInterval <= 0 {
		return invalid("scheduler.frame_interval", "must be positive")
	}
	if c.Competition.Phase != "" {
		if _, err := competition.ParsePhase(c.Competition.Phase); err != nil {
			return invalid("competition.phase", "%v", err)
		}
	}
	if _, err := c.Competition.Periods(); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case FormatAuto, FormatConsole, FormatJSON:
	default:
		return invalid("log.format", "unknown format %q", c.Log.Format)
	}
	return nil
}

// InitialPhase returns the phase requested at startup, if any.
func (c Competition) InitialPhase() (competition.Phase, bool) {
	if c.Phase == "" {
		return 0, false
	}
	p, err := competition.ParsePhase(c.Phase)
	return p, err == nil
}

// Periods converts the match list. It returns nil when no match is set.
func (c Competition) Periods() ([]competition.Period, error) {
	if len(c.Match) == 0 {
		return nil, nil
	}
	out := make([]competition.Period, 0, len(c.Match))
	for i, p := range c.Match {
		phase, err := competition.ParsePhase(p.Phase)
		if err != nil {
			return nil, errors.InvalidData(errors.PhaseConfig,
				[]string{"competition.match", fmt.Sprint(i), "phase"}, err.Error())
		}
		if p.Duration <= 0 {
			return nil, errors.InvalidData(errors.PhaseConfig,
				[]string{"competition.match", fmt.Sprint(i), "duration"}, "must be positive")
		}
		out = append(out, competition.Period{Phase: phase, Duration: p.Duration.Duration()})
	}
	return out, nil
}

// EngineConfig returns the engine settings.
func (c Config) EngineConfig() *engine.Config {
	return &engine.Config{
		Compiler:         c.Engine.Compiler,
		MemoryLimitPages: c.Engine.MemoryLimitPages,
		MemoryPages:      c.Memory.Pages,
		JumpTableBase:    c.Memory.JumpTableBase,
	}
}
