package engine

import (
	"context"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/brainsim/jumptable"
)

// DefaultMemoryPages is the guest memory size on hardware, covering user
// code at 0x03800000 and the jump table just below it.
const DefaultMemoryPages = 0x700

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages caps memory per instance in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// MemoryPages is the size guest memory is grown to before the jump
	// table is written. 0 means DefaultMemoryPages.
	MemoryPages uint32

	// JumpTableBase is where jump table words are written. 0 means
	// jumptable.DefaultBase.
	JumpTableBase uint32

	// Compiler selects the wazero compiler instead of the interpreter.
	Compiler bool
}

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.MemoryPages == 0 {
		out.MemoryPages = DefaultMemoryPages
	}
	if out.JumpTableBase == 0 {
		out.JumpTableBase = jumptable.DefaultBase
	}
	return out
}

// Engine owns a wazero runtime.
type Engine struct {
	runtime wazero.Runtime
	cfg     Config
}

// New creates an engine. A nil config uses defaults.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	c := cfg.withDefaults()

	var runtimeCfg wazero.RuntimeConfig
	if c.Compiler {
		runtimeCfg = wazero.NewRuntimeConfigCompiler()
	} else {
		runtimeCfg = wazero.NewRuntimeConfigInterpreter()
	}
	runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
	if c.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(c.MemoryLimitPages)
	}

	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cfg:     c,
	}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Close releases the runtime and every module in it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}
