package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/brainsim/config"
	"github.com/wippyai/brainsim/engine"
	"github.com/wippyai/brainsim/errors"
	"github.com/wippyai/brainsim/loader"
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger overrides the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// Runtime owns the wasm engine. Simulators started from it share the
// engine's module namespace, so only one may be open at a time.
type Runtime struct {
	engine *engine.Engine
	cfg    config.Config
	logger *zap.Logger
}

// New validates cfg and creates the engine.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runtime{cfg: cfg, logger: Logger()}
	for _, opt := range opts {
		opt(r)
	}

	eng, err := engine.New(ctx, cfg.EngineConfig())
	if err != nil {
		return nil, errors.Load("create engine", err)
	}
	r.engine = eng
	return r, nil
}

// Close releases all runtime resources.
// All simulators must be closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	return r.engine.Close(ctx)
}

// Config returns the configuration the runtime was created with.
func (r *Runtime) Config() config.Config { return r.cfg }

// Load reads and validates a guest binary.
func (r *Runtime) Load(path string) (*loader.GuestModule, error) {
	return loader.Load(path)
}

// Parse validates an in-memory guest binary. path is used in errors only.
func (r *Runtime) Parse(path string, data []byte) (*loader.GuestModule, error) {
	return loader.Parse(path, data)
}

// Run loads the guest at path and runs it to completion.
func (r *Runtime) Run(ctx context.Context, path string, opts ...StartOption) error {
	guest, err := r.Load(path)
	if err != nil {
		return err
	}
	sim, err := r.Start(ctx, guest, opts...)
	if err != nil {
		return err
	}
	defer sim.Close(ctx)
	return sim.Run(ctx)
}
