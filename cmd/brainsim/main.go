// Command brainsim runs a V5 guest program in the simulator.
//
// Usage:
//
//	brainsim [flags] <program.wasm>
//
// Exit status is 0 when the guest exits cleanly, 130 when it is
// interrupted and 1 for load failures and guest faults.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/brainsim/config"
	"github.com/wippyai/brainsim/errors"
	"github.com/wippyai/brainsim/runtime"
	"github.com/wippyai/brainsim/sdk/controller"
	"github.com/wippyai/brainsim/session"
)

type options struct {
	configPath  string
	logLevel    string
	session     bool
	interactive bool
	window      bool
	framesDir   string
	frameEvery  int
	scriptPath  string
	watch       bool
	connected   bool
	phase       string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.session, "session", false, "Speak the JSON lines session protocol on stdin/stdout")
	flag.BoolVar(&opts.interactive, "i", false, "Interactive mode with TUI")
	flag.BoolVar(&opts.window, "window", false, "Show the display in a window")
	flag.StringVar(&opts.framesDir, "frames", "", "Write display frames as PNG files to this directory")
	flag.IntVar(&opts.frameEvery, "frame-every", 1, "Write every n-th frame")
	flag.StringVar(&opts.scriptPath, "script", "", "Lua match script")
	flag.BoolVar(&opts.watch, "watch", false, "Restart the program when the binary changes")
	flag.BoolVar(&opts.connected, "connected", false, "Start with field control connected")
	flag.StringVar(&opts.phase, "phase", "", "Initial competition phase (disabled, autonomous, opcontrol)")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: brainsim [flags] <program.wasm>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	os.Exit(run(opts, set, flag.Arg(0)))
}

func run(opts options, set map[string]bool, path string) int {
	if err := opts.check(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	cfg, err := loadConfig(opts, set)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var tuiLog *logBuffer
	if opts.interactive {
		tuiLog = newLogBuffer(logBufferLines)
	}
	logger, err := newLogger(cfg.Log, tuiLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer logger.Sync()
	setLoggers(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := runtime.New(ctx, cfg, runtime.WithLogger(logger.Named("runtime")))
	if err != nil {
		logger.Error("create runtime", zap.Error(err))
		return 1
	}
	defer rt.Close(context.Background())

	app := &app{
		rt:     rt,
		cfg:    cfg,
		opts:   opts,
		path:   path,
		logger: logger,
		tuiLog: tuiLog,
	}
	if opts.watch {
		err = app.watch(ctx)
	} else {
		err = app.runOnce(ctx)
	}

	code := errors.ExitCode(err)
	switch {
	case err == nil:
	case code == 130:
		logger.Info("interrupted")
	default:
		logger.Error("brainsim failed", zap.Error(err))
	}
	return code
}

func (o options) check() error {
	fronts := 0
	for _, on := range []bool{o.session, o.interactive, o.window} {
		if on {
			fronts++
		}
	}
	if o.window && !windowSupported {
		return fmt.Errorf("-window is not available in headless builds")
	}
	if fronts > 1 {
		return fmt.Errorf("-session, -i and -window are mutually exclusive")
	}
	if o.watch && fronts > 0 {
		return fmt.Errorf("-watch cannot be combined with -session, -i or -window")
	}
	if o.frameEvery < 1 {
		return fmt.Errorf("-frame-every must be at least 1")
	}
	return nil
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(opts options, set map[string]bool) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return cfg, err
		}
	}
	if set["log-level"] {
		cfg.Log.Level = opts.logLevel
	}
	if set["connected"] {
		cfg.Competition.Connected = opts.connected
	}
	if set["phase"] {
		cfg.Competition.Phase = opts.phase
		if opts.phase != "" {
			cfg.Competition.Connected = true
		}
	}
	if opts.session {
		cfg.Session.Enabled = true
	}
	if cfg.Session.Enabled || opts.interactive {
		cfg.Serial.Echo = false
	}
	return cfg, cfg.Validate()
}

// app runs one program with the frontends selected on the command line.
type app struct {
	rt     *runtime.Runtime
	cfg    config.Config
	opts   options
	path   string
	logger *zap.Logger
	tuiLog *logBuffer
}

func (a *app) runOnce(ctx context.Context) error {
	guest, err := a.rt.Load(a.path)
	if err != nil {
		return err
	}

	pub := controller.NewPublisher()
	startOpts := []runtime.StartOption{runtime.WithControllers(pub)}
	if a.opts.scriptPath != "" {
		startOpts = append(startOpts, runtime.WithScript(a.opts.scriptPath))
	}

	// Observers are registered before Start; their goroutines are started
	// once the simulator exists so that a failed start leaves none behind.
	var workers []func() error

	if a.cfg.Serial.Echo {
		echo := newEcho(os.Stdout)
		startOpts = append(startOpts, runtime.WithObserver(echo.observer()))
		workers = append(workers, echo.run)
	}
	if a.opts.framesDir != "" {
		exp, err := newFrameExporter(a.opts.framesDir, a.opts.frameEvery, a.cfg.Display.Header)
		if err != nil {
			return err
		}
		startOpts = append(startOpts, runtime.WithObserver(exp.observer()))
		workers = append(workers, exp.run)
	}

	var sess *session.Session
	if a.cfg.Session.Enabled {
		sess = session.New(os.Stdin, os.Stdout,
			session.WithControllers(pub),
			session.WithDigest(guest.DigestHex()),
			session.WithLogger(a.logger.Named("session")))
		startOpts = append(startOpts, runtime.WithObserver(sess))
	}

	var ui *tui
	if a.opts.interactive {
		ui = newTUI(a.path, pub, a.tuiLog)
		startOpts = append(startOpts, runtime.WithObserver(ui.observer()))
	}

	var win *window
	if a.opts.window {
		win = newWindow(pub, a.cfg.Display.Header, a.logger.Named("window"))
		startOpts = append(startOpts, runtime.WithObserver(win.observer()))
	}

	g, gctx := errgroup.WithContext(ctx)
	sim, err := a.rt.Start(gctx, guest, startOpts...)
	if err != nil {
		return err
	}
	defer sim.Close(context.Background())

	for _, w := range workers {
		g.Go(w)
	}
	if sess != nil {
		g.Go(func() error { return sess.Run(gctx, sim.Scheduler()) })
	}
	if ui != nil {
		g.Go(func() error { return ui.run(gctx, sim) })
	}

	var runErr error
	g.Go(func() error {
		runErr = sim.Run(gctx)
		return nil
	})

	var winErr error
	if win != nil {
		// ebiten needs the main goroutine.
		winErr = win.run(gctx, sim)
		sim.Terminate()
	}

	waitErr := g.Wait()
	switch {
	case waitErr != nil && (runErr == nil || ctx.Err() == nil && stderrors.Is(runErr, errors.ErrTerminated)):
		// A failed frontend stopped the guest.
		return waitErr
	case runErr == nil:
		return winErr
	}
	return runErr
}
