// Package runtime is the high-level API for running V5 guest programs.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	// Load and validate a guest binary
//	guest, err := rt.Load("program.wasm")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Bind the jump table and instantiate
//	sim, err := rt.Start(ctx, guest, runtime.WithObserver(scheduler.Funcs{
//	    Serial: func(out []serial.Output) { ... },
//	}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sim.Close(ctx)
//
//	// Run until the guest exits or ctx is cancelled
//	err = sim.Run(ctx)
//	os.Exit(errors.ExitCode(err))
//
// # Driving a Simulation
//
// Run blocks the calling goroutine; guest code runs on it. Other goroutines
// control the simulation through the scheduler and the controller
// publisher:
//
//	sim.Scheduler().SetConnected(true)
//	sim.Scheduler().RequestPhase(competition.Autonomous)
//	sim.Controllers().Update(controller.Master, func(s controller.Snapshot) controller.Snapshot {
//	    return s.WithAxis(controller.LeftY, 127)
//	})
//
// # Configuration
//
// Memory layout, tick cadence, the initial competition state and timed
// matches come from config.Config. A Lua match script can be attached
// with WithScript.
package runtime
