// Package brainsim emulates the firmware of a VEX V5 robot brain for
// WebAssembly guest programs.
//
// Guests built with the V5 SDK do not import host functions by name. They
// read a function index from a fixed word of their own memory (the jump
// table at 0x037FC000) and call_indirect through the table they import.
// brainsim fills that table and those words at load time, then runs the
// guest under a competition scheduler with emulated devices.
//
// # Architecture Overview
//
//	brainsim/            Root package with the Memory interface
//	├── runtime/         High-level API: load a program, start a simulator
//	├── loader/          Guest validation and code signature parsing
//	├── wasm/            Core WASM binary parsing and encoding
//	├── memory/          Bounds-checked guest memory bridge
//	├── jumptable/       Slot registry and argument marshalling
//	├── engine/          wazero integration and trap classification
//	├── sdk/             Device emulators bound to jump table slots
//	├── scheduler/       Competition phases, ticks and yield points
//	├── session/         JSON-lines control protocol
//	├── script/          Lua match scripts
//	├── config/          YAML configuration
//	└── errors/          Structured error types
//
// # Quick Start
//
//	rt, err := runtime.New(ctx, config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	guest, err := rt.Load("program.wasm")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sim, err := rt.Start(ctx, guest)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sim.Close(ctx)
//
//	err = sim.Run(ctx)
//	os.Exit(errors.ExitCode(err))
//
// # Execution Model
//
// A single goroutine runs the guest, slot handlers and scheduler ticks.
// Ticks happen at yield points: slots such as vexTasksRun and
// vexSystemTimeGet hand control to the scheduler before returning to the
// guest. External input enters only through the controller publisher and the
// scheduler command queue.
package brainsim
