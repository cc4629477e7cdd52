// Package jumptable implements the V5 SDK calling convention.
//
// A guest never imports SDK functions by name. It loads a function index
// from base+address (base is 0x037FC000 on hardware) and call_indirect's
// through its imported table. The host binds a Slot to each address it
// implements, assigns every slot a table index and writes those indices into
// guest memory. Unbound words receive an index whose table entry is null, so
// calling them traps.
//
// The Registry collects slots from the device packages. Build freezes it into
// a JumpTable, which is immutable and safe to share. A Dispatcher, one per
// guest instance, marshals arguments from the wasm value stack, resolves
// string and buffer arguments through the memory bridge, runs the handler and
// then the scheduler's yield hook.
package jumptable
