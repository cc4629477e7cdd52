// Package engine runs V5 guests on wazero.
//
// Instantiate wires three modules into one wazero runtime:
//
//	brainsim   host module, one Go function per jump table slot
//	env        synthesized table provider: wraps the slots, owns the
//	           guest's indirect function table and re-exports host imports
//	guest      the program itself, importing env's table
//
// After instantiation the guest memory is grown to the configured size and
// the jump table words are written at the configured base. Guest calls
// return structured errors: slot failures keep their original kind, wasm
// traps through an unbound table entry become unbound-slot traps, a wasi
// style exit becomes an exit error and context cancellation becomes
// termination.
//
// An engine hosts one live instance at a time because the table provider is
// registered under the guest's import module name.
package engine
