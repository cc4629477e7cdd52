// Package memory provides bounds-checked access to guest linear memory.
//
// Bridge is the only place in the simulator that turns a guest pointer into
// host bytes. Every accessor checks offset+length against the memory's
// current size, so growth between calls is always observed, and reports a
// memory fault carrying the offending range.
//
// Buffer is a plain byte-slice memory used where no engine instance exists,
// such as direct jump table invocation in tests.
package memory
