// Package errors provides structured error types for the simulator.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries slot and memory-range context so a failed guest call can be
// traced back to the SDK entry and pointer that caused it.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDispatch, errors.KindMemoryFault).
//		Slot("vexSerialWriteBuffer", 0x89c).
//		Range(65530, 10, 65536).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Signature("magic 0x%08x", magic)
//	err := errors.MemoryFault("read", 65530, 10, 65536)
//
// Sentinels match by kind regardless of phase:
//
//	if errors.Is(err, brainerrors.ErrMemoryFault) { ... }
package errors
