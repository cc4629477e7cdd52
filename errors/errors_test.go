package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "slot context",
			err: &Error{
				Phase:   PhaseDispatch,
				Kind:    KindInvalidInput,
				Slot:    "vexSerialWriteBuffer",
				Address: 0x89c,
				Detail:  "bad channel",
			},
			contains: []string{"[dispatch]", "invalid_input", "vexSerialWriteBuffer", "0x89c", "bad channel"},
		},
		{
			name:     "memory fault",
			err:      MemoryFault("read", 65530, 10, 65536),
			contains: []string{"memory_fault", "0xfffa", "0x10004", "0x10000", "read"},
		},
		{
			name:     "unbound slot",
			err:      UnboundSlot(0x004, "no handler"),
			contains: []string{"unbound_slot", "0x004", "no handler"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseRuntime,
				Kind:   KindGuestTrap,
				Detail: "guest trapped",
				Cause:  errors.New("unreachable"),
			},
			contains: []string{"[runtime]", "guest_trap", "caused by", "unreachable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := GuestTrap(cause)

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
}

func TestError_Is(t *testing.T) {
	err := MemoryFault("write", 10, 20, 16)

	if !errors.Is(err, ErrMemoryFault) {
		t.Error("sentinel without phase should match by kind")
	}
	if !err.Is(&Error{Phase: PhaseDispatch, Kind: KindMemoryFault}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseLoad, Kind: KindMemoryFault}) {
		t.Error("Is should not match different phase")
	}
	if errors.Is(err, ErrSignature) {
		t.Error("Is should not match different kind")
	}

	wrapped := fmt.Errorf("host call: %w", err)
	if !errors.Is(wrapped, ErrMemoryFault) {
		t.Error("wrapped error should still match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseDispatch, KindMemoryFault).
		Slot("vexDisplayCopyRect", 0x654).
		Range(100, 8, 64).
		Value(42).
		Cause(cause).
		Detail("row %d", 3).
		Build()

	if err.Phase != PhaseDispatch || err.Kind != KindMemoryFault {
		t.Errorf("phase/kind = %v/%v", err.Phase, err.Kind)
	}
	if err.Slot != "vexDisplayCopyRect" || err.Address != 0x654 {
		t.Errorf("slot = %s@%x", err.Slot, err.Address)
	}
	if err.Offset != 100 || err.Length != 8 || err.Limit != 64 {
		t.Errorf("range = %d+%d/%d", err.Offset, err.Length, err.Limit)
	}
	if err.Detail != "row 3" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v", err.Value)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not wrapped")
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		err   error
		fatal bool
	}{
		{nil, false},
		{errors.New("plain"), false},
		{Structural("no memory"), true},
		{Signature("zero"), true},
		{MemoryFault("read", 0, 1, 0), true},
		{UnboundSlot(4, ""), true},
		{GuestTrap(errors.New("unreachable")), true},
		{Exit(0), false},
		{Terminated(nil), false},
		{fmt.Errorf("wrapped: %w", MemoryFault("read", 0, 1, 0)), true},
	}
	for _, tt := range tests {
		if got := IsFatal(tt.err); got != tt.fatal {
			t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.fatal)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{nil, 0},
		{Exit(0), 0},
		{Exit(3), 1},
		{Terminated(nil), 130},
		{Signature("zero"), 1},
		{errors.New("plain"), 1},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.code {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.code)
		}
	}
}

func TestMissingImportsError(t *testing.T) {
	err := NewMissingImportsError([]string{"env#sim_abort", "env#sim_log", "other#f"})

	if len(err.Imports) != 3 {
		t.Fatalf("got %d imports", len(err.Imports))
	}
	if err.Imports[0].Module != "env" || err.Imports[0].Name != "sim_abort" {
		t.Errorf("Imports[0] = %+v", err.Imports[0])
	}

	msg := err.Error()
	for _, s := range []string{"missing 3 host function(s)", "env:", "sim_log", "other:"} {
		if !strings.Contains(msg, s) {
			t.Errorf("message %q missing %q", msg, s)
		}
	}

	if !errors.Is(err, ErrStructural) {
		t.Error("missing imports should match ErrStructural")
	}
	if !errors.Is(err, &MissingImportsError{}) {
		t.Error("missing imports should match its own type")
	}
	if !IsFatal(Wrap(PhaseValidate, KindStructural, err, "link")) {
		t.Error("wrapped missing imports should be fatal")
	}
}
