package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad     Phase = "load"     // reading and decompressing the guest binary
	PhaseValidate Phase = "validate" // structural and signature checks
	PhaseBind     Phase = "bind"     // jump table construction and exposure
	PhaseDispatch Phase = "dispatch" // guest call into a jump table slot
	PhaseRuntime  Phase = "runtime"  // guest execution outside a slot
	PhaseSchedule Phase = "schedule" // competition scheduler
	PhaseSession  Phase = "session"  // external session protocol
	PhaseConfig   Phase = "config"   // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindStructural    Kind = "structural"
	KindSignature     Kind = "signature"
	KindMemoryFault   Kind = "memory_fault"
	KindUnboundSlot   Kind = "unbound_slot"
	KindGuestTrap     Kind = "guest_trap"
	KindExit          Kind = "exit"
	KindTerminated    Kind = "terminated"
	KindInvalidInput  Kind = "invalid_input"
	KindInvalidData   Kind = "invalid_data"
	KindNotFound      Kind = "not_found"
	KindRegistration  Kind = "registration"
	KindInstantiation Kind = "instantiation"
	KindMissingImport Kind = "missing_import"
	KindProtocol      Kind = "protocol"
)

// Error is the structured error type used throughout the simulator
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	Slot    string
	Detail  string
	Path    []string
	Address uint32
	Offset  uint64
	Length  uint64
	Limit   uint64
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Slot != "" {
		fmt.Fprintf(&b, " in %s (0x%03x)", e.Slot, e.Address)
	} else if e.Kind == KindUnboundSlot && e.Address != 0 {
		fmt.Fprintf(&b, " at slot 0x%03x", e.Address)
	}

	if e.Kind == KindMemoryFault {
		fmt.Fprintf(&b, ": access [0x%x, 0x%x) exceeds memory size 0x%x", e.Offset, e.Offset+e.Length, e.Limit)
		if e.Detail != "" {
			b.WriteString(" - ")
			b.WriteString(e.Detail)
		}
	} else if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches any phase of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if t.Phase == "" {
			return e.Kind == t.Kind
		}
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is checks by kind.
var (
	ErrStructural  = &Error{Kind: KindStructural}
	ErrSignature   = &Error{Kind: KindSignature}
	ErrMemoryFault = &Error{Kind: KindMemoryFault}
	ErrUnboundSlot = &Error{Kind: KindUnboundSlot}
	ErrGuestTrap   = &Error{Kind: KindGuestTrap}
	ErrExit        = &Error{Kind: KindExit}
	ErrTerminated  = &Error{Kind: KindTerminated}
)

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Slot sets the jump table slot context
func (b *Builder) Slot(name string, address uint32) *Builder {
	b.err.Slot = name
	b.err.Address = address
	return b
}

// Range sets the offending memory range and the limit it was checked against
func (b *Builder) Range(offset, length, limit uint64) *Builder {
	b.err.Offset = offset
	b.err.Length = length
	b.err.Limit = limit
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the simulator taxonomy

// Structural creates an error for a guest binary missing a required shape
func Structural(detail string, args ...any) *Error {
	return New(PhaseValidate, KindStructural).Detail(detail, args...).Build()
}

// Signature creates an error for a missing or malformed code signature
func Signature(detail string, args ...any) *Error {
	return New(PhaseValidate, KindSignature).Detail(detail, args...).Build()
}

// MemoryFault creates an error for a guest memory access outside [0, limit)
func MemoryFault(op string, offset, length uint64, limit uint32) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindMemoryFault,
		Detail: op,
		Offset: offset,
		Length: length,
		Limit:  uint64(limit),
	}
}

// UnboundSlot creates a trap for a guest call through an unbound jump table entry
func UnboundSlot(address uint32, detail string) *Error {
	return &Error{
		Phase:   PhaseDispatch,
		Kind:    KindUnboundSlot,
		Address: address,
		Detail:  detail,
	}
}

// GuestTrap wraps a wasm trap raised by guest code
func GuestTrap(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindGuestTrap,
		Detail: "guest trapped",
		Cause:  cause,
	}
}

// Exit reports a guest-requested exit with the given status
func Exit(code uint32) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindExit,
		Detail: fmt.Sprintf("guest exited with status %d", code),
		Value:  code,
	}
}

// Terminated reports execution stopped from outside the guest
func Terminated(cause error) *Error {
	return &Error{
		Phase:  PhaseSchedule,
		Kind:   KindTerminated,
		Detail: "execution terminated",
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Registration creates a jump table registration error
func Registration(name string, address uint32, detail string) *Error {
	return &Error{
		Phase:   PhaseBind,
		Kind:    KindRegistration,
		Slot:    name,
		Address: address,
		Detail:  detail,
	}
}

// Instantiation creates an instantiation error
func Instantiation(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseBind,
		Kind:   KindInstantiation,
		Detail: "instantiate " + what,
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Protocol creates a session protocol error
func Protocol(detail string, args ...any) *Error {
	return New(PhaseSession, KindProtocol).Detail(detail, args...).Build()
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// IsFatal reports whether err halts guest execution.
func IsFatal(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindStructural, KindSignature, KindMemoryFault, KindUnboundSlot, KindGuestTrap:
		return true
	}
	return false
}

// ExitCode maps a run result to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if stderrors.As(err, &e) {
		switch e.Kind {
		case KindExit:
			if code, ok := e.Value.(uint32); ok && code == 0 {
				return 0
			}
			return 1
		case KindTerminated:
			return 130
		}
	}
	return 1
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Module string // e.g., "env"
	Name   string // e.g., "sim_log_backtrace"
}

// MissingImportsError is returned when the guest imports functions no host provides
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "module#name" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		mod, name := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Module: mod,
			Name:   name,
		})
	}
	return result
}

func parseImportKey(key string) (module, name string) {
	mod, name, found := strings.Cut(key, "#")
	if found {
		return mod, name
	}
	return key, ""
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[bind] missing_import: no imports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d host function(s):\n", len(e.Imports)))

	byModule := make(map[string][]string)
	var order []string
	for _, imp := range e.Imports {
		if _, exists := byModule[imp.Module]; !exists {
			order = append(order, imp.Module)
		}
		byModule[imp.Module] = append(byModule[imp.Module], imp.Name)
	}

	for _, mod := range order {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, name := range byModule[mod] {
			b.WriteString("    - ")
			b.WriteString(name)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type.
// Unresolved imports are a structural defect of the guest.
func (e *MissingImportsError) Is(target error) bool {
	if _, ok := target.(*MissingImportsError); ok {
		return true
	}
	if t, ok := target.(*Error); ok {
		return t.Kind == KindStructural && (t.Phase == "" || t.Phase == PhaseValidate)
	}
	return false
}
