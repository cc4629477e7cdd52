package engine

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/brainsim/errors"
)

// trapInvalidTableAccess is the wazero runtime message for a call_indirect
// through a null or out-of-range table entry. Unbound words reach the null
// entry only in a compact layout; otherwise their trap stub reports the
// address.
const trapInvalidTableAccess = "invalid table access"

// classify maps a guest call error to the simulator taxonomy. Errors raised
// by slot handlers pass through unchanged; anything else from the guest is
// a trap. The original error stays reachable through Unwrap.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var exitErr *sys.ExitError
	if stderrors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case sys.ExitCodeContextCanceled, sys.ExitCodeDeadlineExceeded:
			return errors.Terminated(ctx.Err())
		}
		return errors.Exit(exitErr.ExitCode())
	}

	var e *errors.Error
	if stderrors.As(err, &e) {
		return e
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Terminated(ctxErr)
	}

	if strings.Contains(err.Error(), trapInvalidTableAccess) {
		return errors.New(errors.PhaseDispatch, errors.KindUnboundSlot).
			Detail("call through an unbound jump table entry").
			Cause(err).
			Build()
	}
	return errors.GuestTrap(err)
}
