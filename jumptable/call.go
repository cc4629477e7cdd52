package jumptable

import (
	"context"
	"math"

	"github.com/wippyai/brainsim/memory"
)

// MaxString bounds Str arguments. Longer strings are truncated.
const MaxString = 4096

// Handler implements one slot. It returns the raw result bits, built with
// I32, U32, I64, F32 or F64; void slots return 0.
type Handler func(c *Call) (uint64, error)

// Call carries one guest invocation into a handler.
type Call struct {
	Ctx  context.Context
	Mem  *memory.Bridge
	Slot *Slot // nil for host imports
	Name string

	args  []uint64
	strs  map[int]string
	bufs  map[int][]byte
	yield bool
}

// NewCall builds a call for handler tests. Str and Buf arguments are not
// resolved; use Dispatcher or JumpTable.Invoke for that.
func NewCall(ctx context.Context, mem *memory.Bridge, args ...uint64) *Call {
	return &Call{Ctx: ctx, Mem: mem, args: args}
}

// NArgs returns the number of arguments.
func (c *Call) NArgs() int { return len(c.args) }

func (c *Call) Raw(i int) uint64 {
	if i >= len(c.args) {
		return 0
	}
	return c.args[i]
}

func (c *Call) Int(i int) int32      { return int32(uint32(c.Raw(i))) }
func (c *Call) Uint(i int) uint32    { return uint32(c.Raw(i)) }
func (c *Call) Long(i int) int64     { return int64(c.Raw(i)) }
func (c *Call) Float(i int) float32  { return math.Float32frombits(uint32(c.Raw(i))) }
func (c *Call) Double(i int) float64 { return math.Float64frombits(c.Raw(i)) }
func (c *Call) Ptr(i int) uint32     { return uint32(c.Raw(i)) }

// Str returns the resolved string argument i.
func (c *Call) Str(i int) string {
	if s, ok := c.strs[i]; ok {
		return s
	}
	if c.Mem == nil {
		return ""
	}
	s, _ := c.Mem.ReadCString(c.Ptr(i), MaxString)
	return s
}

// Buf returns the resolved buffer argument i. Its length came from argument i+1.
func (c *Call) Buf(i int) []byte {
	return c.bufs[i]
}

// RequestYield asks the dispatcher to run the yield hook after the handler
// returns, for slots that only sometimes hand control to the scheduler.
func (c *Call) RequestYield() {
	c.yield = true
}

func (c *Call) resolve(sig Sig) error {
	for i, kind := range sig.Args {
		switch kind {
		case Str:
			s, err := c.Mem.ReadCString(c.Ptr(i), MaxString)
			if err != nil {
				return err
			}
			if c.strs == nil {
				c.strs = make(map[int]string)
			}
			c.strs[i] = s
		case Buf:
			data, err := c.Mem.Read(c.Ptr(i), c.Uint(i+1))
			if err != nil {
				return err
			}
			if c.bufs == nil {
				c.bufs = make(map[int][]byte)
			}
			c.bufs[i] = data
		}
	}
	return nil
}
