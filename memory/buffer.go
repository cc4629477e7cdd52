package memory

import "github.com/wippyai/brainsim"

// PageSize is the wasm page size in bytes.
const PageSize = 65536

// Buffer is a host-allocated linear memory.
type Buffer struct {
	data     []byte
	maxPages uint32
}

var (
	_ brainsim.Memory = (*Buffer)(nil)
	_ brainsim.Grower = (*Buffer)(nil)
)

// NewBuffer allocates size zeroed bytes. Grow is limited to maxPages; zero
// means the 4 GiB address space limit.
func NewBuffer(size uint32, maxPages uint32) *Buffer {
	if maxPages == 0 {
		maxPages = 65536
	}
	return &Buffer{data: make([]byte, size), maxPages: maxPages}
}

func (m *Buffer) Size() uint32 { return uint32(len(m.data)) }

// Bytes returns the backing slice.
func (m *Buffer) Bytes() []byte { return m.data }

func (m *Buffer) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(m.data)) {
		return nil, false
	}
	return m.data[offset:end:end], true
}

func (m *Buffer) Write(offset uint32, v []byte) bool {
	end := uint64(offset) + uint64(len(v))
	if end > uint64(len(m.data)) {
		return false
	}
	copy(m.data[offset:], v)
	return true
}

// Grow extends the buffer by whole pages.
func (m *Buffer) Grow(deltaPages uint32) (uint32, bool) {
	prev := uint32(len(m.data) / PageSize)
	if uint64(prev)+uint64(deltaPages) > uint64(m.maxPages) {
		return prev, false
	}
	m.data = append(m.data, make([]byte, int(deltaPages)*PageSize)...)
	return prev, true
}
