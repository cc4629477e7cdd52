package brainsim

// Memory is the guest linear memory as seen by the host. Offsets are byte
// offsets from the start of memory; the boolean results report whether the
// whole range was in bounds. wazero's api.Memory satisfies it.
type Memory interface {
	Size() uint32
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
}

// Grower is implemented by memories that can grow by whole pages.
type Grower interface {
	Grow(deltaPages uint32) (previousPages uint32, ok bool)
}
