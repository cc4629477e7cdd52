// Package serial emulates the brain's USB serial channels and the C stdio
// entry points that print through them.
package serial

import "sort"

const (
	// Stdio is the channel guest stdout and stdin use.
	Stdio uint32 = 1

	// OutputCapacity bounds the bytes buffered per channel between flushes.
	OutputCapacity = 2048

	// InputCapacity bounds unread input per channel.
	InputCapacity = 4096
)

// Output is the data one channel produced since the previous flush.
type Output struct {
	Data    []byte
	Channel uint32
}

type channel struct {
	out []byte
	in  []byte
}

// Device holds the serial channel buffers. It is owned by the goroutine that
// runs the guest; external input arrives through the scheduler.
type Device struct {
	channels map[uint32]*channel
}

// Option configures a Device.
type Option func(*Device)

// WithChannels replaces the default channel set.
func WithChannels(ids ...uint32) Option {
	return func(d *Device) {
		d.channels = make(map[uint32]*channel, len(ids))
		for _, id := range ids {
			d.channels[id] = &channel{}
		}
	}
}

// New creates a device with the stdio channel.
func New(opts ...Option) *Device {
	d := &Device{channels: map[uint32]*channel{Stdio: {}}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Write appends data to the channel's output buffer and returns the number
// of bytes accepted, or -1 for an unknown channel.
func (d *Device) Write(ch uint32, data []byte) int {
	c, ok := d.channels[ch]
	if !ok {
		return -1
	}
	n := min(len(data), OutputCapacity-len(c.out))
	c.out = append(c.out, data[:n]...)
	return n
}

// Free returns the space left in the channel's output buffer, 0 for an
// unknown channel.
func (d *Device) Free(ch uint32) int {
	c, ok := d.channels[ch]
	if !ok {
		return 0
	}
	return OutputCapacity - len(c.out)
}

// Feed queues input for the guest and returns the number of bytes accepted.
func (d *Device) Feed(ch uint32, data []byte) int {
	c, ok := d.channels[ch]
	if !ok {
		return -1
	}
	n := min(len(data), InputCapacity-len(c.in))
	c.in = append(c.in, data[:n]...)
	return n
}

// Read consumes the oldest input byte, or returns -1 when none is pending.
func (d *Device) Read(ch uint32) int {
	c, ok := d.channels[ch]
	if !ok || len(c.in) == 0 {
		return -1
	}
	b := c.in[0]
	c.in = c.in[1:]
	if len(c.in) == 0 {
		c.in = nil
	}
	return int(b)
}

// Peek returns the oldest input byte without consuming it.
func (d *Device) Peek(ch uint32) int {
	c, ok := d.channels[ch]
	if !ok || len(c.in) == 0 {
		return -1
	}
	return int(c.in[0])
}

// Pending returns the number of unread input bytes.
func (d *Device) Pending(ch uint32) int {
	if c, ok := d.channels[ch]; ok {
		return len(c.in)
	}
	return 0
}

// Flush takes the buffered output of every channel, ordered by channel.
// Channels with nothing to report are skipped.
func (d *Device) Flush() []Output {
	var out []Output
	for id, c := range d.channels {
		if len(c.out) == 0 {
			continue
		}
		out = append(out, Output{Channel: id, Data: c.out})
		c.out = nil
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}
