package camera

import (
	"sync"
)

// Frame is one decoded video frame.
type Frame struct {
	Data   []byte // JPEG encoded
	Width  int
	Height int

	// Timestamp is the presentation time of the frame in seconds, the same
	// clock a video element reports as currentTime. A source may present the
	// same frame (and timestamp) more than once.
	Timestamp float64

	// Seq increases by one for every Publish on the source's mailbox.
	Seq uint64
}

// Source is anything the sampler can read the current frame from.
type Source interface {
	// Latest returns the most recent frame, or false before the first one.
	Latest() (Frame, bool)
}

// Publisher accepts frames from a producer. *Mailbox implements it.
type Publisher interface {
	Publish(f Frame)
}

// Mailbox is a single-slot, overwrite-on-publish frame holder.
// Publishers never block; readers always see the newest frame.
// Frame.Data is shared by reference and must not be modified after Publish.
type Mailbox struct {
	mu     sync.RWMutex
	latest Frame
	has    bool
	seq    uint64

	ready     chan struct{}
	readyOnce sync.Once
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{ready: make(chan struct{})}
}

// Publish replaces the current frame.
func (m *Mailbox) Publish(f Frame) {
	m.mu.Lock()
	m.seq++
	f.Seq = m.seq
	m.latest = f
	m.has = true
	m.mu.Unlock()

	m.readyOnce.Do(func() { close(m.ready) })
}

// Latest implements Source.
func (m *Mailbox) Latest() (Frame, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.has
}

// Ready is closed once the first frame has been published.
func (m *Mailbox) Ready() <-chan struct{} {
	return m.ready
}

// Published returns how many frames have been published so far.
func (m *Mailbox) Published() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seq
}
