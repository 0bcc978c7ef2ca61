// Package ring implements the fixed-size, slot-width-bounded FIFO
// described in spec §3 ("Slot ring") and §9: "a true head/tail ring
// ... without losing any semantics; the 'slot 0 always holds the next
// frame' property of the source is an implementation detail, not a
// contract." This implementation keeps the source's compact-by-shift
// behavior (so PeekFront/CompactFront observe "slot 0" exactly as
// spec §4.5's dispatcher algorithm describes) but stores slots as
// nullable strings rather than literal space-padded byte buffers: the
// "empty sentinel" of spec §6 is an observable equivalence class (is
// this slot occupied?), not a byte-for-byte requirement, and a nil
// marker avoids the ambiguity of distinguishing "padding" from a
// frame payload that legitimately ends in space characters.
package ring

import "sync"

// ErrRingFull is returned when a ring has no empty slot available for
// a write (spec §7: "Ring full on write").
type ErrRingFull struct{ Size int }

func (e *ErrRingFull) Error() string {
	return "ring: no free slot available to write data"
}

// Ring is a fixed-size ordered sequence of slots, each either empty
// or holding exactly one frame of at most MaxFrameLength bytes.
// Every Ring has exactly one write-lock-owning and one
// read-lock-owning goroutine-role (spec §5); Ring's own mutex serves
// whichever role the caller is using it for.
type Ring struct {
	mu             sync.Mutex
	slots          []*string
	maxFrameLength int
}

// New returns a Ring of size slots, each able to hold a frame of up
// to maxFrameLength bytes.
func New(size, maxFrameLength int) *Ring {
	return &Ring{slots: make([]*string, size), maxFrameLength: maxFrameLength}
}

// Size returns the number of slots in the ring.
func (r *Ring) Size() int { return len(r.slots) }

// MaxFrameLength returns the configured per-slot width.
func (r *Ring) MaxFrameLength() int { return r.maxFrameLength }

// TryWrite places frame into the first empty slot. It returns
// ErrRingFull if the ring has no empty slot.
func (r *Ring) TryWrite(frame string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeLocked(frame)
}

func (r *Ring) writeLocked(frame string) error {
	for i := range r.slots {
		if r.slots[i] == nil {
			cp := frame
			r.slots[i] = &cp
			return nil
		}
	}
	return &ErrRingFull{Size: len(r.slots)}
}

// TryWriteAll writes every frame in frames atomically: either all of
// them land in empty slots, or none do (spec §7's suggestion to
// "emit all-or-nothing atomically per message by pre-reserving
// slots").
func (r *Ring) TryWriteAll(frames []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	free := 0
	for _, s := range r.slots {
		if s == nil {
			free++
		}
	}
	if free < len(frames) {
		return &ErrRingFull{Size: len(r.slots)}
	}
	for _, f := range frames {
		if err := r.writeLocked(f); err != nil {
			// Unreachable: we just counted enough free slots.
			return err
		}
	}
	return nil
}

// PeekFront returns the content of slot 0 without removing it.
func (r *Ring) PeekFront() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[0] == nil {
		return "", false
	}
	return *r.slots[0], true
}

// CompactFront shifts every slot one position towards the front,
// clearing the last slot, unconditionally (spec §4.5's
// "__move_forward").
func (r *Ring) CompactFront() {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy(r.slots, r.slots[1:])
	r.slots[len(r.slots)-1] = nil
}

// PopFront atomically peeks and compacts slot 0 under a single lock
// acquisition, for a consumer that owns both roles for this ring
// (spec §4.4's listener loop, which both reads and compacts its own
// read ring).
func (r *Ring) PopFront() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[0] == nil {
		return "", false
	}
	val := *r.slots[0]
	copy(r.slots, r.slots[1:])
	r.slots[len(r.slots)-1] = nil
	return val, true
}

// Occupancy returns the number of filled slots, for diagnostics only
// (spec §4.5's forwarding algorithm itself only ever touches slot 0).
func (r *Ring) Occupancy() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.slots {
		if s != nil {
			n++
		}
	}
	return n
}
