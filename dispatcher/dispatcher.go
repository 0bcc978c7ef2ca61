// Package dispatcher implements the shared-memory star topology of
// spec §4.5: it owns one (write_ring, read_ring) pair per registered
// endpoint and forwards frames between them according to their
// prefix's target_id.
//
// Grounded on
// _examples/original_source/server/src/bus/bus_dispatcher.py:BusDispatcher,
// generalized from that original's unconditional copy-to-every-peer
// loop to the addressed broadcast/unicast forwarding spec §4.5
// requires, and composed with this module's internal/worker
// (reconstructed from the teacher's worker.Worker call sites) for its
// mainloop goroutine.
package dispatcher

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/mc-fleet/corebus/internal/worker"
	"github.com/mc-fleet/corebus/ring"
	"github.com/mc-fleet/corebus/wire/codec"
)

// DefaultMemorySize and DefaultMaxFrameLength mirror spec §6's
// configuration defaults.
const (
	DefaultMemorySize     = 8
	DefaultMaxFrameLength = 8192
)

// ErrKeyInUse is returned by GetBusData when the dispatcher cannot
// allocate a fresh endpoint_id (spec §4.5: "must not collide; the
// dispatcher retries on collision" — surfaced only if every id in
// [1,255] is already taken).
type ErrKeyInUse struct{ Key string }

func (e *ErrKeyInUse) Error() string {
	return fmt.Sprintf("dispatcher: no free endpoint id available for key %q", e.Key)
}

// ErrUnknownKey is returned by Release for a key with no allocated
// rings.
type ErrUnknownKey struct{ Key string }

func (e *ErrUnknownKey) Error() string {
	return fmt.Sprintf("dispatcher: no endpoint registered for key %q", e.Key)
}

type registration struct {
	id        uint8
	key       string
	writeRing *ring.Ring
	readRing  *ring.Ring
}

// Dispatcher owns every endpoint's ring pair and forwards frames
// between them. Its own mainloop is the sole writer of peer read
// rings and the sole compactor of peer write rings, matching spec
// §5's "the dispatcher takes the opposite lock when it crosses a
// ring".
type Dispatcher struct {
	worker.Worker

	mu             sync.Mutex
	byKey          map[string]*registration
	order          []*registration
	memorySize     int
	maxFrameLength int

	log *logging.Logger
	met *Metrics

	runMu   sync.Mutex
	running bool
}

// New builds a Dispatcher. memorySize and maxFrameLength are spec
// §6's `memory_size`/`max_frame_length` knobs; zero values fall back
// to their documented defaults.
func New(memorySize, maxFrameLength int, log *logging.Logger, met *Metrics) *Dispatcher {
	if memorySize <= 0 {
		memorySize = DefaultMemorySize
	}
	if maxFrameLength <= 0 {
		maxFrameLength = DefaultMaxFrameLength
	}
	return &Dispatcher{
		byKey:          map[string]*registration{},
		memorySize:     memorySize,
		maxFrameLength: maxFrameLength,
		log:            log,
		met:            met,
	}
}

// GetBusData allocates (or returns the existing) ring pair for key,
// assigning a random endpoint_id in [1,255] that does not collide
// with any currently-registered endpoint (spec §4.5).
func (d *Dispatcher) GetBusData(key string) (*EndpointHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if reg, ok := d.byKey[key]; ok {
		return d.handleFor(reg), nil
	}

	id, err := d.allocateID()
	if err != nil {
		return nil, err
	}

	reg := &registration{
		id:        id,
		key:       key,
		writeRing: ring.New(d.memorySize, d.maxFrameLength),
		readRing:  ring.New(d.memorySize, d.maxFrameLength),
	}
	d.byKey[key] = reg
	d.order = append(d.order, reg)
	if d.met != nil {
		d.met.EndpointsRegistered.Set(float64(len(d.order)))
	}
	d.log.Infof("allocated endpoint id %#x for key %q", id, key)
	return d.handleFor(reg), nil
}

func (d *Dispatcher) handleFor(reg *registration) *EndpointHandle {
	return &EndpointHandle{
		ID:             reg.id,
		Key:            reg.key,
		WriteRing:      reg.writeRing,
		ReadRing:       reg.readRing,
		MaxFrameLength: d.maxFrameLength,
	}
}

func (d *Dispatcher) allocateID() (uint8, error) {
	taken := make(map[uint8]struct{}, len(d.order))
	for _, reg := range d.order {
		taken[reg.id] = struct{}{}
	}
	if len(taken) >= 255 {
		return 0, &ErrKeyInUse{Key: "<no ids left>"}
	}
	for {
		candidate := uint8(rand.Intn(255) + 1) // [1,255]
		if _, collide := taken[candidate]; !collide {
			return candidate, nil
		}
	}
}

// Release frees key's ring pair. Endpoints still holding a reference
// to the freed rings will simply stop being forwarded to or from
// (spec §4.5's unlink-on-stop behavior, applied per-key).
func (d *Dispatcher) Release(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	reg, ok := d.byKey[key]
	if !ok {
		return &ErrUnknownKey{Key: key}
	}
	delete(d.byKey, key)
	for i, r := range d.order {
		if r == reg {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	if d.met != nil {
		d.met.EndpointsRegistered.Set(float64(len(d.order)))
	}
	d.log.Infof("released endpoint id %#x for key %q", reg.id, key)
	return nil
}

// ReleaseAll frees every endpoint's rings, in declaration order
// (spec §4.5: "unlinks all shared memory in declaration order").
func (d *Dispatcher) ReleaseAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, reg := range d.order {
		d.log.Infof("released endpoint id %#x for key %q", reg.id, reg.key)
	}
	d.byKey = map[string]*registration{}
	d.order = nil
	if d.met != nil {
		d.met.EndpointsRegistered.Set(0)
	}
}

// Start launches the mainloop goroutine. A second Start before Stop
// logs a warning and is a no-op.
func (d *Dispatcher) Start() {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.running {
		d.log.Warning("dispatcher is already running")
		return
	}
	d.running = true
	d.log.Info("dispatcher mainloop starting")
	d.Go(d.mainloop)
}

// Stop halts the mainloop and releases every endpoint's rings (spec
// §4.5: "the loop exits when stop() is called; the dispatcher then
// unlinks all shared memory in declaration order").
func (d *Dispatcher) Stop() {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if !d.running {
		d.log.Warning("dispatcher is not running")
		return
	}
	d.Halt()
	d.running = false
	d.ReleaseAll()
	d.log.Info("dispatcher mainloop stopped")
}

func (d *Dispatcher) mainloop() {
	for {
		select {
		case <-d.HaltCh():
			return
		default:
		}
		d.forwardOnce()
		time.Sleep(2 * time.Millisecond)
	}
}

// forwardOnce runs one pass of spec §4.5's main-loop algorithm:
// for every endpoint E in insertion order, peek E's write ring's slot
// 0; if occupied, copy it to every eligible peer's read ring and then
// compact E's write ring.
func (d *Dispatcher) forwardOnce() {
	d.mu.Lock()
	endpoints := make([]*registration, len(d.order))
	copy(endpoints, d.order)
	d.mu.Unlock()

	for _, src := range endpoints {
		frame, ok := src.writeRing.PeekFront()
		if !ok {
			continue
		}
		prefix, _, err := codec.SplitFrame(frame)
		if err != nil {
			d.log.Errorf("dropping malformed frame from endpoint %#x: %s", src.id, err)
			src.writeRing.CompactFront()
			continue
		}

		for _, dst := range endpoints {
			if dst == src {
				continue
			}
			if prefix.TargetID != 0 && prefix.TargetID != dst.id {
				continue
			}
			if werr := dst.readRing.TryWrite(frame); werr != nil {
				d.log.Warningf("slot saturation forwarding to endpoint %#x (key %q), dropping frame", dst.id, dst.key)
				if d.met != nil {
					d.met.FramesDroppedSaturationTotal.WithLabelValues(dst.key).Inc()
				}
				continue
			}
			if d.met != nil {
				d.met.FramesForwardedTotal.Inc()
			}
		}

		src.writeRing.CompactFront()
	}
}
