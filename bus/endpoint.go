// Package bus implements the local endpoint of spec §4.4: the
// register/unregister/trigger/wait_for surface a Module process uses
// to talk to its peers over the dispatcher's rings.
//
// Ported from
// _examples/original_source/server/src/bus/bus.py:Bus, generalized
// per spec §4.4 and composed with this module's own internal/worker
// (reconstructed from the teacher's worker.Worker call sites) for its
// listener goroutine; per-message callback tasks run as plain,
// untracked goroutines.
package bus

import (
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/mc-fleet/corebus/dispatcher"
	"github.com/mc-fleet/corebus/wire/catalog"
	"github.com/mc-fleet/corebus/wire/codec"
	"github.com/mc-fleet/corebus/wire/value"

	"github.com/mc-fleet/corebus/internal/worker"
)

// Callback is a registered event handler. args holds the event's
// declared arguments by name, already decoded into Go values; the
// returned value (if non-nil and the event declares a non-"None"
// return type) becomes the payload of the synthesized response event.
type Callback func(args map[string]interface{}) (interface{}, error)

type subscription struct {
	sig Signature
	cb  Callback
}

// DefaultTriggerTimeout is the default timeout Trigger waits for a
// response event (spec §4.4).
const DefaultTriggerTimeout = 5 * time.Second

// Endpoint is a process-local bus peer: the "Bus" of spec §4.4.
type Endpoint struct {
	worker.Worker

	id             uint8
	key            string
	writeRing      ringWriter
	readRing       ringReader
	maxFrameLength int

	cat *catalog.Catalog
	log *logging.Logger
	met *Metrics

	subMu       sync.Mutex
	subscribers map[uint32][]subscription

	startMu   sync.Mutex
	listening bool
}

// ringWriter/ringReader narrow *ring.Ring to what Endpoint needs,
// primarily so tests can substitute a fake.
type ringWriter interface {
	TryWriteAll(frames []string) error
}

type ringReader interface {
	PopFront() (string, bool)
}

// New builds an Endpoint bound to the rings and id described by
// handle.
func New(handle *dispatcher.EndpointHandle, cat *catalog.Catalog, log *logging.Logger, met *Metrics) *Endpoint {
	return &Endpoint{
		id:             handle.ID,
		key:            handle.Key,
		writeRing:      handle.WriteRing,
		readRing:       handle.ReadRing,
		maxFrameLength: handle.MaxFrameLength,
		cat:            cat,
		log:            log,
		met:            met,
		subscribers:    map[uint32][]subscription{},
	}
}

// ID returns this endpoint's assigned 8-bit bus id.
func (e *Endpoint) ID() uint8 { return e.id }

func (e *Endpoint) checkSignature(event *catalog.Event, sig Signature) error {
	if len(sig.Args) != len(event.Args) {
		return &ErrSignatureMismatch{Msg: fmt.Sprintf(
			"callback for event %s declares %d argument(s), event has %d", event.Name, len(sig.Args), len(event.Args))}
	}
	for _, want := range event.Args {
		got, ok := sig.arg(want.Name)
		if !ok {
			return &ErrSignatureMismatch{Msg: fmt.Sprintf(
				"callback for event %s is missing argument %q", event.Name, want.Name)}
		}
		if !TypesEqual(got.Type, want.Type) {
			return &ErrSignatureMismatch{Msg: fmt.Sprintf(
				"callback for event %s has argument %q with wrong type (expected %s, got %s)",
				event.Name, want.Name, want.Type, got.Type)}
		}
	}
	wantReturn := event.ReturnType
	if wantReturn == "" {
		wantReturn = "None"
	}
	gotReturn := sig.Return
	if gotReturn == "" {
		gotReturn = "None"
	}
	if !TypesEqual(gotReturn, wantReturn) {
		return &ErrSignatureMismatch{Msg: fmt.Sprintf(
			"callback for event %s should return %s (got %s)", event.Name, wantReturn, gotReturn)}
	}
	return nil
}

// Register subscribes cb to event, after validating sig against the
// event's declared arguments and return type (spec §4.4).
func (e *Endpoint) Register(event *catalog.Event, sig Signature, cb Callback) error {
	if err := e.checkSignature(event, sig); err != nil {
		return err
	}
	e.registerRaw(event, sig, cb)
	e.log.Debugf("subscribed to event %s", event.Name)
	return nil
}

func (e *Endpoint) registerRaw(event *catalog.Event, sig Signature, cb Callback) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subscribers[event.ID] = append(e.subscribers[event.ID], subscription{sig: sig, cb: cb})
}

// Unregister removes the first subscription registered for event
// whose callback is identical (by function pointer) to cb. It is a
// no-op, logged as a warning, if none is found (spec §4.4/§7).
func (e *Endpoint) Unregister(event *catalog.Event, cb Callback) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	subs := e.subscribers[event.ID]
	for i, s := range subs {
		if sameCallback(s.cb, cb) {
			e.subscribers[event.ID] = append(subs[:i], subs[i+1:]...)
			e.log.Debugf("unsubscribed from event %s", event.Name)
			return
		}
	}
	e.log.Warningf("callback not found for event %s, nothing to unregister", event.Name)
}

// Subscribers returns the number of callbacks currently registered
// for event.ID, for tests and introspection.
func (e *Endpoint) Subscribers(eventID uint32) int {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	return len(e.subscribers[eventID])
}

func (e *Endpoint) send(event *catalog.Event, targetID uint8, kwargs map[string]interface{}) error {
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	if ts, ok := event.Arg("timestamp"); ok && ts.Type == "datetime" {
		if _, supplied := kwargs["timestamp"]; !supplied {
			kwargs["timestamp"] = time.Now()
		}
	}

	payload, err := codec.EncodePayload(event, kwargs)
	if err != nil {
		return err
	}

	maxInnerLen := e.maxFrameLength - codec.PrefixLength
	fragments, err := codec.Fragment(payload, maxInnerLen)
	if err != nil {
		return err
	}

	messageID := uint8(rand.Intn(256))
	frames := make([]string, len(fragments))
	for i, frag := range fragments {
		prefix := codec.Prefix{
			SourceID:      e.id,
			TargetID:      targetID,
			FragmentIndex: uint8(i),
			FragmentCount: uint8(len(fragments)),
			MessageID:     messageID,
		}
		frames[i] = codec.JoinFrame(prefix, frag)
	}

	if err := e.writeRing.TryWriteAll(frames); err != nil {
		return err
	}
	return nil
}

// Trigger encodes event with kwargs and broadcasts it to every peer
// (spec §4.4: trigger always addresses target_id 0; only the
// synthesized response frame is unicast back). If event declares a
// non-"None" return type, Trigger waits up to timeout for the first
// response and returns its "result" value; a timeout of 0 uses
// DefaultTriggerTimeout, and a negative timeout (e.g. -1) is passed to
// WaitFor unchanged and waits forever.
func (e *Endpoint) Trigger(event *catalog.Event, kwargs map[string]interface{}, timeout time.Duration) (interface{}, error) {
	if timeout == 0 {
		timeout = DefaultTriggerTimeout
	}
	if err := e.send(event, 0, kwargs); err != nil {
		return nil, err
	}
	if event.ReturnType == "" || event.ReturnType == "None" {
		return nil, nil
	}
	responseEvent, err := event.ReturnEvent()
	if err != nil {
		return nil, err
	}
	result, err := e.WaitFor(responseEvent, timeout)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result["result"], nil
}

// WaitFor registers a one-shot listener for event and blocks until it
// fires or timeout elapses (timeout<=0 means wait forever), always
// unregistering the listener before returning (spec §4.4).
func (e *Endpoint) WaitFor(event *catalog.Event, timeout time.Duration) (map[string]interface{}, error) {
	resultCh := make(chan map[string]interface{}, 1)
	cb := func(args map[string]interface{}) (interface{}, error) {
		select {
		case resultCh <- args:
		default:
		}
		return nil, nil
	}
	sig := Signature{Return: "None"}
	for _, a := range event.Args {
		sig.Args = append(sig.Args, RegisteredArg{Name: a.Name, Type: a.Type})
	}
	e.registerRaw(event, sig, cb)
	defer e.Unregister(event, cb)

	if timeout <= 0 {
		select {
		case result := <-resultCh:
			return result, nil
		case <-e.HaltCh():
			return nil, nil
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-resultCh:
		return result, nil
	case <-timer.C:
		e.log.Warningf("timeout while waiting for event %s, returning nil", event.Name)
		return nil, nil
	case <-e.HaltCh():
		return nil, nil
	}
}

// Start launches the listener goroutine. Calling Start while already
// listening logs a warning and is a no-op (spec §4.4's state
// machine).
func (e *Endpoint) Start() {
	e.startMu.Lock()
	defer e.startMu.Unlock()
	if e.listening {
		e.log.Warning("endpoint is already listening")
		return
	}
	e.listening = true
	e.log.Info("bus endpoint starting")
	e.Go(e.listen)
}

// Stop requests the listener goroutine to exit and blocks until it
// has (spec §4.4's state machine). It does not wait for any
// in-flight callback dispatch tasks spawned by listen — those run
// detached and are never cancelled (spec.md: "stop() clears the
// listening flag; the listener completes its current iteration and
// exits. Worker tasks already spawned for callbacks are not
// cancelled"). Calling Stop while not listening logs a warning and
// is a no-op.
func (e *Endpoint) Stop() {
	e.startMu.Lock()
	defer e.startMu.Unlock()
	if !e.listening {
		e.log.Warning("endpoint is not listening")
		return
	}
	e.Halt()
	e.listening = false
	e.log.Info("bus endpoint stopped")
}

func (e *Endpoint) listen() {
	e.log.Info("bus listener started")
	reassembler := codec.NewReassembler()
	for {
		select {
		case <-e.HaltCh():
			e.log.Info("bus listener stopped")
			return
		default:
		}

		raw, ok := e.readRing.PopFront()
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if e.met != nil {
			e.met.FramesReceivedTotal.Inc()
		}

		prefix, payload, err := codec.SplitFrame(raw)
		if err != nil {
			e.log.Errorf("dropping malformed frame: %s", err)
			e.dropped("malformed_frame")
			continue
		}
		if prefix.TargetID != 0 && prefix.TargetID != e.id {
			e.log.Errorf("received a frame not addressed to this endpoint (target=%#x, self=%#x), dropping", prefix.TargetID, e.id)
			e.dropped("misaddressed")
			continue
		}

		complete, done, err := reassembler.Add(prefix, payload)
		if err != nil {
			e.log.Errorf("%s", err)
			e.dropped("fragment_error")
			continue
		}
		if !done {
			continue
		}

		event, args, err := codec.DecodePayload(complete, e.cat)
		if err != nil {
			e.log.Errorf("dropping undecodable message: %s", err)
			e.dropped("decode_error")
			continue
		}

		// Fire-and-forget, matching bus.py's __read_incoming spawning a
		// daemon thread per message: Stop must not block on in-flight
		// callbacks (spec.md: "Worker tasks already spawned for
		// callbacks are not cancelled; callers must make them
		// idempotent with respect to stop"), so this is a plain
		// goroutine rather than e.Go, which e.Halt would wait on.
		go e.dispatch(event, prefix.SourceID, args)
	}
}

func (e *Endpoint) dropped(reason string) {
	if e.met != nil {
		e.met.FramesDroppedTotal.WithLabelValues(reason).Inc()
	}
}

// dispatch runs event's subscribers, in registration order, inside a
// single worker goroutine per received message (mirroring
// bus.py:__exec_callback, which loops subscribers sequentially within
// the one thread spawned per message). The first subscriber to return
// a non-nil result (when the event has a return type) triggers the
// unicast response; later subscribers are skipped (spec §4.4 step 5,
// §8 property 8).
func (e *Endpoint) dispatch(event *catalog.Event, sourceID uint8, args map[string]interface{}) {
	e.subMu.Lock()
	subs := make([]subscription, len(e.subscribers[event.ID]))
	copy(subs, e.subscribers[event.ID])
	e.subMu.Unlock()

	if len(subs) == 0 {
		e.log.Debugf("no subscribers for event %s, skipping", event.Name)
		return
	}

	hasReturn := event.ReturnType != "" && event.ReturnType != "None"
	for _, sub := range subs {
		result, err := e.runCallback(event, sub, args)
		if err != nil {
			if e.met != nil {
				e.met.CallbackErrorsTotal.Inc()
			}
			continue
		}
		if hasReturn && result != nil {
			responseEvent, rerr := event.ReturnEvent()
			if rerr != nil {
				e.log.Errorf("event %s claims a return type but has none: %s", event.Name, rerr)
				break
			}
			if serr := e.send(responseEvent, sourceID, map[string]interface{}{"result": result}); serr != nil {
				e.log.Errorf("failed to send response for event %s: %s", event.Name, serr)
			} else if e.met != nil {
				e.met.ResponsesSentTotal.Inc()
			}
			break
		}
	}
}

func (e *Endpoint) runCallback(event *catalog.Event, sub subscription, args map[string]interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("callback for event %s panicked: %v\n%s", event.Name, r, debug.Stack())
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	result, err = sub.cb(args)
	if err != nil {
		e.log.Errorf("callback for event %s returned an error: %s", event.Name, err)
	}
	return result, err
}

func sameCallback(a, b Callback) bool {
	return fmt.Sprintf("%p", a) == fmt.Sprintf("%p", b)
}

// GuessAnyType exposes value.GuessType for callers building "Any"-typed
// arguments by hand, so they can pre-validate what wire type their
// value will be tagged with.
func GuessAnyType(v interface{}) string { return value.GuessType(v) }
