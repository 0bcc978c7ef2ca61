package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	logging "gopkg.in/op/go-logging.v1"

	"github.com/mc-fleet/corebus/wire/catalog"
	"github.com/mc-fleet/corebus/wire/codec"
)

func testLogger() *logging.Logger {
	l := logging.MustGetLogger("bus-test")
	l.SetBackend(logging.NewLogBackend(discard{}, "", 0))
	return l
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load([]byte(`<namespace name="">
    <event name="SERVER.PING" id="0x0001">
      <args><arg name="server_name" type="str" id="0x01"/></args>
      <return type="bool"/>
    </event>
    <event name="SERVER.STARTING" id="0x0002">
      <args><arg name="server_name" type="str" id="0x01"/></args>
    </event>
  </namespace>`))
	require.NoError(t, err)
	return cat
}

// fakeRing is a minimal, unbuffered stand-in for *ring.Ring that lets
// tests feed frames straight into an Endpoint's listener without a
// real dispatcher.
type fakeRing struct {
	mu     sync.Mutex
	frames []string
}

func (f *fakeRing) TryWriteAll(frames []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frames...)
	return nil
}

func (f *fakeRing) PopFront() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return "", false
	}
	v := f.frames[0]
	f.frames = f.frames[1:]
	return v, true
}

func newTestEndpoint(t *testing.T, id uint8) (*Endpoint, *fakeRing, *fakeRing) {
	t.Helper()
	write := &fakeRing{}
	read := &fakeRing{}
	e := &Endpoint{
		id:             id,
		writeRing:      write,
		readRing:       read,
		maxFrameLength: 8192,
		cat:            testCatalog(t),
		log:            testLogger(),
		subscribers:    map[uint32][]subscription{},
	}
	return e, write, read
}

func TestRegisterRejectsWrongArgumentType(t *testing.T) {
	e, _, _ := newTestEndpoint(t, 1)
	ping, err := e.cat.LookupByName("SERVER.PING")
	require.NoError(t, err)

	err = e.Register(ping, Signature{
		Args:   []RegisteredArg{{Name: "server_name", Type: "int"}},
		Return: "bool",
	}, func(map[string]interface{}) (interface{}, error) { return true, nil })
	require.Error(t, err)
	require.Equal(t, 0, e.Subscribers(ping.ID))
}

func TestRegisterRejectsWrongReturnType(t *testing.T) {
	e, _, _ := newTestEndpoint(t, 1)
	ping, err := e.cat.LookupByName("SERVER.PING")
	require.NoError(t, err)

	err = e.Register(ping, Signature{
		Args:   []RegisteredArg{{Name: "server_name", Type: "str"}},
		Return: "int",
	}, func(map[string]interface{}) (interface{}, error) { return true, nil })
	require.Error(t, err)
}

func TestRegisterAcceptsMatchingSignature(t *testing.T) {
	e, _, _ := newTestEndpoint(t, 1)
	ping, err := e.cat.LookupByName("SERVER.PING")
	require.NoError(t, err)

	err = e.Register(ping, Signature{
		Args:   []RegisteredArg{{Name: "server_name", Type: "str"}},
		Return: "bool",
	}, func(map[string]interface{}) (interface{}, error) { return true, nil })
	require.NoError(t, err)
	require.Equal(t, 1, e.Subscribers(ping.ID))
}

func TestUnregisterRemovesExactCallback(t *testing.T) {
	e, _, _ := newTestEndpoint(t, 1)
	ping, err := e.cat.LookupByName("SERVER.PING")
	require.NoError(t, err)

	cb := func(map[string]interface{}) (interface{}, error) { return true, nil }
	require.NoError(t, e.Register(ping, Signature{
		Args:   []RegisteredArg{{Name: "server_name", Type: "str"}},
		Return: "bool",
	}, cb))

	e.Unregister(ping, cb)
	require.Equal(t, 0, e.Subscribers(ping.ID))
}

func TestTriggerWithoutReturnTypeDoesNotBlock(t *testing.T) {
	e, write, _ := newTestEndpoint(t, 1)
	starting, err := e.cat.LookupByName("SERVER.STARTING")
	require.NoError(t, err)

	result, err := e.Trigger(starting, map[string]interface{}{"server_name": "survival-1"}, 0)
	require.NoError(t, err)
	require.Nil(t, result)
	require.Len(t, write.frames, 1)
}

func TestDispatchSendsResponseToOriginatingSource(t *testing.T) {
	e, write, read := newTestEndpoint(t, 2)
	ping, err := e.cat.LookupByName("SERVER.PING")
	require.NoError(t, err)

	var gotArg string
	require.NoError(t, e.Register(ping, Signature{
		Args:   []RegisteredArg{{Name: "server_name", Type: "str"}},
		Return: "bool",
	}, func(args map[string]interface{}) (interface{}, error) {
		gotArg = args["server_name"].(string)
		return true, nil
	}))

	e.Start()
	defer e.Stop()

	// Simulate the dispatcher delivering a broadcast PING from
	// endpoint 7 into this endpoint's read ring.
	remote := &Endpoint{id: 7, writeRing: read, cat: e.cat, log: testLogger(), maxFrameLength: 8192}
	require.NoError(t, remote.send(ping, 0, map[string]interface{}{"server_name": "survival-1"}))

	require.Eventually(t, func() bool {
		return len(write.frames) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "survival-1", gotArg)

	write.mu.Lock()
	response := write.frames[0]
	write.mu.Unlock()
	prefix, _, err := codec.SplitFrame(response)
	require.NoError(t, err)
	require.Equal(t, uint8(7), prefix.TargetID)
}

func TestWaitForTimesOutAndUnregisters(t *testing.T) {
	e, _, _ := newTestEndpoint(t, 1)
	e.Start()
	defer e.Stop()

	starting, err := e.cat.LookupByName("SERVER.STARTING")
	require.NoError(t, err)

	result, err := e.WaitFor(starting, 20*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, result)
	require.Equal(t, 0, e.Subscribers(starting.ID))
}

func TestStartIsIdempotent(t *testing.T) {
	e, _, _ := newTestEndpoint(t, 1)
	e.Start()
	e.Start() // logs a warning, does not panic or spawn a second listener
	e.Stop()
}

func TestStopWithoutStartIsANoop(t *testing.T) {
	e, _, _ := newTestEndpoint(t, 1)
	e.Stop()
}
