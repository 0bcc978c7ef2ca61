package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	logging "gopkg.in/op/go-logging.v1"

	"github.com/mc-fleet/corebus/wire/codec"
)

func testLogger() *logging.Logger {
	l := logging.MustGetLogger("dispatcher-test")
	l.SetBackend(logging.NewLogBackend(discard{}, "", 0))
	return l
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestGetBusDataAllocatesDistinctIDs(t *testing.T) {
	d := New(4, 256, testLogger(), nil)
	a, err := d.GetBusData("alpha")
	require.NoError(t, err)
	b, err := d.GetBusData("beta")
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
	require.NotZero(t, a.ID)
	require.NotZero(t, b.ID)
}

func TestGetBusDataIsIdempotentPerKey(t *testing.T) {
	d := New(4, 256, testLogger(), nil)
	a1, err := d.GetBusData("alpha")
	require.NoError(t, err)
	a2, err := d.GetBusData("alpha")
	require.NoError(t, err)
	require.Equal(t, a1.ID, a2.ID)
	require.Same(t, a1.WriteRing, a2.WriteRing)
}

func TestReleaseRemovesEndpoint(t *testing.T) {
	d := New(4, 256, testLogger(), nil)
	_, err := d.GetBusData("alpha")
	require.NoError(t, err)
	require.NoError(t, d.Release("alpha"))
	err = d.Release("alpha")
	require.Error(t, err)
}

func TestForwardOnceBroadcastsToAllButSource(t *testing.T) {
	d := New(4, 256, testLogger(), nil)
	a, err := d.GetBusData("alpha")
	require.NoError(t, err)
	b, err := d.GetBusData("beta")
	require.NoError(t, err)
	c, err := d.GetBusData("gamma")
	require.NoError(t, err)

	prefix := codec.Prefix{SourceID: a.ID, TargetID: 0, FragmentCount: 1, MessageID: 1}
	frame := codec.JoinFrame(prefix, "hello")
	require.NoError(t, a.WriteRing.TryWrite(frame))

	d.forwardOnce()

	_, ok := a.WriteRing.PeekFront()
	require.False(t, ok, "source's write ring should be compacted")

	gotB, ok := b.ReadRing.PeekFront()
	require.True(t, ok)
	require.Equal(t, frame, gotB)

	gotC, ok := c.ReadRing.PeekFront()
	require.True(t, ok)
	require.Equal(t, frame, gotC)

	_, ok = a.ReadRing.PeekFront()
	require.False(t, ok, "broadcast must never be delivered back to its source")
}

func TestForwardOnceUnicastsToNamedTargetOnly(t *testing.T) {
	d := New(4, 256, testLogger(), nil)
	a, err := d.GetBusData("alpha")
	require.NoError(t, err)
	b, err := d.GetBusData("beta")
	require.NoError(t, err)
	c, err := d.GetBusData("gamma")
	require.NoError(t, err)

	prefix := codec.Prefix{SourceID: a.ID, TargetID: b.ID, FragmentCount: 1, MessageID: 1}
	frame := codec.JoinFrame(prefix, "hello")
	require.NoError(t, a.WriteRing.TryWrite(frame))

	d.forwardOnce()

	_, ok := b.ReadRing.PeekFront()
	require.True(t, ok)
	_, ok = c.ReadRing.PeekFront()
	require.False(t, ok)
}

func TestForwardOnceDropsOnSlotSaturation(t *testing.T) {
	d := New(1, 256, testLogger(), NewMetrics(nil))
	a, err := d.GetBusData("alpha")
	require.NoError(t, err)
	b, err := d.GetBusData("beta")
	require.NoError(t, err)

	require.NoError(t, b.ReadRing.TryWrite("occupied"))

	prefix := codec.Prefix{SourceID: a.ID, TargetID: 0, FragmentCount: 1, MessageID: 1}
	frame := codec.JoinFrame(prefix, "hello")
	require.NoError(t, a.WriteRing.TryWrite(frame))

	d.forwardOnce() // must not panic even though b's read ring is full

	got, ok := b.ReadRing.PeekFront()
	require.True(t, ok)
	require.Equal(t, "occupied", got)
}

func TestStartStopIsIdempotent(t *testing.T) {
	d := New(4, 256, testLogger(), nil)
	d.Start()
	d.Start()
	time.Sleep(10 * time.Millisecond)
	d.Stop()
	d.Stop()
}
