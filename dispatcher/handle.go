package dispatcher

import "github.com/mc-fleet/corebus/ring"

// EndpointHandle is what Dispatcher.GetBusData hands back to a peer
// joining the bus: its assigned id and the two rings the dispatcher
// allocated for it (spec §3's "Endpoint state" / "BusData").
type EndpointHandle struct {
	ID             uint8
	Key            string
	WriteRing      *ring.Ring
	ReadRing       *ring.Ring
	MaxFrameLength int
}
