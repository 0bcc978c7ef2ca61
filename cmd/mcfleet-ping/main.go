// Command mcfleet-ping is a minimal two-endpoint demonstration of the
// bus: it starts an in-process dispatcher, registers a "ponger"
// endpoint that answers SERVER.PING, and triggers SERVER.PING from a
// "pinger" endpoint, printing the round trip.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mc-fleet/corebus/bus"
	"github.com/mc-fleet/corebus/dispatcher"
	"github.com/mc-fleet/corebus/internal/log"
	"github.com/mc-fleet/corebus/wire/catalog"
)

func main() {
	catalogPath := flag.String("catalog", "testdata/events.xml", "path to the event catalog")
	serverName := flag.String("server", "survival-1", "server_name argument to ping")
	flag.Parse()

	cat, err := catalog.LoadFile(*catalogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcfleet-ping: %s\n", err)
		os.Exit(1)
	}
	pingEvent, err := cat.LookupByName("SERVER.PING")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcfleet-ping: %s\n", err)
		os.Exit(1)
	}

	backend, err := log.New(os.Stderr, "INFO")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcfleet-ping: %s\n", err)
		os.Exit(1)
	}

	d := dispatcher.New(0, 0, backend.GetLogger("dispatcher"), nil)
	d.Start()
	defer d.Stop()

	pongerHandle, err := d.GetBusData("ponger")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcfleet-ping: %s\n", err)
		os.Exit(1)
	}
	ponger := bus.New(pongerHandle, cat, backend.GetLogger("ponger"), nil)
	if err := ponger.Register(pingEvent, bus.Signature{
		Args:   []bus.RegisteredArg{{Name: "server_name", Type: "str"}},
		Return: "bool",
	}, func(args map[string]interface{}) (interface{}, error) {
		fmt.Printf("ponger saw ping for %v\n", args["server_name"])
		return true, nil
	}); err != nil {
		fmt.Fprintf(os.Stderr, "mcfleet-ping: %s\n", err)
		os.Exit(1)
	}
	ponger.Start()
	defer ponger.Stop()

	pingerHandle, err := d.GetBusData("pinger")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcfleet-ping: %s\n", err)
		os.Exit(1)
	}
	pinger := bus.New(pingerHandle, cat, backend.GetLogger("pinger"), nil)
	pinger.Start()
	defer pinger.Stop()

	result, err := pinger.Trigger(pingEvent, map[string]interface{}{"server_name": *serverName}, 2*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcfleet-ping: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("ping result: %v\n", result)
}
