// Command mcfleet-dispatcher runs a star-topology dispatcher mainloop
// standalone until interrupted. Its rings live in this process's own
// memory: no endpoint in another process can attach to them.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mc-fleet/corebus/config"
	"github.com/mc-fleet/corebus/dispatcher"
	"github.com/mc-fleet/corebus/internal/log"
)

func main() {
	configPath := flag.String("config", "dispatcher.toml", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcfleet-dispatcher: %s\n", err)
		os.Exit(1)
	}

	var logFile *os.File
	if cfg.Logging.File != "" {
		logFile, err = os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mcfleet-dispatcher: opening log file: %s\n", err)
			os.Exit(1)
		}
		defer logFile.Close()
	}
	var logOut io.Writer = os.Stderr
	if logFile != nil {
		logOut = logFile
	}
	backend, err := log.New(logOut, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcfleet-dispatcher: %s\n", err)
		os.Exit(1)
	}
	logger := backend.GetLogger("dispatcher")

	registry := prometheus.NewRegistry()
	met := dispatcher.NewMetrics(registry)
	d := dispatcher.New(cfg.MemorySize, cfg.MaxFrameLength, logger, met)
	d.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	d.Stop()
}
