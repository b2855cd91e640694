package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modbuslabs/gomodbus/common"
	"github.com/modbuslabs/gomodbus/proxy"
	"github.com/modbuslabs/gomodbus/transport"
	flag "github.com/spf13/pflag"
)

func main() {
	listenAddress := flag.String("listen-address", "0.0.0.0", "Front-end address to bind to")
	listenPort := flag.Int("listen-port", common.DefaultTCPPort, "Front-end TCP port to listen on")

	destHost := flag.String("dest-host", "", "Back-end Modbus TCP host (mutually exclusive with --dest-serial-port)")
	destPort := flag.Int("dest-port", common.DefaultTCPPort, "Back-end Modbus TCP port")
	destSerialPort := flag.String("dest-serial-port", "", "Back-end serial device path, selects RTU framing")
	destBaudRate := flag.Int("dest-baud-rate", 19200, "Back-end RTU baud rate")

	freshness := flag.Duration("freshness-window", 200*time.Millisecond, "Maximum cached-value age before a refetch (clamped up to 200ms)")
	deviceIDs := flag.IntSlice("device-ids", []int{1}, "Back-end device ids the proxy serves on the front end")

	flag.Parse()

	if *destHost == "" && *destSerialPort == "" {
		fmt.Fprintln(os.Stderr, "proxy: one of --dest-host or --dest-serial-port is required")
		os.Exit(1)
	}

	settings := proxy.Settings{
		ListenAddress:   *listenAddress,
		ListenPort:      *listenPort,
		FreshnessWindow: *freshness,
		DeviceIDs:       toUnitIDs(*deviceIDs),
	}

	if *destSerialPort != "" {
		settings.Destination = proxy.Destination{
			RTU:        true,
			SerialPort: *destSerialPort,
			RTUOptions: []transport.RTUTransportOption{transport.WithBaudRate(*destBaudRate)},
		}
	} else {
		settings.Destination = proxy.Destination{
			Host: *destHost,
			Port: *destPort,
		}
	}

	p := proxy.NewProxy(settings)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("proxy: received shutdown signal, stopping...")
		if err := p.Stop(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "proxy: error stopping: %v\n", err)
		}
		cancel()
	}()

	fmt.Printf("proxy: listening on %s:%d, forwarding to back end\n", *listenAddress, *listenPort)
	if err := p.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "proxy: failed to start: %v\n", err)
		os.Exit(1)
	}

	<-ctx.Done()
	fmt.Println("proxy: shutdown complete")
}

func toUnitIDs(ids []int) []common.UnitID {
	out := make([]common.UnitID, len(ids))
	for i, id := range ids {
		out[i] = common.UnitID(id)
	}
	return out
}
