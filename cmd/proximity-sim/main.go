package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/user/proximity-blue/beacon"
	"github.com/user/proximity-blue/bridge"
	"github.com/user/proximity-blue/logger"
	"github.com/user/proximity-blue/simble"
)

func main() {
	devices := flag.Int("devices", 3, "number of simulated devices")
	duration := flag.Duration("duration", 30*time.Second, "how long to run")
	on := flag.Duration("on", 2*time.Second, "scan on-phase duration")
	off := flag.Duration("off", 1*time.Second, "scan off-phase duration")
	timeout := flag.Duration("timeout", 5*time.Second, "per-exchange connection timeout")
	bridgeAddr := flag.String("bridge", "", "serve events on ws://ADDR/events (empty = disabled)")
	flag.Parse()

	logger.SetLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	var eventServer *bridge.Server
	if *bridgeAddr != "" {
		eventServer = bridge.NewServer(*bridgeAddr)
		if err := eventServer.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "bridge: %v\n", err)
			os.Exit(1)
		}
	}

	hub := simble.NewHub()
	receivers := make([]*beacon.Receiver, 0, *devices)
	transmitters := make([]*beacon.SimTransmitter, 0, *devices)

	for i := 0; i < *devices; i++ {
		name := fmt.Sprintf("device-%d", i+1)
		dev := hub.AddDevice(name)

		codes := beacon.NewCodeGenerator(uint64(i+1) * 0x9E3779B97F4A7C15)
		mode := beacon.TransmitterModeNative
		if i%2 == 1 {
			mode = beacon.TransmitterModeMasked
		}
		tx := beacon.NewSimTransmitter(dev, beacon.DefaultServiceID, codes.Code(), mode)
		if err := tx.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "%s: transmitter: %v\n", name, err)
			os.Exit(1)
		}

		r := beacon.NewReceiver(dev, tx)
		r.SetLogPrefix(name)
		r.SetConnectionTimeout(*timeout)
		r.SetDutyCycle(uint32(on.Milliseconds()), uint32(off.Milliseconds()))
		r.AddListener(&logListener{name: name})
		if eventServer != nil {
			r.AddListener(eventServer.Listener())
		}

		receivers = append(receivers, r)
		transmitters = append(transmitters, tx)
	}

	for i, r := range receivers {
		if err := r.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "device-%d: %v\n", i+1, err)
			os.Exit(1)
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	select {
	case <-time.After(*duration):
	case <-interrupt:
		logger.Info("Sim", "Interrupted")
	}

	for _, r := range receivers {
		r.Stop()
	}
	for _, tx := range transmitters {
		tx.Stop()
	}
	if eventServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		eventServer.Stop(ctx)
	}
}

// logListener prints engine events for one device
type logListener struct {
	name string
}

func (l *logListener) Start() {
	logger.Info(l.name, "Receiver running")
}

func (l *logListener) StartFailed(errorCode int) {
	logger.Warn(l.name, "Receiver start failed (code=%d)", errorCode)
}

func (l *logListener) Stop() {
	logger.Info(l.name, "Receiver stopped")
}

func (l *logListener) Detect(event beacon.DetectionEvent) {
	logger.Info(l.name, "Contact detected (beaconCode=%d,rssi=%d)", event.PeerBeaconCode, event.Rssi)
}
