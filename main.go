package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/scipioni/mouse-controller/bluetooth"
	"github.com/scipioni/mouse-controller/input"
	"github.com/scipioni/mouse-controller/server"
	"github.com/scipioni/mouse-controller/utils"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	listen := flag.String("listen", "", "status API listen address (overrides config)")
	device := flag.String("input-device", "", "pointer device to sample (overrides config)")
	flag.Parse()

	cfg, err := utils.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("mouse-controller: %v", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	} else if port := os.Getenv("PORT"); port != "" {
		cfg.Listen = ":" + port
	}
	if *device != "" {
		cfg.InputDevice = *device
	}

	wsHub := utils.NewWebSocketHub()
	source := input.NewMiceSource(cfg.InputDevice)
	manager := bluetooth.NewManager(source, wsHub)

	srv := server.NewServer(manager, wsHub)
	srv.Start(cfg.Listen)

	// Interrupt and termination both cancel the context; the sampling loop
	// observes it at the next tick and runs the normal teardown path. No
	// Bluetooth calls happen in signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = manager.Run(ctx)
	srv.Shutdown()
	if err != nil {
		exitFatal(err)
	}
	log.Println("mouse-controller: stopped")
}

// exitFatal prints the failed startup stage with a remediation hint and
// exits non-zero.
func exitFatal(err error) {
	var adapterErr *bluetooth.AdapterError
	var connErr *bluetooth.ConnectionError
	var regErr *bluetooth.RegistrationError

	switch {
	case errors.As(err, &adapterErr):
		log.Printf("mouse-controller: adapter setup failed: %v", err)
		log.Println("mouse-controller: check that a Bluetooth controller is attached and try `systemctl restart bluetooth`")
	case errors.As(err, &connErr):
		log.Printf("mouse-controller: system bus unavailable: %v", err)
		log.Println("mouse-controller: check that dbus and bluetooth.service are running")
	case errors.As(err, &regErr):
		log.Printf("mouse-controller: %s registration failed: %v", regErr.Entity, err)
		log.Println("mouse-controller: another HID service may hold the profile; try `systemctl restart bluetooth` and rerun")
	default:
		log.Printf("mouse-controller: %v", err)
	}
	os.Exit(1)
}
