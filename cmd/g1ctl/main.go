// Package main implements g1ctl, the command line entry point of the
// glasses connector: pair, connect and inspect a two-unit device over
// BLE.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/kucendro/g1/internal/config"
	"github.com/kucendro/g1/internal/dispatch"
	"github.com/kucendro/g1/internal/logging"
	"github.com/kucendro/g1/internal/pairing"
	"github.com/kucendro/g1/internal/session"
	"github.com/kucendro/g1/internal/transport/bluez"
)

const Version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "configuration file (defaults to $G1_CONFIG, then ./g1.yaml)")
	flag.Usage = usage
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "connect"
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "g1ctl: configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log)
	log.Info().Str("version", Version).Str("command", cmd).Msg("g1ctl starting")

	store := pairing.NewStore(cfg.PairingFile, log)

	switch cmd {
	case "connect":
		err = runConnect(cfg, store, log)
	case "pair":
		err = runPair(cfg, store, *configPath, log)
	case "status":
		err = runStatus(cfg, store)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: g1ctl [-config file] <command>

commands:
  connect   connect both sides and stream events (default)
  pair      rescan, validate both sides and store the pairing record
  status    print the stored pairing record
`)
}

func buildSession(cfg *config.Config, store *pairing.Store, log zerolog.Logger) (*session.Coordinator, *dispatch.Bus, error) {
	tr, err := bluez.New()
	if err != nil {
		return nil, nil, fmt.Errorf("bluez: %w", err)
	}
	bus := dispatch.NewBus(log)
	disp := dispatch.NewDispatcher(bus, log)
	return session.NewCoordinator(tr, cfg, store, disp, log), bus, nil
}

func runConnect(cfg *config.Config, store *pairing.Store, log zerolog.Logger) error {
	coord, bus, err := buildSession(cfg, store, log)
	if err != nil {
		return err
	}
	defer bus.Close()

	events, cancelSub := bus.Subscribe(256)
	defer cancelSub()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := coord.Connect(ctx); err != nil {
		var pf *session.PartialFailure
		if !errors.As(err, &pf) {
			return err
		}
		log.Warn().Err(pf).Msg("running degraded")
	}
	defer coord.Disconnect()

	left, right := coord.Devices()
	fmt.Printf("connected: left %s (%s), right %s (%s)\n", left.Name, left.Address, right.Name, right.Address)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutdown signal received")
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			printEvent(ev)
		}
	}
}

func runPair(cfg *config.Config, store *pairing.Store, configPath string, log zerolog.Logger) error {
	// Forced rescan: ignore any stored addresses for this run.
	cfg.LeftAddress = ""
	cfg.RightAddress = ""

	coord, bus, err := buildSession(cfg, store, log)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := coord.Connect(ctx); err != nil {
		return err
	}
	defer coord.Disconnect()

	rec, err := store.Load()
	if err != nil {
		return err
	}
	fmt.Printf("paired: left %s (%s), right %s (%s)\n",
		rec.LeftName, rec.LeftAddress, rec.RightName, rec.RightAddress)

	// Remember the discovered addresses for future direct connects.
	cfg.LeftAddress = rec.LeftAddress
	cfg.RightAddress = rec.RightAddress
	cfg.LeftName = rec.LeftName
	cfg.RightName = rec.RightName
	if configPath == "" {
		configPath = "g1.yaml"
	}
	if err := config.Save(cfg, configPath); err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}
	log.Info().Str("path", configPath).Msg("configuration updated")
	return nil
}

func runStatus(cfg *config.Config, store *pairing.Store) error {
	rec, err := store.Load()
	if err != nil {
		if errors.Is(err, pairing.ErrNotPaired) {
			fmt.Println("not paired")
			return nil
		}
		return err
	}
	fmt.Printf("left:      %s (%s)\n", rec.LeftName, rec.LeftAddress)
	fmt.Printf("right:     %s (%s)\n", rec.RightName, rec.RightAddress)
	fmt.Printf("paired at: %s\n", rec.PairedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("validated: %v\n", rec.Validated)
	fmt.Printf("record:    %s\n", cfg.PairingFile)
	return nil
}

func printEvent(ev dispatch.Event) {
	switch ev.Type {
	case dispatch.EventConnectionState:
		fmt.Printf("[%s] %s: %s\n", ev.At.Format("15:04:05"), ev.Side, ev.ConnState)
	case dispatch.EventSessionState:
		fmt.Printf("[%s] session: %s\n", ev.At.Format("15:04:05"), ev.SessionState)
	case dispatch.EventInteraction:
		fmt.Printf("[%s] %s: %s\n", ev.At.Format("15:04:05"), ev.Side, ev.Interaction)
	case dispatch.EventStateChanged:
		s := ev.Snapshot
		fmt.Printf("[%s] state r%d: wearing=%v cradle=%v silent=%v battery L=%d R=%d\n",
			ev.At.Format("15:04:05"), s.Revision, s.Wearing, s.InCradle, s.SilentMode,
			s.Left.Battery, s.Right.Battery)
	case dispatch.EventPartialFailure:
		fmt.Printf("[%s] %s failed: %v\n", ev.At.Format("15:04:05"), ev.Side, ev.Err)
	}
}
