// ABOUTME: Entry point for the framepace video player simulator
// ABOUTME: Parses configuration and runs the player with a TUI or streaming logs
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/Resonate-Protocol/framepace-go/internal/app"
	"github.com/Resonate-Protocol/framepace-go/internal/config"
	"github.com/Resonate-Protocol/framepace-go/internal/ui"
	"github.com/Resonate-Protocol/framepace-go/internal/version"
	mediasync "github.com/Resonate-Protocol/framepace-go/pkg/sync"
)

func main() {
	cfg, err := config.Load(config.NewFlagSet(os.Args[0]), os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "framepace: %v\n", err)
		os.Exit(2)
	}

	// Determine if we should use TUI or streaming logs
	useTUI := !cfg.NoTUI

	closer, err := config.SetupLogging(cfg.LogLevel, cfg.LogFile, useTUI, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "framepace: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = closer.Close() }()

	log.Infof("Starting %s: %s", version.String(), cfg.Name)
	if !useTUI {
		log.Infof("TUI disabled - streaming logs")
	}

	player, err := app.New(cfg, mediasync.NewSystemClock())
	if err != nil {
		log.Fatalf("Failed to create player: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// TUI setup
	var tuiProg *tea.Program
	var controls *ui.Controls

	if useTUI {
		controls = ui.NewControls()
		tuiProg, err = ui.Run(controls)
		if err != nil {
			log.Fatalf("Failed to start TUI: %v", err)
		}
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
			}
			cancel()
		}()
		go player.HandleCommands(ctx, controls.Commands)
		go statsUpdateLoop(ctx, player, tuiProg.Send)
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- player.Run(ctx)
		cancel()
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var quit <-chan struct{}
	if controls != nil {
		quit = controls.Quit
	}

	select {
	case <-quit:
		log.Infof("Received quit signal from TUI")
	case <-sigChan:
		log.Infof("Shutdown signal received")
	case <-ctx.Done():
	}
	cancel()

	if err := <-runErr; err != nil {
		log.Errorf("Player error: %v", err)
	}
	if tuiProg != nil {
		tuiProg.Quit()
	}
	log.Infof("Player stopped")
}

// statsUpdateLoop periodically updates TUI with playback statistics
func statsUpdateLoop(ctx context.Context, player *app.Player, send func(tea.Msg)) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			send(player.Status())
		case <-ctx.Done():
			return
		}
	}
}
