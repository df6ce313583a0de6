// ABOUTME: Main player application orchestration
// ABOUTME: Coordinates the frame source, scheduler, stats server and UI commands
package app

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/framepace-go/internal/config"
	"github.com/Resonate-Protocol/framepace-go/internal/player"
	"github.com/Resonate-Protocol/framepace-go/internal/server"
	"github.com/Resonate-Protocol/framepace-go/internal/source"
	"github.com/Resonate-Protocol/framepace-go/internal/ui"
	mediasync "github.com/Resonate-Protocol/framepace-go/pkg/sync"
)

// Player represents the main player application
type Player struct {
	config    config.Config
	clock     mediasync.Clock
	output    *player.Output
	scheduler *player.Scheduler
	source    *source.TestPattern
	server    *server.Server

	closeOnce sync.Once
}

// New creates a new player. The stats server is only created when a stats
// port is configured.
func New(cfg config.Config, clock mediasync.Clock) (*Player, error) {
	sourceConfig, err := cfg.SourceConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid source config: %w", err)
	}

	p := &Player{
		config: cfg,
		clock:  clock,
		output: player.NewOutput(cfg.Name, clock),
	}
	// The source decodes against the scheduler's media clock, which only
	// exists once the scheduler does, so the seeker is bound afterwards.
	seeker := &lateSeeker{}
	p.scheduler = player.NewScheduler(cfg.SchedulerConfig(), clock, p.output, seeker)

	p.source, err = source.NewTestPattern(sourceConfig, p.scheduler.MediaClock())
	if err != nil {
		return nil, err
	}
	seeker.source = p.source

	if cfg.Speed != 1 {
		if err := p.scheduler.SetSpeed(cfg.Speed); err != nil {
			return nil, err
		}
	}

	if cfg.StatsPort > 0 {
		p.server = server.New(cfg.ServerConfig(), p.Stats)
	}
	return p, nil
}

// lateSeeker forwards seeks to a source bound after construction
type lateSeeker struct {
	source *source.TestPattern
}

func (s *lateSeeker) Seek(positionUs int64) uint64 {
	return s.source.Seek(positionUs)
}

// Scheduler returns the frame scheduler.
func (p *Player) Scheduler() *player.Scheduler {
	return p.scheduler
}

// Server returns the stats server, or nil when disabled.
func (p *Player) Server() *server.Server {
	return p.server
}

// Run plays until ctx is cancelled
func (p *Player) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan source.Frame, 64)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		p.source.Run(ctx, frames)
	}()
	go func() {
		defer wg.Done()
		p.scheduler.Run(ctx, frames)
	}()

	serverErr := make(chan error, 1)
	if p.server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.server.Start(ctx); err != nil {
				serverErr <- err
				cancel()
			}
		}()
	}

	if !p.config.StartPaused {
		p.scheduler.Start()
	}
	log.Infof("Player %s running", p.config.Name)

	<-ctx.Done()
	wg.Wait()
	p.Close()

	select {
	case err := <-serverErr:
		return fmt.Errorf("stats server failed: %w", err)
	default:
		return nil
	}
}

// HandleCommand applies a command from the UI
func (p *Player) HandleCommand(cmd ui.Command) {
	log.Debugf("Command: %s", cmd.Kind)

	switch cmd.Kind {
	case ui.CommandTogglePlayback:
		p.scheduler.TogglePlayback()
	case ui.CommandSeek:
		p.scheduler.Seek(cmd.SeekUs)
	case ui.CommandSpeed:
		if err := p.scheduler.SetSpeed(cmd.Speed); err != nil {
			log.Warnf("Speed change rejected: %v", err)
		}
	case ui.CommandJoin:
		p.scheduler.Join(cmd.RenderNextFrameImmediately)
	case ui.CommandSetOutput:
		p.scheduler.SetOutputAttached(cmd.Attached)
	default:
		log.Warnf("Unknown command: %v", cmd.Kind)
	}
}

// HandleCommands applies commands until ctx is cancelled
func (p *Player) HandleCommands(ctx context.Context, commands <-chan ui.Command) {
	for {
		select {
		case cmd := <-commands:
			p.HandleCommand(cmd)
		case <-ctx.Done():
			return
		}
	}
}

// Stats merges scheduler and output statistics
func (p *Player) Stats() server.PlaybackStats {
	s := p.scheduler.Stats()
	o := p.output.Stats()
	return server.PlaybackStats{
		PositionUs:  s.PositionUs,
		Received:    s.Received,
		Rendered:    s.Rendered,
		Dropped:     s.Dropped,
		Skipped:     s.Skipped,
		Ignored:     s.Ignored,
		Pending:     s.Pending,
		HeadEarlyUs: s.HeadEarlyUs,
		LeadUs:      o.LeadUs,
		FirstFrames: o.FirstFrames,
		Width:       o.Size.Width,
		Height:      o.Size.Height,
		Playing:     s.Playing,
		Joining:     s.Joining,
		Ready:       s.Ready,
		Ended:       s.Ended,
		Speed:       s.Speed,
	}
}

// Status builds a TUI update from the current statistics
func (p *Player) Status() ui.StatusMsg {
	s := p.scheduler.Stats()
	o := p.output.Stats()

	msg := ui.StatusMsg{
		Name:        p.config.Name,
		PositionUs:  s.PositionUs,
		Playing:     s.Playing,
		Joining:     s.Joining,
		Ready:       s.Ready,
		Ended:       s.Ended,
		Attached:    s.OutputAttached,
		Speed:       s.Speed,
		Width:       o.Size.Width,
		Height:      o.Size.Height,
		Received:    s.Received,
		Rendered:    s.Rendered,
		Dropped:     s.Dropped,
		Skipped:     s.Skipped,
		Ignored:     s.Ignored,
		Stale:       s.Stale,
		Pending:     s.Pending,
		HeadEarlyUs: s.HeadEarlyUs,
		LeadUs:      o.LeadUs,
	}
	if p.server != nil {
		msg.StatsAddr = fmt.Sprintf(":%d", p.config.StatsPort)
		msg.Clients = p.server.Clients()
	}
	return msg
}

// Close stops playback and disables the scheduler. Safe to call twice.
func (p *Player) Close() {
	p.closeOnce.Do(func() {
		p.scheduler.Close()
		stats := p.scheduler.Stats()
		log.Infof("Player stopped: received=%d rendered=%d dropped=%d skipped=%d",
			stats.Received, stats.Rendered, stats.Dropped, stats.Skipped)
	})
}
