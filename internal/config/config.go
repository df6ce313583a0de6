// ABOUTME: Player configuration loaded from flags, environment and config file
// ABOUTME: Binds pflag flags into viper and converts settings for each component
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kr/pretty"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Resonate-Protocol/framepace-go/internal/player"
	"github.com/Resonate-Protocol/framepace-go/internal/server"
	"github.com/Resonate-Protocol/framepace-go/internal/source"
	"github.com/Resonate-Protocol/framepace-go/pkg/video"
)

// EnvPrefix prefixes environment overrides, e.g. FRAMEPACE_FPS.
const EnvPrefix = "FRAMEPACE"

// Config holds every player setting
type Config struct {
	Name string `mapstructure:"name"`

	// Source
	FPS                float64  `mapstructure:"fps"`
	Frames             int      `mapstructure:"frames"`
	LookaheadMs        int      `mapstructure:"lookahead-ms"`
	JitterMs           int      `mapstructure:"jitter-ms"`
	GOP                int      `mapstructure:"gop"`
	Sizes              []string `mapstructure:"sizes"`
	SizeChangeEvery    int      `mapstructure:"size-change-every"`
	DiscontinuityEvery int      `mapstructure:"discontinuity-every"`
	Seed               uint64   `mapstructure:"seed"`

	// Scheduler
	Speed                       float64 `mapstructure:"speed"`
	TickMs                      int     `mapstructure:"tick-ms"`
	JoinMs                      int     `mapstructure:"join-ms"`
	ImmediateMs                 int     `mapstructure:"immediate-ms"`
	RenderFirstFrameBeforeStart bool    `mapstructure:"render-first-frame-before-start"`
	StartPaused                 bool    `mapstructure:"start-paused"`

	// Stats server
	StatsPort       int  `mapstructure:"stats-port"`
	StatsIntervalMs int  `mapstructure:"stats-interval-ms"`
	MDNS            bool `mapstructure:"mdns"`

	// Logging and UI
	NoTUI      bool   `mapstructure:"no-tui"`
	LogLevel   string `mapstructure:"log-level"`
	LogFile    string `mapstructure:"log-file"`
	ConfigFile string `mapstructure:"config"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		FPS:             30,
		LookaheadMs:     60,
		JitterMs:        10,
		GOP:             30,
		Sizes:           []string{"1280x720"},
		Speed:           1,
		TickMs:          int(player.DefaultTickInterval / time.Millisecond),
		JoinMs:          0,
		StatsPort:       8928,
		StatsIntervalMs: 500,
		LogLevel:        "info",
		LogFile:         "framepace.log",
	}
}

// NewFlagSet registers every setting as a flag
func NewFlagSet(name string) *pflag.FlagSet {
	d := Default()
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.String("name", d.Name, "Player friendly name (default: hostname-framepace)")
	fs.Float64("fps", d.FPS, "Source frame rate")
	fs.Int("frames", d.Frames, "Number of frames to play, 0 for endless")
	fs.Int("lookahead-ms", d.LookaheadMs, "How far ahead of the position frames are decoded")
	fs.Int("jitter-ms", d.JitterMs, "Maximum random decode delay per frame")
	fs.Int("gop", d.GOP, "Keyframe interval in frames")
	fs.StringSlice("sizes", d.Sizes, "Frame sizes cycled through, as WIDTHxHEIGHT")
	fs.Int("size-change-every", d.SizeChangeEvery, "Switch frame size every n frames, 0 to keep the first size")
	fs.Int("discontinuity-every", d.DiscontinuityEvery, "Start a new input stream every n frames, 0 to disable")
	fs.Uint64("seed", d.Seed, "Random seed for decode jitter")
	fs.Float64("speed", d.Speed, "Playback speed")
	fs.Int("tick-ms", d.TickMs, "Release evaluation interval")
	fs.Int("join-ms", d.JoinMs, "Joining period allowed after a join, 0 disables joining")
	fs.Int("immediate-ms", d.ImmediateMs, "Frames this close to their release time are released immediately")
	fs.Bool("render-first-frame-before-start", d.RenderFirstFrameBeforeStart, "Show the first frame while paused")
	fs.Bool("start-paused", d.StartPaused, "Wait for space before starting playback")
	fs.Int("stats-port", d.StatsPort, "Stats server port, 0 to disable")
	fs.Int("stats-interval-ms", d.StatsIntervalMs, "Stats broadcast interval")
	fs.Bool("mdns", d.MDNS, "Advertise the stats server over mDNS")
	fs.Bool("no-tui", d.NoTUI, "Disable TUI, use streaming logs instead")
	fs.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")
	fs.String("log-file", d.LogFile, "Log file path, empty to disable")
	fs.String("config", d.ConfigFile, "Config file (yaml, json or toml)")
	return fs
}

// Load parses args and merges flags, FRAMEPACE_* environment variables and
// the config file. Explicit flags win over the environment, which wins over
// the file.
func Load(fs *pflag.FlagSet, args []string) (Config, error) {
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("failed to bind flags: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if c.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		c.Name = fmt.Sprintf("%s-framepace", hostname)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	log.Debugf("Current configuration:\n%# v", pretty.Formatter(c))
	return c, nil
}

// Validate checks settings that no component validates itself
func (c Config) Validate() error {
	var errs []error
	if c.Speed <= 0 || math.IsNaN(c.Speed) || math.IsInf(c.Speed, 0) {
		errs = append(errs, fmt.Errorf("speed must be positive and finite, got %v", c.Speed))
	}
	if c.TickMs <= 0 {
		errs = append(errs, fmt.Errorf("tick-ms must be positive, got %d", c.TickMs))
	}
	if c.JoinMs < 0 || c.ImmediateMs < 0 {
		errs = append(errs, errors.New("join-ms and immediate-ms must not be negative"))
	}
	if c.StatsPort < 0 || c.StatsPort > 65535 {
		errs = append(errs, fmt.Errorf("stats-port out of range: %d", c.StatsPort))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.SourceConfig(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SourceConfig returns the test pattern settings
func (c Config) SourceConfig() (source.Config, error) {
	sizes, err := parseSizes(c.Sizes)
	if err != nil {
		return source.Config{}, err
	}
	sc := source.DefaultConfig()
	sc.FPS = c.FPS
	sc.Frames = c.Frames
	sc.Lookahead = time.Duration(c.LookaheadMs) * time.Millisecond
	sc.Jitter = time.Duration(c.JitterMs) * time.Millisecond
	sc.GOP = c.GOP
	sc.Sizes = sizes
	sc.SizeChangeEvery = c.SizeChangeEvery
	sc.DiscontinuityEvery = c.DiscontinuityEvery
	sc.Seed = c.Seed
	return sc, sc.Validate()
}

// SchedulerConfig returns the frame release settings
func (c Config) SchedulerConfig() player.Config {
	return player.Config{
		TickInterval:                   time.Duration(c.TickMs) * time.Millisecond,
		AllowedJoiningTime:             time.Duration(c.JoinMs) * time.Millisecond,
		ReleaseFirstFrameBeforeStarted: c.RenderFirstFrameBeforeStart,
		ImmediateReleaseWindow:         time.Duration(c.ImmediateMs) * time.Millisecond,
	}
}

// ServerConfig returns the stats server settings
func (c Config) ServerConfig() server.Config {
	return server.Config{
		Port:       c.StatsPort,
		Name:       c.Name,
		Interval:   time.Duration(c.StatsIntervalMs) * time.Millisecond,
		EnableMDNS: c.MDNS,
	}
}

func parseSizes(values []string) ([]video.VideoSize, error) {
	if len(values) == 0 {
		return nil, errors.New("at least one frame size is required")
	}
	sizes := make([]video.VideoSize, 0, len(values))
	for _, value := range values {
		w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(value)), "x")
		if !ok {
			return nil, fmt.Errorf("invalid frame size %q, want WIDTHxHEIGHT", value)
		}
		width, werr := strconv.Atoi(w)
		height, herr := strconv.Atoi(h)
		if werr != nil || herr != nil || width <= 0 || height <= 0 {
			return nil, fmt.Errorf("invalid frame size %q, want WIDTHxHEIGHT", value)
		}
		sizes = append(sizes, video.VideoSize{Width: width, Height: height})
	}
	return sizes, nil
}
