// Package config holds the flat process configuration shared by the server
// and the peer tools.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects the inference strategy for a session.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// ParseMode accepts "local"/"remote" and the legacy "wasm"/"server" names.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "wasm":
		return ModeLocal, nil
	case "remote", "server":
		return ModeRemote, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Store backends.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Defaults.
const (
	DefaultMode              = ModeLocal
	DefaultInferenceURL      = "http://localhost:8000/infer"
	DefaultWidth             = 320
	DefaultHeight            = 240
	DefaultFPS               = 10
	DefaultBenchmark         = 30 * time.Second
	DefaultPollInterval      = time.Second
	DefaultRendezvousTimeout = 120 * time.Second
	DefaultInferenceTimeout  = 10 * time.Second
	DefaultJPEGQuality       = 70
	DefaultListenAddr        = ":3000"
	DefaultSignalingURL      = "http://localhost:3000"
	DefaultDataDir           = "./data"
	DefaultRecordTTL         = 10 * time.Minute
	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisPrefix       = "detect"
	DefaultSTUNServer        = "stun:stun.l.google.com:19302"
)

// Config is the flat configuration object. Field tags are the viper keys.
type Config struct {
	Mode         Mode   `mapstructure:"mode" yaml:"mode"`
	InferenceURL string `mapstructure:"inference_url" yaml:"inference_url"`

	Width       int           `mapstructure:"width" yaml:"width"`
	Height      int           `mapstructure:"height" yaml:"height"`
	FPS         float64       `mapstructure:"fps" yaml:"fps"`
	DropOnBusy  bool          `mapstructure:"drop_on_busy" yaml:"drop_on_busy"`
	Benchmark   time.Duration `mapstructure:"benchmark" yaml:"benchmark"`
	JPEGQuality int           `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`

	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	RendezvousTimeout time.Duration `mapstructure:"rendezvous_timeout" yaml:"rendezvous_timeout"`
	InferenceTimeout  time.Duration `mapstructure:"inference_timeout" yaml:"inference_timeout"`

	ListenAddr   string   `mapstructure:"listen_addr" yaml:"listen_addr"`
	SignalingURL string   `mapstructure:"signaling_url" yaml:"signaling_url"`
	StaticDir    string   `mapstructure:"static_dir" yaml:"static_dir"`
	ICEServers   []string `mapstructure:"ice_servers" yaml:"ice_servers"`

	Store       string        `mapstructure:"store" yaml:"store"`
	DataDir     string        `mapstructure:"data_dir" yaml:"data_dir"`
	SummaryPath string        `mapstructure:"summary_path" yaml:"summary_path"`
	RecordTTL   time.Duration `mapstructure:"record_ttl" yaml:"record_ttl"`
	RedisAddr   string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPrefix string        `mapstructure:"redis_prefix" yaml:"redis_prefix"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// Default returns the configuration with every documented default applied.
func Default() Config {
	return Config{
		Mode:              DefaultMode,
		InferenceURL:      DefaultInferenceURL,
		Width:             DefaultWidth,
		Height:            DefaultHeight,
		FPS:               DefaultFPS,
		DropOnBusy:        true,
		Benchmark:         DefaultBenchmark,
		JPEGQuality:       DefaultJPEGQuality,
		PollInterval:      DefaultPollInterval,
		RendezvousTimeout: DefaultRendezvousTimeout,
		InferenceTimeout:  DefaultInferenceTimeout,
		ListenAddr:        DefaultListenAddr,
		SignalingURL:      DefaultSignalingURL,
		ICEServers:        []string{DefaultSTUNServer},
		Store:             StoreFile,
		DataDir:           DefaultDataDir,
		SummaryPath:       DefaultDataDir + "/metrics.json",
		RecordTTL:         DefaultRecordTTL,
		RedisAddr:         DefaultRedisAddr,
		RedisPrefix:       DefaultRedisPrefix,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// Resolution renders the target resolution as WxH.
func (c *Config) Resolution() string {
	return fmt.Sprintf("%dx%d", c.Width, c.Height)
}

// TargetInterval is the minimum spacing between frame submissions.
func (c *Config) TargetInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.FPS)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("resolution must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %v", c.FPS)
	}
	if c.Benchmark <= 0 {
		return fmt.Errorf("benchmark duration must be positive, got %v", c.Benchmark)
	}
	if c.PollInterval <= 0 || c.RendezvousTimeout <= 0 {
		return fmt.Errorf("poll interval and rendezvous timeout must be positive")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be in [1,100], got %d", c.JPEGQuality)
	}
	switch c.Store {
	case StoreFile, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store)
	}
	if c.Mode == ModeRemote && c.InferenceURL == "" {
		return fmt.Errorf("remote mode requires an inference url")
	}
	return nil
}
