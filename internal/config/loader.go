package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. DETECT_FPS=15.
const EnvPrefix = "DETECT"

// Load builds a Config from defaults, an optional YAML file, DETECT_*
// environment variables and any flags already bound on flags (in increasing
// priority). The bare MODE variable of earlier deployments is also honoured.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("mode", EnvPrefix+"_MODE", "MODE")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode

	// summary follows data_dir unless pinned explicitly
	d := Default()
	if cfg.SummaryPath == d.SummaryPath && cfg.DataDir != d.DataDir {
		cfg.SummaryPath = filepath.Join(cfg.DataDir, "metrics.json")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("mode", string(d.Mode))
	v.SetDefault("inference_url", d.InferenceURL)
	v.SetDefault("width", d.Width)
	v.SetDefault("height", d.Height)
	v.SetDefault("fps", d.FPS)
	v.SetDefault("drop_on_busy", d.DropOnBusy)
	v.SetDefault("benchmark", d.Benchmark)
	v.SetDefault("jpeg_quality", d.JPEGQuality)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("rendezvous_timeout", d.RendezvousTimeout)
	v.SetDefault("inference_timeout", d.InferenceTimeout)
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("signaling_url", d.SignalingURL)
	v.SetDefault("static_dir", d.StaticDir)
	v.SetDefault("ice_servers", d.ICEServers)
	v.SetDefault("store", d.Store)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("summary_path", d.SummaryPath)
	v.SetDefault("record_ttl", d.RecordTTL)
	v.SetDefault("redis_addr", d.RedisAddr)
	v.SetDefault("redis_prefix", d.RedisPrefix)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
}

// bindFlags binds every changed-or-declared flag whose name maps to a config
// key ("inference-url" -> "inference_url").
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !isKey(key) || !f.Changed {
			return
		}
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

func isKey(key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

var keys = []string{
	"mode", "inference_url", "width", "height", "fps", "drop_on_busy", "benchmark",
	"jpeg_quality", "poll_interval", "rendezvous_timeout", "inference_timeout",
	"listen_addr", "signaling_url", "static_dir", "ice_servers", "store", "data_dir",
	"summary_path", "record_ttl", "redis_addr", "redis_prefix", "log_level", "log_format",
}

// YAML renders the configuration as YAML with durations in their string form.
func (c *Config) YAML() ([]byte, error) {
	var node map[string]any
	raw, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, err
	}
	for key, d := range map[string]time.Duration{
		"benchmark":          c.Benchmark,
		"poll_interval":      c.PollInterval,
		"rendezvous_timeout": c.RendezvousTimeout,
		"inference_timeout":  c.InferenceTimeout,
		"record_ttl":         c.RecordTTL,
	} {
		node[key] = d.String()
	}
	return yaml.Marshal(node)
}
