// Package config loads the simulation's layered configuration: flags
// override environment variables, which override an optional YAML file,
// which overrides compiled-in defaults.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every knob the simulation and its HTTP layer need.
type Config struct {
	Addr string `mapstructure:"addr"`

	MapFile string `mapstructure:"map_file"`

	MaxVehicles      int           `mapstructure:"max_vehicles"`
	MaxPassengers    int           `mapstructure:"max_passengers"`
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	RenderInterval    time.Duration `mapstructure:"render_interval"`
	FailureLimit      int           `mapstructure:"failure_limit"`
	DistancePerCycle  float64       `mapstructure:"distance_per_cycle"`
	CooldownInterval time.Duration `mapstructure:"cooldown_interval"`

	RandomSeed int64 `mapstructure:"random_seed"`
}

// defaults mirror the teacher's compiled-in fallbacks (ORBIT_TRUCKS,
// ORBIT_TICK_RATE, etc.), renamed to this simulation's domain.
func defaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("map_file", "")
	v.SetDefault("max_vehicles", 200)
	v.SetDefault("max_passengers", 50)
	v.SetDefault("tick_interval", 10*time.Millisecond)
	v.SetDefault("render_interval", 33*time.Millisecond)
	v.SetDefault("failure_limit", 3)
	// 0 means main derives this from the map's latitude span once the
	// RouteModel is built, per spec §4.D/§6: |max_lat - min_lat| / 1000.
	v.SetDefault("distance_per_cycle", 0.0)
	v.SetDefault("cooldown_interval", 0) // 0 means Load derives it as 5 x tick_interval
	v.SetDefault("random_seed", int64(0))
}

// Flags carries the subset of configuration the command line can override,
// gathered by cmd/ridesim's flag.Parse before Load runs. A flag value of nil
// or the zero value means "not set on the command line", deferring to env,
// file, or default.
type Flags struct {
	Addr             *string
	MapFile          *string
	MaxVehicles      *int
	MaxPassengers    *int
	TickInterval     *time.Duration
	RenderInterval   *time.Duration
	FailureLimit     *int
	DistancePerCycle *float64
	ConfigFile       *string
}

// Load builds a Config by layering, highest precedence first: explicit
// flags, RIDESIM_* environment variables, an optional YAML config file, and
// the package defaults. This follows the teacher's env-then-flag-override
// idiom in its cmd/orbitserver/main.go, generalized with viper the way
// niceyeti-tabular's reinforcement package loads training config.
func Load(flags Flags) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("RIDESIM")
	v.AutomaticEnv()

	if flags.ConfigFile != nil && *flags.ConfigFile != "" {
		v.SetConfigFile(*flags.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read config file %s: %w", *flags.ConfigFile, err)
		}
	}

	applyFlag(v, "addr", flags.Addr)
	applyFlag(v, "map_file", flags.MapFile)
	applyFlag(v, "max_vehicles", flags.MaxVehicles)
	applyFlag(v, "max_passengers", flags.MaxPassengers)
	applyFlag(v, "tick_interval", flags.TickInterval)
	applyFlag(v, "render_interval", flags.RenderInterval)
	applyFlag(v, "failure_limit", flags.FailureLimit)
	applyFlag(v, "distance_per_cycle", flags.DistancePerCycle)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.CooldownInterval <= 0 {
		cfg.CooldownInterval = cfg.TickInterval * 5
	}

	return cfg, nil
}

// applyFlag sets key on v only when val points to a non-zero value,
// preserving the "unset flag doesn't override env/file" precedence rule.
func applyFlag[T comparable](v *viper.Viper, key string, val *T) {
	if val == nil {
		return
	}
	var zero T
	if *val == zero {
		return
	}
	v.Set(key, *val)
}
