package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/speedctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel   = string(LogLevelWarning)
	DefaultEnvPrefix  = "SPEEDCTL"
	defaultConfigName = "speedctl"
	defaultConfigDir  = "/etc"
)

// Backends understood by the device layer.
const (
	BackendSim    = "sim"
	BackendPeriph = "periph"
)

type Config struct {
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
	Listen   string `mapstructure:"listen"`
	Backend  string `mapstructure:"backend"`
	PIDDir   string `mapstructure:"pid_dir"`

	// Edge capture and staleness detection
	TimerFrequency  uint64        `mapstructure:"timer_frequency"`
	CounterBits     uint          `mapstructure:"counter_bits"`
	NoiseFloorTicks uint64        `mapstructure:"noise_floor_ticks"`
	WatchdogWindow  time.Duration `mapstructure:"watchdog_window"`

	// Actuation
	PWMPeriod         uint32        `mapstructure:"pwm_period"`
	PWMFrequency      int64         `mapstructure:"pwm_frequency"`
	MaxSpeed          uint32        `mapstructure:"max_speed"`
	ActuatorInterval  time.Duration `mapstructure:"actuator_interval"`
	TelemetryInterval time.Duration `mapstructure:"telemetry_interval"`

	// Peripheral bring-up
	ReadyAttempts int           `mapstructure:"ready_attempts"`
	ReadyDelay    time.Duration `mapstructure:"ready_delay"`

	// Hardware pins (periph backend) and simulated input (sim backend)
	EdgePin      string  `mapstructure:"edge_pin"`
	PWMPin       string  `mapstructure:"pwm_pin"`
	LEDPin       string  `mapstructure:"led_pin"`
	SimFrequency float64 `mapstructure:"sim_frequency"`

	// Metrics history
	Metrics          bool          `mapstructure:"metrics"`
	MetricsDB        string        `mapstructure:"metrics_db"`
	MetricsBatch     int           `mapstructure:"metrics_batch"`
	MetricsFlush     time.Duration `mapstructure:"metrics_flush"`
	MetricsRetention time.Duration `mapstructure:"metrics_retention"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_file", "")
	v.SetDefault("listen", ":8080")
	v.SetDefault("backend", BackendSim)
	v.SetDefault("pid_dir", os.TempDir())

	v.SetDefault("timer_frequency", 120000000)
	v.SetDefault("counter_bits", 32)
	v.SetDefault("noise_floor_ticks", 2000000)
	v.SetDefault("watchdog_window", time.Second)

	v.SetDefault("pwm_period", 400)
	v.SetDefault("pwm_frequency", 50000)
	v.SetDefault("max_speed", 30)
	v.SetDefault("actuator_interval", 10*time.Millisecond)
	v.SetDefault("telemetry_interval", 100*time.Millisecond)

	v.SetDefault("ready_attempts", 10)
	v.SetDefault("ready_delay", 100*time.Millisecond)

	v.SetDefault("edge_pin", "GPIO17")
	v.SetDefault("pwm_pin", "GPIO18")
	v.SetDefault("led_pin", "GPIO27")
	v.SetDefault("sim_frequency", 20.0)

	v.SetDefault("metrics", false)
	v.SetDefault("metrics_db", "/var/lib/speedctl/metrics.db")
	v.SetDefault("metrics_batch", 50)
	v.SetDefault("metrics_flush", 5*time.Second)
	v.SetDefault("metrics_retention", 24*time.Hour)
}

// Load reads configuration from the config file, the environment and the
// process command line.
func Load(opts ...Option) (*Config, error) {
	return LoadArgs(os.Args[1:], opts...)
}

// LoadArgs is Load with an explicit argument list.
func LoadArgs(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	fs := pflag.NewFlagSet("speedctl", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	configFlag := fs.String("config", "", "Path to the configuration file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.String("log-file", "", "Also write logs to this file, rotated by size")
	fs.String("listen", ":8080", "Address of the HTTP control surface")
	fs.String("backend", BackendSim, "Hardware backend (sim, periph)")
	fs.Float64("sim-frequency", 20.0, "Pulse frequency of the simulated input in Hz")
	fs.Bool("metrics", false, "Record controller history to sqlite")
	fs.String("metrics-db", "/var/lib/speedctl/metrics.db", "Path to the metrics database")

	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	for key, name := range map[string]string{
		"log_level":     "log-level",
		"log_file":      "log-file",
		"listen":        "listen",
		"backend":       "backend",
		"sim_frequency": "sim-frequency",
		"metrics":       "metrics",
		"metrics_db":    "metrics-db",
	} {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	configPath := o.configPath
	if configPath == "" {
		configPath = *configFlag
	}
	if configPath == "" {
		configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
	} else {
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("toml")
		v.AddConfigPath(defaultConfigDir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded values for consistency.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, FieldError{Field: "log_level", Value: c.LogLevel, Reason: "unknown level"})
	}

	checks := []struct {
		ok     bool
		field  string
		value  any
		reason string
	}{
		{c.Backend == BackendSim || c.Backend == BackendPeriph, "backend", c.Backend, "must be sim or periph"},
		{c.TimerFrequency > 0, "timer_frequency", c.TimerFrequency, "must be positive"},
		{c.CounterBits >= 1 && c.CounterBits <= 64, "counter_bits", c.CounterBits, "must be between 1 and 64"},
		{c.WatchdogWindow > 0, "watchdog_window", c.WatchdogWindow, "must be positive"},
		{c.PWMPeriod >= 2, "pwm_period", c.PWMPeriod, "must be at least 2 ticks"},
		{c.PWMFrequency > 0, "pwm_frequency", c.PWMFrequency, "must be positive"},
		{c.MaxSpeed > 0, "max_speed", c.MaxSpeed, "must be positive"},
		{c.ActuatorInterval > 0, "actuator_interval", c.ActuatorInterval, "must be positive"},
		{c.TelemetryInterval > 0, "telemetry_interval", c.TelemetryInterval, "must be positive"},
		{c.ReadyAttempts >= 1, "ready_attempts", c.ReadyAttempts, "must be at least 1"},
		{c.SimFrequency >= 0, "sim_frequency", c.SimFrequency, "must not be negative"},
		{!c.Metrics || c.MetricsDB != "", "metrics_db", c.MetricsDB, "required when metrics is enabled"},
	}

	for _, chk := range checks {
		if !chk.ok {
			code := errors.ErrInvalidConfig
			if strings.HasSuffix(chk.field, "_interval") {
				code = errors.ErrInvalidInterval
			}
			return errFactory.WithData(code, FieldError{Field: chk.field, Value: chk.value, Reason: chk.reason})
		}
	}

	return nil
}
