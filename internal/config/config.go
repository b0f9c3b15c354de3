package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultInterval      = 200 * time.Millisecond
	DefaultSetpoint      = 100.0
	DefaultKp            = 1.0
	DefaultKi            = 0.1
	DefaultKd            = 0.05
	DefaultOutputMax     = 255.0
	DefaultRateMax       = 25.0
	DefaultIntegralMax   = 100.0
	DefaultWindowSize    = 25
	DefaultAnalysisSize  = 10
	DefaultConvergeSize  = 5
	DefaultThreshold     = 2.0
	DefaultMaxRounds     = 20
	DefaultMaxGainChange = 0.2
)

type Config struct {
	Control Control `yaml:"control"`
	Window  Window  `yaml:"window"`
	Tuning  Tuning  `yaml:"tuning"`
	Advisor Advisor `yaml:"advisor"`
	Plant   Plant   `yaml:"plant"`
	Storage Storage `yaml:"storage"`
	Metrics Metrics `yaml:"metrics"`
}

// Control drives the fixed-rate loop and its safety limits.
type Control struct {
	Interval    time.Duration `yaml:"interval"`
	Setpoint    float64       `yaml:"setpoint"`
	Kp          float64       `yaml:"kp"`
	Ki          float64       `yaml:"ki"`
	Kd          float64       `yaml:"kd"`
	OutputMax   float64       `yaml:"output_max"`
	RateMax     float64       `yaml:"rate_max"`
	IntegralMax float64       `yaml:"integral_max"`
}

// Window sizes the telemetry buffer handed to analysis.
type Window struct {
	Capacity        int     `yaml:"capacity"`
	AnalysisSize    int     `yaml:"analysis_size"`
	ConvergenceSize int     `yaml:"convergence_size"`
	Threshold       float64 `yaml:"threshold"`
}

// Tuning bounds the advisory loop.
type Tuning struct {
	MaxRounds     int     `yaml:"max_rounds"`
	MaxGainChange float64 `yaml:"max_gain_change"` // fraction per round, 0 disables
}

type Advisor struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Plant parameterizes the simulated thermal process.
type Plant struct {
	Ambient     float64 `yaml:"ambient"`
	HeaterCoeff float64 `yaml:"heater_coeff"`
	HeaterLag   float64 `yaml:"heater_lag"`
	Transfer    float64 `yaml:"transfer"`
	Cooling     float64 `yaml:"cooling"`
	NoiseLevel  float64 `yaml:"noise_level"`
	Seed        int64   `yaml:"seed"`
}

type Storage struct {
	Dir string `yaml:"dir"`
}

type Metrics struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

func DefaultConfig() *Config {
	return &Config{
		Control: Control{
			Interval:    DefaultInterval,
			Setpoint:    DefaultSetpoint,
			Kp:          DefaultKp,
			Ki:          DefaultKi,
			Kd:          DefaultKd,
			OutputMax:   DefaultOutputMax,
			RateMax:     DefaultRateMax,
			IntegralMax: DefaultIntegralMax,
		},
		Window: Window{
			Capacity:        DefaultWindowSize,
			AnalysisSize:    DefaultAnalysisSize,
			ConvergenceSize: DefaultConvergeSize,
			Threshold:       DefaultThreshold,
		},
		Tuning: Tuning{
			MaxRounds:     DefaultMaxRounds,
			MaxGainChange: DefaultMaxGainChange,
		},
		Advisor: Advisor{
			BaseURL:     "http://localhost:11434/v1",
			Model:       "llama3.1",
			Temperature: 0.2,
			MaxTokens:   500,
			Timeout:     60 * time.Second,
		},
		Plant: Plant{
			Ambient:     20.0,
			HeaterCoeff: 300.0,
			HeaterLag:   0.3,
			Transfer:    0.5,
			Cooling:     0.3,
			NoiseLevel:  0.3,
		},
		Storage: Storage{Dir: "sessions"},
		Metrics: Metrics{Port: 9090},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if key := os.Getenv("PIDTUNE_API_KEY"); key != "" {
		cfg.Advisor.APIKey = key
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks all configuration values for logical consistency.
func (c *Config) Validate() error {
	if c.Control.Interval <= 0 {
		return fmt.Errorf("control interval must be positive, got %v", c.Control.Interval)
	}
	if c.Control.Kp < 0 || c.Control.Ki < 0 || c.Control.Kd < 0 {
		return fmt.Errorf("gains must be non-negative, got kp=%.3f ki=%.3f kd=%.3f",
			c.Control.Kp, c.Control.Ki, c.Control.Kd)
	}
	if c.Control.OutputMax <= 0 {
		return fmt.Errorf("output_max must be positive, got %.1f", c.Control.OutputMax)
	}
	if c.Control.RateMax <= 0 {
		return fmt.Errorf("rate_max must be positive, got %.1f", c.Control.RateMax)
	}
	if c.Control.IntegralMax <= 0 {
		return fmt.Errorf("integral_max must be positive, got %.1f", c.Control.IntegralMax)
	}

	if c.Window.Capacity <= 0 {
		return fmt.Errorf("window capacity must be positive, got %d", c.Window.Capacity)
	}
	if c.Window.AnalysisSize <= 0 || c.Window.AnalysisSize > c.Window.Capacity {
		return fmt.Errorf("analysis_size must be in 1-%d, got %d", c.Window.Capacity, c.Window.AnalysisSize)
	}
	if c.Window.ConvergenceSize <= 0 || c.Window.ConvergenceSize > c.Window.Capacity {
		return fmt.Errorf("convergence_size must be in 1-%d, got %d", c.Window.Capacity, c.Window.ConvergenceSize)
	}
	if c.Window.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %.2f", c.Window.Threshold)
	}

	if c.Tuning.MaxRounds <= 0 {
		return fmt.Errorf("max_rounds must be positive, got %d", c.Tuning.MaxRounds)
	}
	if c.Tuning.MaxGainChange < 0 || c.Tuning.MaxGainChange >= 1 {
		return fmt.Errorf("max_gain_change must be in [0,1), got %.2f", c.Tuning.MaxGainChange)
	}

	if c.Advisor.BaseURL == "" {
		return fmt.Errorf("advisor base_url must be set")
	}
	if c.Advisor.Timeout <= 0 {
		return fmt.Errorf("advisor timeout must be positive, got %v", c.Advisor.Timeout)
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics port must be between 1-65535, got %d", c.Metrics.Port)
	}
	return nil
}
