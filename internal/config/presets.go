package config

import "sort"

// Presets are named starting points for common plant characters. Each
// preset is applied on top of the defaults, so only the fields that
// differ are set here.
var Presets = map[string]func(*Config){
	"slow": func(c *Config) {
		c.Plant.HeaterLag = 0.1
		c.Plant.Transfer = 0.2
		c.Tuning.MaxRounds = 30
	},
	"fast": func(c *Config) {
		c.Plant.HeaterLag = 0.6
		c.Plant.Transfer = 0.8
		c.Control.RateMax = 50
	},
	"noisy": func(c *Config) {
		c.Plant.NoiseLevel = 2.0
		c.Window.Threshold = 4.0
		c.Window.ConvergenceSize = 8
	},
	"quiet": func(c *Config) {
		c.Plant.NoiseLevel = 0.0
		c.Window.Threshold = 1.0
	},
	"cautious": func(c *Config) {
		c.Tuning.MaxGainChange = 0.1
		c.Control.RateMax = 10
	},
}

// GetPreset returns the defaults with the named preset applied, or nil
// when the preset is unknown.
func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
