package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go-piano/keymap"
	"go-piano/performance"
)

// ControllerConfig defines a saved MIDI input controller
type ControllerConfig struct {
	PortName     string `json:"portName"`
	AutoConnect  bool   `json:"autoConnect"`
	InputChannel int    `json:"inputChannel,omitempty"` // 1-16, 0 = omni
}

// SoundConfig selects the SoundFont and instrument
type SoundConfig struct {
	SoundFont string  `json:"soundFont,omitempty"`
	Bank      int     `json:"bank"`
	Preset    int     `json:"preset"`
	Volume    float64 `json:"volume"`
}

// PerformanceConfig stores the playing defaults
type PerformanceConfig struct {
	Layout        keymap.Layout `json:"layout"`
	Velocity      int           `json:"velocity"`
	VelocityScale float64       `json:"velocityScale"`
	Transpose     int           `json:"transpose"`

	// SustainPercent sets the hold only: 100 (or 0) holds until the pedal
	// lifts, 1-99 hold for 80ms to 2.4s.
	SustainPercent int  `json:"sustainPercent"`
	// SustainDefault is the pedal position at startup
	SustainDefault bool `json:"sustainDefault"`
}

// ExportConfig controls recording export
type ExportConfig struct {
	Dir             string `json:"dir,omitempty"`
	TicksPerQuarter uint16 `json:"ticksPerQuarter,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Controllers []ControllerConfig                `json:"controllers,omitempty"`
	Sound       SoundConfig                       `json:"sound"`
	Performance PerformanceConfig                 `json:"performance"`
	Keymaps     map[keymap.Layout]keymap.Bindings `json:"keymaps,omitempty"`
	Export      ExportConfig                      `json:"export,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Sound: SoundConfig{
			Volume: 0.6,
		},
		Performance: PerformanceConfig{
			Layout:        keymap.SixtyOne,
			Velocity:       100,
			VelocityScale:  1,
			SustainPercent: 100,
		},
		Export: ExportConfig{
			TicksPerQuarter: 480,
		},
	}
}

var (
	dirMu       sync.RWMutex
	dirOverride string
)

// SetDir overrides the config directory (empty restores the default)
func SetDir(dir string) {
	dirMu.Lock()
	defer dirMu.Unlock()
	dirOverride = dir
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	dirMu.RLock()
	dir := dirOverride
	dirMu.RUnlock()
	if dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-piano"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// TakesDir is where recordings are exported unless Export.Dir is set
func (c *Config) TakesDir() string {
	if c.Export.Dir != "" {
		return c.Export.Dir
	}
	dir, err := ConfigDir()
	if err != nil {
		return "takes"
	}
	return filepath.Join(dir, "takes")
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	// Write then rename so a crash never leaves half a file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// FindController finds a controller config by port name
func (c *Config) FindController(portName string) *ControllerConfig {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == portName {
			return &c.Controllers[i]
		}
	}
	return nil
}

// AddController adds or updates a controller config
func (c *Config) AddController(ctrl ControllerConfig) {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == ctrl.PortName {
			c.Controllers[i] = ctrl
			return
		}
	}
	c.Controllers = append(c.Controllers, ctrl)
}

// AutoConnectControllers returns controllers with autoConnect enabled
func (c *Config) AutoConnectControllers() []ControllerConfig {
	var result []ControllerConfig
	for _, ctrl := range c.Controllers {
		if ctrl.AutoConnect {
			result = append(result, ctrl)
		}
	}
	return result
}

// PerformanceDefaults converts the stored playing defaults
func (c *Config) PerformanceDefaults() performance.Defaults {
	_, hold := performance.HoldFromPercent(c.Performance.SustainPercent)
	return performance.Defaults{
		Transpose:     c.Performance.Transpose,
		VelocityScale: c.Performance.VelocityScale,
		SustainOn:     c.Performance.SustainDefault,
		SustainHold:   hold,
	}
}

// SetPerformanceDefaults stores d, mapping the hold time back to a percent.
// The hold is kept whatever the startup pedal position.
func (c *Config) SetPerformanceDefaults(d performance.Defaults) {
	c.Performance.Transpose = d.Transpose
	c.Performance.VelocityScale = d.VelocityScale
	c.Performance.SustainDefault = d.SustainOn
	c.Performance.SustainPercent = percentFromHold(d.SustainHold)
}

func percentFromHold(hold time.Duration) int {
	if hold <= 0 {
		return 100
	}
	ms := float64(hold.Milliseconds())
	p := int(math.Round((ms - 80) / 2320 * 99))
	return min(99, max(1, p))
}
