package lens

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration file
type Config struct {
	Data     string         `yaml:"data" json:"data"` // CSV dataset path
	HTTPPort int            `yaml:"httpPort,omitempty" json:"httpPort,omitempty"`
	MQTT     MQTTConfig     `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
	Viewport ViewportConfig `yaml:"viewport,omitempty" json:"viewport,omitempty"`
	Defaults *FilterConfig  `yaml:"defaults,omitempty" json:"defaults,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// FilterDefaults returns the configured starting filter, or the built-in one
func (c *Config) FilterDefaults() FilterConfig {
	if c == nil || c.Defaults == nil {
		return DefaultFilterConfig()
	}
	return *c.Defaults
}

// LoadConfig loads the configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if config.HTTPPort < 0 || config.HTTPPort > 65535 {
		return nil, fmt.Errorf("httpPort %d out of range", config.HTTPPort)
	}
	if config.Viewport.PadRatio < 0 {
		return nil, fmt.Errorf("viewport.padRatio must not be negative")
	}
	if config.Viewport.HalfWidth < 0 || config.Viewport.HalfHeight < 0 {
		return nil, fmt.Errorf("viewport half sizes must not be negative")
	}
	if config.Viewport.HitRadius < 0 || config.Viewport.HitRadius > 1 {
		return nil, fmt.Errorf("viewport.hitRadius must be between 0 and 1")
	}

	if config.Defaults != nil {
		// Unset fields in a partial defaults block keep the built-in values
		wrapper := struct {
			Defaults FilterConfig `yaml:"defaults"`
		}{Defaults: DefaultFilterConfig()}
		if err := yaml.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("parsing defaults: %w", err)
		}
		if err := wrapper.Defaults.Validate(); err != nil {
			return nil, fmt.Errorf("defaults: %w", err)
		}
		config.Defaults = &wrapper.Defaults
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks every enumerated field and numeric range. The returned error
// is meant to be shown to the user as is.
func (c FilterConfig) Validate() error {
	if !c.Limit.Valid() {
		return fmt.Errorf("limit must be %q or %q", LimitNone, LimitEnabled)
	}
	if !c.Cohort.Valid() {
		return fmt.Errorf("unknown cohort %q", c.Cohort)
	}
	if !c.Churn.Valid() {
		return fmt.Errorf("churn must be include, exclude or only")
	}
	if !c.License.Valid() {
		return fmt.Errorf("license must be %q or %q", LicenseInc, LicenseExc)
	}
	if !c.RegressionFilter.Valid() {
		return fmt.Errorf("regressionFilter must be none, above or below")
	}

	if c.Limit == LimitEnabled {
		if err := checkRange("mrr", c.MRRMin, c.MRRMax); err != nil {
			return err
		}
		if err := checkRange("growth", c.GrowthMin, c.GrowthMax); err != nil {
			return err
		}
	}

	if !finite(c.LicenseThreshold) {
		return fmt.Errorf("licenseThreshold must be a number")
	}
	if c.RiskColormap {
		if !finite(c.RiskColormapWeightPower) || c.RiskColormapWeightPower < 0 || c.RiskColormapWeightPower > 3 {
			return fmt.Errorf("Enter a valid value (0–3)")
		}
	}
	return nil
}

func checkRange(name string, lo, hi *float64) error {
	if lo != nil && (math.IsNaN(*lo) || math.IsInf(*lo, 0)) {
		return fmt.Errorf("%s minimum must be a number", name)
	}
	if hi != nil && (math.IsNaN(*hi) || math.IsInf(*hi, 0)) {
		return fmt.Errorf("%s maximum must be a number", name)
	}
	if lo != nil && hi != nil && *lo > *hi {
		return fmt.Errorf("%s minimum %g is above maximum %g", name, *lo, *hi)
	}
	return nil
}
