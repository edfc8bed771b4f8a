// config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type SourceConfig struct {
	BaseURL   string   `yaml:"base_url"` // e.g. https://opendata.dwd.de/weather/nwp
	Model     string   `yaml:"model"`    // e.g. icon-d2
	Grid      string   `yaml:"grid"`     // regular-lat-lon or icosahedral
	Run       string   `yaml:"run"`      // 00, 03, ..., 21
	Variables []string `yaml:"variables"`
}

type FilterConfig struct {
	Prefix                string           `yaml:"prefix"`
	Suffix                string           `yaml:"suffix"`
	IncludePatterns       []string         `yaml:"include_patterns"`
	IncludeMatchAny       bool             `yaml:"include_match_any"`
	ExcludePatterns       []string         `yaml:"exclude_patterns"`
	MinTimestep           int              `yaml:"min_timestep"`
	MaxTimestep           int              `yaml:"max_timestep"`
	SkipTimestepVariables []string         `yaml:"skip_timestep_variables"`
	VariablePatterns      map[string][]int `yaml:"variable_patterns"`
}

type PathsConfig struct {
	Download  string `yaml:"download"`
	Extracted string `yaml:"extracted"`
	Converted string `yaml:"converted"`
	Logs      string `yaml:"logs"`
}

type ObjectStoreConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Bucket       string `yaml:"bucket"`
	Secure       bool   `yaml:"secure"`
	RemotePrefix string `yaml:"remote_prefix"`
	// Credentials come from the environment, not the config file.
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

// Enabled reports whether a run-history database was configured at all.
func (c DatabaseConfig) Enabled() bool { return c.Host != "" }

type NotifierConfig struct {
	Server   string `yaml:"server"`
	Secure   bool   `yaml:"secure"`
	TokenEnv string `yaml:"token_env"`
	Priority int    `yaml:"priority"`
}

type TransferConfig struct {
	Workers        int     `yaml:"workers"`
	DelaySeconds   float64 `yaml:"delay_seconds"`
	Retries        int     `yaml:"retries"`
	CheckExisting  bool    `yaml:"check_existing"`
	CheckIntegrity bool    `yaml:"check_integrity"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// Delay returns the configured inter-request delay as a duration.
func (c TransferConfig) Delay() time.Duration {
	return time.Duration(c.DelaySeconds * float64(time.Second))
}

// Timeout returns the per-request timeout, defaulting to 30s like the
// plain file downloader.
func (c TransferConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type GeoConfig struct {
	Enabled  bool    `yaml:"enabled"`
	StartLat float64 `yaml:"start_lat"`
	EndLat   float64 `yaml:"end_lat"`
	StartLon float64 `yaml:"start_lon"`
	EndLon   float64 `yaml:"end_lon"`
}

type MergeConfig struct {
	JoinMethod      string   `yaml:"join_method"` // inner, outer, left, right
	RequiredColumns []string `yaml:"required_columns"`
	TimeSteps       []int    `yaml:"time_steps"`
}

type Config struct {
	Source      SourceConfig      `yaml:"source"`
	Filter      FilterConfig      `yaml:"filter"`
	Paths       PathsConfig       `yaml:"paths"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Database    DatabaseConfig    `yaml:"database"`
	Notifier    NotifierConfig    `yaml:"notifier"`
	Transfer    TransferConfig    `yaml:"transfer"`
	Geo         GeoConfig         `yaml:"geo"`
	Merge       MergeConfig       `yaml:"merge"`
}

// LoadConfig reads and validates the YAML configuration. The returned Config
// is constructed once and passed by reference into each component; there is
// no package-level configuration state.
func LoadConfig(configPath string) (*Config, error) {
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Source.BaseURL == "" {
		return nil, fmt.Errorf("source.base_url must be set")
	}
	switch cfg.Merge.JoinMethod {
	case "inner", "outer", "left", "right":
	default:
		return nil, fmt.Errorf("merge.join_method %q is not one of inner/outer/left/right", cfg.Merge.JoinMethod)
	}
	if cfg.Transfer.Workers < 1 {
		cfg.Transfer.Workers = 1
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			BaseURL: "https://opendata.dwd.de/weather/nwp",
			Model:   "icon-d2",
			Grid:    "regular-lat-lon",
			Run:     "00",
		},
		Filter: FilterConfig{
			Prefix:      "icon-d2_germany",
			Suffix:      ".grib2.bz2",
			MinTimestep: 0,
			MaxTimestep: 48,
		},
		Paths: PathsConfig{
			Download:  "downloaded_files",
			Extracted: "extracted_files",
			Converted: "converted_files",
			Logs:      "log_files",
		},
		ObjectStore: ObjectStoreConfig{
			AccessKeyEnv: "MINIO_ACCESS_KEY",
			SecretKeyEnv: "MINIO_SECRET_KEY",
		},
		Notifier: NotifierConfig{
			TokenEnv: "GOTIFY_TOKEN",
			Priority: 5,
		},
		Transfer: TransferConfig{
			Workers: 1,
			Retries: 3,
		},
		Merge: MergeConfig{
			JoinMethod:      "inner",
			RequiredColumns: []string{"latitude", "longitude", "valid_time"},
		},
	}
}
